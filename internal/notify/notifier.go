// Package notify sends batch alerts to chat channels (Telegram, Discord). The
// Notifier filters by event type so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// Batch event types.
const (
	EventBatchCompleted = "batch_completed"
	EventBatchFailed    = "batch_failed"
	EventBatchAborted   = "batch_aborted"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders, forwarding only
// the configured event types. It implements domain.ReportSink.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. If
// events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends to every sender if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one sender failing does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (n *Notifier) Name() string { return "notify" }

// Record classifies report and notifies when its event type is allowed.
func (n *Notifier) Record(ctx context.Context, report domain.BatchReport) error {
	event := ReportEvent(report)
	return n.Notify(ctx, event, reportTitle(event, report), reportMessage(report))
}

// ReportEvent maps a batch report to its event type.
func ReportEvent(r domain.BatchReport) string {
	switch {
	case r.Error != "":
		return EventBatchAborted
	case r.Result.Failed > 0:
		return EventBatchFailed
	default:
		return EventBatchCompleted
	}
}

func reportTitle(event string, r domain.BatchReport) string {
	subject := string(r.Method)
	if r.Sport != "" {
		subject += " " + string(r.Sport)
	}
	switch event {
	case EventBatchAborted:
		return "Keeper batch aborted: " + subject
	case EventBatchFailed:
		return "Keeper batch had failures: " + subject
	default:
		return "Keeper batch completed: " + subject
	}
}

func reportMessage(r domain.BatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "contract %s\n", r.Contract)
	fmt.Fprintf(&b, "succeeded %d, failed %d, skipped %d\n", r.Result.Succeeded, r.Result.Failed, r.Result.Skipped)
	if r.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}
	for _, s := range r.Result.Submissions {
		if !s.OK() {
			fmt.Fprintf(&b, "%s (nonce %d): %s\n", s.Label, s.Nonce, s.Err)
		}
	}
	fmt.Fprintf(&b, "batch %s", r.BatchID)
	return b.String()
}

var _ domain.ReportSink = (*Notifier)(nil)
