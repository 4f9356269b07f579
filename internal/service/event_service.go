package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// DefaultRouting maps each sport to the data provider that schedules it.
var DefaultRouting = map[domain.Sport]string{
	domain.SportNFL: "sportsdataio",
	domain.SportMMA: "sportsdataio",
	domain.SportNBA: "therundown",
	domain.SportMLB: "therundown",
}

// CreateRequest carries the window parameters of a create batch.
type CreateRequest struct {
	Profile       domain.SportProfile
	Contract      string
	DaysInAdvance int
	StartBuffer   time.Duration
	AffiliateIDs  []int
}

// EventService creates team and fighter markets from provider schedules.
type EventService struct {
	binder    domain.ContractBinder
	providers map[string]domain.ScheduleProvider
	routing   map[domain.Sport]string
	nowFunc   func() time.Time
	logger    *slog.Logger
}

// NewEventService creates an EventService. routing overrides entries of
// DefaultRouting; a nil routing uses the defaults unchanged.
func NewEventService(
	binder domain.ContractBinder,
	providers []domain.ScheduleProvider,
	routing map[domain.Sport]string,
	logger *slog.Logger,
) *EventService {
	byName := make(map[string]domain.ScheduleProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	merged := make(map[domain.Sport]string, len(DefaultRouting)+len(routing))
	for k, v := range DefaultRouting {
		merged[k] = v
	}
	for k, v := range routing {
		merged[k] = strings.ToLower(v)
	}
	return &EventService{
		binder:    binder,
		providers: byName,
		routing:   merged,
		nowFunc:   time.Now,
		logger:    logger,
	}
}

// Provider returns the data provider routed to sport.
func (s *EventService) Provider(sport domain.Sport) (domain.ScheduleProvider, error) {
	name, ok := s.routing[sport]
	if !ok {
		return nil, domain.Configurationf("sport", string(sport), "no data provider mapped")
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, domain.Configurationf("provider", name, "unknown data provider for sport %s", sport)
	}
	return p, nil
}

// Window returns the start-time window for a create batch issued at now.
func Window(now time.Time, req CreateRequest) domain.EventWindow {
	return domain.EventWindow{
		From:         now.Add(req.StartBuffer),
		To:           now.AddDate(0, 0, req.DaysInAdvance),
		AffiliateIDs: req.AffiliateIDs,
	}
}

// Create fetches upcoming events for the request's sport and submits one
// createEvent transaction per event. Submission failures are counted.
func (s *EventService) Create(ctx context.Context, req CreateRequest) (domain.BatchResult, error) {
	if req.Profile.Family != domain.FamilyTeam && req.Profile.Family != domain.FamilyFighter {
		return domain.BatchResult{}, domain.Configurationf("sport", string(req.Profile.Sport), "sport does not create events")
	}
	provider, err := s.Provider(req.Profile.Sport)
	if err != nil {
		return domain.BatchResult{}, err
	}
	factory, err := s.binder.SportsFactory(req.Profile, req.Contract)
	if err != nil {
		return domain.BatchResult{}, err
	}

	window := Window(s.nowFunc(), req)
	calls, skipped, err := s.eventCalls(ctx, provider, req.Profile, window)
	if err != nil {
		return domain.BatchResult{}, err
	}

	s.logger.InfoContext(ctx, "event_service: prepared events",
		slog.String("sport", string(req.Profile.Sport)),
		slog.String("provider", provider.Name()),
		slog.Time("from", window.From),
		slog.Time("to", window.To),
		slog.Int("count", len(calls)),
	)

	seq, err := newSequencer(ctx, s.binder.Account(), domain.PolicyCreateEvents, s.logger)
	if err != nil {
		return domain.BatchResult{}, err
	}
	for i := 0; i < skipped; i++ {
		seq.skip()
	}
	for _, call := range calls {
		label := fmt.Sprintf("create:%s:%s", req.Profile.Sport, call.EventID)
		seq.submit(ctx, label, func(nonce uint64) (domain.TxHandle, error) {
			return factory.CreateEvent(ctx, call, nonce)
		})
	}

	res := seq.done()
	s.logger.InfoContext(ctx, "event_service: create batch finished",
		slog.String("sport", string(req.Profile.Sport)),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *EventService) eventCalls(ctx context.Context, provider domain.ScheduleProvider, profile domain.SportProfile, window domain.EventWindow) ([]domain.EventCall, int, error) {
	var (
		calls   []domain.EventCall
		skipped int
	)

	switch profile.Family {
	case domain.FamilyFighter:
		events, err := provider.FighterEvents(ctx, profile.Sport, window)
		if err != nil {
			return nil, 0, fmt.Errorf("event_service: %s fighter events: %w", provider.Name(), err)
		}
		for _, ev := range events {
			call, err := MapFighterEvent(ev)
			if err != nil {
				s.logger.WarnContext(ctx, "event_service: skip event", slog.String("error", err.Error()))
				skipped++
				continue
			}
			calls = append(calls, call)
		}
	default:
		events, err := provider.TeamEvents(ctx, profile.Sport, window)
		if err != nil {
			return nil, 0, fmt.Errorf("event_service: %s team events: %w", provider.Name(), err)
		}
		for _, ev := range events {
			call, err := MapTeamEvent(profile.Shape, ev)
			if err != nil {
				s.logger.WarnContext(ctx, "event_service: skip event", slog.String("error", err.Error()))
				skipped++
				continue
			}
			calls = append(calls, call)
		}
	}
	return calls, skipped, nil
}
