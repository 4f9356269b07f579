package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// sequencer hands out nonces for one batch. The starting nonce is read from
// the account once; every submission consumes the next value whether or not
// the node accepted it.
type sequencer struct {
	next   uint64
	result *domain.BatchResult
	logger *slog.Logger
}

func newSequencer(ctx context.Context, account domain.Account, policy domain.Policy, logger *slog.Logger) (*sequencer, error) {
	n0, err := account.Nonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("submitter: nonce for %s: %w", account.Address(), err)
	}
	logger.InfoContext(ctx, "submitter: batch nonce",
		slog.String("account", account.Address()),
		slog.Uint64("nonce", n0),
	)
	return &sequencer{
		next:   n0,
		result: &domain.BatchResult{Policy: policy},
		logger: logger,
	}, nil
}

// submit sends one transaction with the next nonce and records the outcome.
// Failures are counted and logged, never returned.
func (s *sequencer) submit(ctx context.Context, label string, send func(nonce uint64) (domain.TxHandle, error)) {
	nonce := s.next
	s.next++

	sub := domain.Submission{Label: label, Nonce: nonce}
	tx, err := send(nonce)
	if err != nil {
		sub.Err = err.Error()
		s.result.Failed++
		s.logger.ErrorContext(ctx, "submitter: transaction failed",
			slog.String("label", label),
			slog.Uint64("nonce", nonce),
			slog.String("error", err.Error()),
		)
	} else {
		sub.TxHash = tx.Hash
		s.result.Succeeded++
		s.logger.InfoContext(ctx, "submitter: transaction sent",
			slog.String("label", label),
			slog.Uint64("nonce", nonce),
			slog.String("tx_hash", tx.Hash),
		)
	}
	s.result.Submissions = append(s.result.Submissions, sub)
}

func (s *sequencer) skip() { s.result.Skipped++ }

func (s *sequencer) done() domain.BatchResult { return *s.result }
