package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// OverrideKey selects one pinned round: the resolution time being settled and
// the coin name as reported by the factory.
type OverrideKey struct {
	ResolutionTime int64
	Coin           string
}

// RoundResolver finds the first oracle round published at or after a target
// timestamp.
type RoundResolver struct {
	overrides map[OverrideKey]*big.Int
	logger    *slog.Logger
}

// NewRoundResolver creates a RoundResolver. overrides pins the round id for
// specific (resolution time, coin) pairs and may be nil.
func NewRoundResolver(overrides map[OverrideKey]*big.Int, logger *slog.Logger) *RoundResolver {
	pinned := make(map[OverrideKey]*big.Int, len(overrides))
	for k, v := range overrides {
		if v != nil {
			pinned[k] = new(big.Int).Set(v)
		}
	}
	return &RoundResolver{overrides: pinned, logger: logger}
}

// Override returns the pinned round id for coin at target, if any.
func (r *RoundResolver) Override(coin string, target int64) (*big.Int, bool) {
	id, ok := r.overrides[OverrideKey{ResolutionTime: target, Coin: coin}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(id), true
}

// Resolve returns the id of the earliest round on feed whose update time is
// at or after target. A target of 0 means the latest round. When the feed has
// not yet published past target it returns a *domain.NotReadyError.
func (r *RoundResolver) Resolve(ctx context.Context, coin domain.Coin, feed domain.OracleFeed, target int64) (*big.Int, error) {
	if id, ok := r.Override(coin.Name, target); ok {
		r.logger.WarnContext(ctx, "round_resolver: using pinned round",
			slog.String("source", "override"),
			slog.String("coin", coin.Name),
			slog.Int64("resolution_time", target),
			slog.String("round_id", id.String()),
		)
		return id, nil
	}

	latest, err := feed.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("round_resolver: latest round for %s: %w", coin.Name, err)
	}

	if target == 0 {
		return latest.Round.ID(), nil
	}

	if latest.UpdatedAt < target {
		return nil, &domain.NotReadyError{
			Coin:           coin.Name,
			Feed:           coin.PriceFeed,
			ResolutionTime: target,
			UpdatedAt:      latest.UpdatedAt,
		}
	}

	// Step back while the previous round still satisfies the target, then
	// answer with the round after the one that failed.
	current := latest.Round
	steps := 0
	for {
		if current.Sequence == 0 {
			// Nothing earlier exists in this phase.
			r.logResolved(ctx, coin, target, current, steps)
			return current.ID(), nil
		}
		prev, err := current.Prev()
		if err != nil {
			return nil, fmt.Errorf("round_resolver: %s: %w", coin.Name, err)
		}
		obs, err := feed.At(ctx, prev.ID())
		if err != nil {
			return nil, fmt.Errorf("round_resolver: round %s for %s: %w", prev, coin.Name, err)
		}
		current = obs.Round
		steps++
		if obs.UpdatedAt < target {
			break
		}
	}

	answer := current.Next()
	r.logResolved(ctx, coin, target, answer, steps)
	return answer.ID(), nil
}

func (r *RoundResolver) logResolved(ctx context.Context, coin domain.Coin, target int64, round domain.Round, steps int) {
	r.logger.DebugContext(ctx, "round_resolver: resolved round",
		slog.String("source", "oracle"),
		slog.String("coin", coin.Name),
		slog.Int64("resolution_time", target),
		slog.String("round", round.String()),
		slog.Int("steps", steps),
	)
}

// IsNotReady reports whether err means the oracle has not caught up yet.
func IsNotReady(err error) bool {
	return errors.Is(err, domain.ErrNotReady)
}
