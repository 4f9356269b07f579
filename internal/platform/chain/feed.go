package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

type aggregatorFeed struct {
	contract *boundContract
}

func (f *aggregatorFeed) Latest(ctx context.Context) (domain.RoundObservation, error) {
	out, err := f.contract.call(ctx, "latestRoundData")
	if err != nil {
		return domain.RoundObservation{}, err
	}
	return decodeRoundData(out)
}

func (f *aggregatorFeed) At(ctx context.Context, roundID *big.Int) (domain.RoundObservation, error) {
	out, err := f.contract.call(ctx, "getRoundData", roundID)
	if err != nil {
		return domain.RoundObservation{}, err
	}
	return decodeRoundData(out)
}

// decodeRoundData converts (roundId, answer, startedAt, updatedAt,
// answeredInRound) into an observation.
func decodeRoundData(out []any) (domain.RoundObservation, error) {
	if len(out) != 5 {
		return domain.RoundObservation{}, errUnexpectedOutput
	}
	roundID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	answer := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	startedAt := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	updatedAt := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)

	round, err := domain.DecodeRound(roundID)
	if err != nil {
		return domain.RoundObservation{}, fmt.Errorf("chain: %w", err)
	}
	if !startedAt.IsInt64() || !updatedAt.IsInt64() {
		return domain.RoundObservation{}, fmt.Errorf("chain: round %s timestamps out of range", round)
	}
	return domain.RoundObservation{
		Round:     round,
		Answer:    answer,
		StartedAt: startedAt.Int64(),
		UpdatedAt: updatedAt.Int64(),
	}, nil
}
