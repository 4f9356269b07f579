package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

type sportsFactory struct {
	contract *boundContract
	shape    domain.CallShape
}

// CreateEvent sends createEvent with the argument list of the factory's call
// shape.
func (f *sportsFactory) CreateEvent(ctx context.Context, call domain.EventCall, nonce uint64) (domain.TxHandle, error) {
	if call.Shape != f.shape {
		return domain.TxHandle{}, fmt.Errorf("chain: createEvent: %s call sent to %s factory", call.Shape, f.shape)
	}
	if call.EventID == nil || call.EventID.Sign() < 0 {
		return domain.TxHandle{}, fmt.Errorf("chain: createEvent: invalid event id %v", call.EventID)
	}
	if call.HomeID < 0 || call.AwayID < 0 || call.StartTime < 0 {
		return domain.TxHandle{}, fmt.Errorf("chain: createEvent %s: negative id or start time", call.EventID)
	}

	moneylines := [2]*big.Int{big.NewInt(call.Moneylines[0]), big.NewInt(call.Moneylines[1])}
	args := []any{
		call.EventID,
		call.HomeName,
		big.NewInt(call.HomeID),
		call.AwayName,
		big.NewInt(call.AwayID),
		big.NewInt(call.StartTime),
	}
	if f.shape == domain.ShapeTeamWithLines {
		args = append(args, big.NewInt(call.HomeSpread), big.NewInt(call.TotalScore))
	}
	args = append(args, moneylines)

	return f.contract.transact(ctx, nonce, "createEvent", args...)
}
