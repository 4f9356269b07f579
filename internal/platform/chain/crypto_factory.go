package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// coinTuple mirrors the factory's Coin struct.
type coinTuple struct {
	Name          string
	Feed          common.Address
	Value         *big.Int
	Imprecision   uint8
	CurrentMarket *big.Int
}

// marketDetailsTuple mirrors the factory's MarketDetails struct.
type marketDetailsTuple struct {
	CoinIndex       *big.Int
	CreationValue   *big.Int
	ResolutionValue *big.Int
	ResolutionTime  *big.Int
}

type cryptoFactory struct {
	contract *boundContract
}

func (f *cryptoFactory) Coins(ctx context.Context) ([]domain.Coin, error) {
	out, err := f.contract.call(ctx, "getCoins")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errUnexpectedOutput
	}
	raw := *abi.ConvertType(out[0], new([]coinTuple)).(*[]coinTuple)

	coins := make([]domain.Coin, len(raw))
	for i, c := range raw {
		coins[i] = domain.Coin{
			Index:           i,
			Name:            c.Name,
			PriceFeed:       c.Feed.Hex(),
			CurrentMarketID: c.CurrentMarket,
		}
	}
	return coins, nil
}

func (f *cryptoFactory) MarketState(ctx context.Context, marketID *big.Int) (domain.MarketState, error) {
	if marketID == nil {
		return domain.MarketState{}, fmt.Errorf("chain: getMarketDetails: nil market id")
	}
	out, err := f.contract.call(ctx, "getMarketDetails", marketID)
	if err != nil {
		return domain.MarketState{}, err
	}
	if len(out) != 1 {
		return domain.MarketState{}, errUnexpectedOutput
	}
	d := *abi.ConvertType(out[0], new(marketDetailsTuple)).(*marketDetailsTuple)
	if !d.ResolutionTime.IsInt64() || !d.CoinIndex.IsInt64() {
		return domain.MarketState{}, fmt.Errorf("chain: market %s details out of range", marketID)
	}
	return domain.MarketState{
		MarketID:       marketID,
		CoinIndex:      int(d.CoinIndex.Int64()),
		ResolutionTime: d.ResolutionTime.Int64(),
	}, nil
}

func (f *cryptoFactory) NextResolutionTime(ctx context.Context) (int64, error) {
	out, err := f.contract.call(ctx, "nextResolutionTime")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, errUnexpectedOutput
	}
	t := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if !t.IsInt64() {
		return 0, fmt.Errorf("chain: nextResolutionTime %s out of range", t)
	}
	return t.Int64(), nil
}

func (f *cryptoFactory) PokeCoin(ctx context.Context, arg domain.PokeArgument, nonce uint64) (domain.TxHandle, error) {
	return f.contract.transact(ctx, nonce, "pokeCoin",
		big.NewInt(int64(arg.CoinIndex)),
		big.NewInt(arg.NextResolutionTime),
		arg.RoundID,
	)
}

func (f *cryptoFactory) CreateAndResolveMarkets(ctx context.Context, roundIDs []*big.Int, nextResolutionTime int64, nonce uint64) (domain.TxHandle, error) {
	return f.contract.transact(ctx, nonce, "createAndResolveMarkets", roundIDs, big.NewInt(nextResolutionTime))
}
