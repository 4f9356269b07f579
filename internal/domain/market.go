package domain

import "math/big"

// PlaceholderCoinIndex is the reserved slot at the start of the factory's
// coin list. It never carries a market and is skipped by every batch.
const PlaceholderCoinIndex = 0

// Coin is an asset tracked by the crypto market factory.
type Coin struct {
	Index           int
	Name            string
	PriceFeed       string
	CurrentMarketID *big.Int
}

// RealCoins drops the placeholder entry and stamps each remaining coin with
// its factory index.
func RealCoins(all []Coin) []Coin {
	if len(all) <= 1 {
		return nil
	}
	out := make([]Coin, 0, len(all)-1)
	for i := 1; i < len(all); i++ {
		c := all[i]
		c.Index = i
		out = append(out, c)
	}
	return out
}

// MarketState is the part of a factory market the keeper reads. ResolutionTime
// is in unix seconds.
type MarketState struct {
	MarketID       *big.Int
	CoinIndex      int
	ResolutionTime int64
}

// PokeArgument advances one coin's market to its next settlement cycle.
type PokeArgument struct {
	CoinIndex          int
	Coin               string
	NextResolutionTime int64
	RoundID            *big.Int
}
