package domain

import (
	"context"
	"math/big"
)

// TxHandle identifies a transaction accepted by the node.
type TxHandle struct {
	Hash  string
	Nonce uint64
}

// CryptoMarketFactory is the crypto market factory contract.
type CryptoMarketFactory interface {
	// Coins returns the full coin list, placeholder included.
	Coins(ctx context.Context) ([]Coin, error)
	MarketState(ctx context.Context, marketID *big.Int) (MarketState, error)
	// NextResolutionTime is the resolution time shared by every coin's current
	// market, used by the strict resolve policy.
	NextResolutionTime(ctx context.Context) (int64, error)
	PokeCoin(ctx context.Context, arg PokeArgument, nonce uint64) (TxHandle, error)
	CreateAndResolveMarkets(ctx context.Context, roundIDs []*big.Int, nextResolutionTime int64, nonce uint64) (TxHandle, error)
}

// SportsMarketFactory is a team or fighter market factory contract.
type SportsMarketFactory interface {
	CreateEvent(ctx context.Context, call EventCall, nonce uint64) (TxHandle, error)
}

// Account is the externally owned account that signs every transaction.
type Account interface {
	Address() string
	// Nonce returns the next nonce to use for the account.
	Nonce(ctx context.Context) (uint64, error)
}

// OracleFeed is one price feed's round history.
type OracleFeed interface {
	Latest(ctx context.Context) (RoundObservation, error)
	At(ctx context.Context, roundID *big.Int) (RoundObservation, error)
}

// ContractBinder connects addresses to contract gateways.
type ContractBinder interface {
	CryptoFactory(address string) (CryptoMarketFactory, error)
	SportsFactory(profile SportProfile, address string) (SportsMarketFactory, error)
	Feed(address string) (OracleFeed, error)
	Account() Account
}

// ScheduleProvider fetches upcoming events from a third-party data source.
type ScheduleProvider interface {
	Name() string
	TeamEvents(ctx context.Context, sport Sport, window EventWindow) ([]TeamEvent, error)
	FighterEvents(ctx context.Context, sport Sport, window EventWindow) ([]FighterEvent, error)
}

// ReportSink receives the report of every finished batch.
type ReportSink interface {
	Name() string
	Record(ctx context.Context, report BatchReport) error
}
