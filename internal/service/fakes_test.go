package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFeed serves a synthetic round history in phase 1. updatedAt[i] belongs
// to sequence base+i.
type fakeFeed struct {
	base      uint64
	updatedAt []int64
	calls     int
}

func newFakeFeed(base uint64, updatedAt ...int64) *fakeFeed {
	return &fakeFeed{base: base, updatedAt: updatedAt}
}

func (f *fakeFeed) observation(i int) domain.RoundObservation {
	return domain.RoundObservation{
		Round:     domain.Round{Phase: 1, Sequence: f.base + uint64(i)},
		Answer:    big.NewInt(int64(i) * 1000),
		StartedAt: f.updatedAt[i] - 1,
		UpdatedAt: f.updatedAt[i],
	}
}

func (f *fakeFeed) Latest(context.Context) (domain.RoundObservation, error) {
	f.calls++
	if len(f.updatedAt) == 0 {
		return domain.RoundObservation{}, errors.New("no rounds")
	}
	return f.observation(len(f.updatedAt) - 1), nil
}

func (f *fakeFeed) At(_ context.Context, id *big.Int) (domain.RoundObservation, error) {
	f.calls++
	r, err := domain.DecodeRound(id)
	if err != nil {
		return domain.RoundObservation{}, err
	}
	if r.Phase != 1 || r.Sequence < f.base || r.Sequence-f.base >= uint64(len(f.updatedAt)) {
		return domain.RoundObservation{}, fmt.Errorf("round %s not found", r)
	}
	return f.observation(int(r.Sequence - f.base)), nil
}

// fakeFactory is a crypto factory whose coins all point at markets with the
// same resolution time.
type fakeFactory struct {
	coins          []domain.Coin
	resolutionTime map[int64]int64
	nextResolution int64
	failPoke       map[string]bool
	failCreate     bool

	pokes      []domain.PokeArgument
	pokeNonces []uint64
	resolved   [][]*big.Int
	resolveAt  []int64
	nonces     []uint64
}

func (f *fakeFactory) Coins(context.Context) ([]domain.Coin, error) {
	return f.coins, nil
}

func (f *fakeFactory) MarketState(_ context.Context, id *big.Int) (domain.MarketState, error) {
	rt, ok := f.resolutionTime[id.Int64()]
	if !ok {
		return domain.MarketState{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return domain.MarketState{MarketID: id, ResolutionTime: rt}, nil
}

func (f *fakeFactory) NextResolutionTime(context.Context) (int64, error) {
	return f.nextResolution, nil
}

func (f *fakeFactory) PokeCoin(_ context.Context, arg domain.PokeArgument, nonce uint64) (domain.TxHandle, error) {
	f.pokes = append(f.pokes, arg)
	f.pokeNonces = append(f.pokeNonces, nonce)
	if f.failPoke[arg.Coin] {
		return domain.TxHandle{}, errors.New("execution reverted")
	}
	return domain.TxHandle{Hash: fmt.Sprintf("0xpoke%d", nonce), Nonce: nonce}, nil
}

func (f *fakeFactory) CreateAndResolveMarkets(_ context.Context, ids []*big.Int, next int64, nonce uint64) (domain.TxHandle, error) {
	f.resolved = append(f.resolved, ids)
	f.resolveAt = append(f.resolveAt, next)
	f.nonces = append(f.nonces, nonce)
	if f.failCreate {
		return domain.TxHandle{}, errors.New("nonce too low")
	}
	return domain.TxHandle{Hash: "0xresolve", Nonce: nonce}, nil
}

type fakeSportsFactory struct {
	calls  []domain.EventCall
	nonces []uint64
	fail   map[string]bool
}

func (f *fakeSportsFactory) CreateEvent(_ context.Context, call domain.EventCall, nonce uint64) (domain.TxHandle, error) {
	f.calls = append(f.calls, call)
	f.nonces = append(f.nonces, nonce)
	if f.fail[call.EventID.String()] {
		return domain.TxHandle{}, errors.New("replacement transaction underpriced")
	}
	return domain.TxHandle{Hash: fmt.Sprintf("0xevent%d", nonce), Nonce: nonce}, nil
}

type fakeAccount struct {
	address string
	nonce   uint64
	queries int
}

func (a *fakeAccount) Address() string { return a.address }

func (a *fakeAccount) Nonce(context.Context) (uint64, error) {
	a.queries++
	return a.nonce, nil
}

type fakeBinder struct {
	factory *fakeFactory
	sports  *fakeSportsFactory
	feeds   map[string]*fakeFeed
	account *fakeAccount
}

func (b *fakeBinder) CryptoFactory(string) (domain.CryptoMarketFactory, error) {
	if b.factory == nil {
		return nil, domain.Configurationf("contract", "", "no crypto factory")
	}
	return b.factory, nil
}

func (b *fakeBinder) SportsFactory(domain.SportProfile, string) (domain.SportsMarketFactory, error) {
	if b.sports == nil {
		return nil, domain.Configurationf("contract", "", "no sports factory")
	}
	return b.sports, nil
}

func (b *fakeBinder) Feed(address string) (domain.OracleFeed, error) {
	f, ok := b.feeds[address]
	if !ok {
		return nil, fmt.Errorf("feed %s: %w", address, domain.ErrNotFound)
	}
	return f, nil
}

func (b *fakeBinder) Account() domain.Account { return b.account }

type fakeProvider struct {
	name     string
	teams    []domain.TeamEvent
	fighters []domain.FighterEvent
	windows  []domain.EventWindow
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) TeamEvents(_ context.Context, _ domain.Sport, w domain.EventWindow) ([]domain.TeamEvent, error) {
	p.windows = append(p.windows, w)
	return p.teams, nil
}

func (p *fakeProvider) FighterEvents(_ context.Context, _ domain.Sport, w domain.EventWindow) ([]domain.FighterEvent, error) {
	p.windows = append(p.windows, w)
	return p.fighters, nil
}

type fakeSink struct {
	mu      sync.Mutex
	reports []domain.BatchReport
	err     error
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Record(_ context.Context, r domain.BatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

// fixedScheduler returns a Scheduler whose clock is pinned to now.
func fixedScheduler(now time.Time) *Scheduler {
	s, err := NewScheduler()
	if err != nil {
		panic(err)
	}
	s.nowFunc = func() time.Time { return now }
	return s
}

func fptr(v float64) *float64 { return &v }
