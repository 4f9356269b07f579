package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

var testNow = time.Date(2026, 10, 16, 16, 5, 0, 0, time.UTC)

// newCryptoFixture builds a factory with n real coins named C1..Cn. Coins
// listed in notReady get a feed that stops short of the resolution time.
func newCryptoFixture(n int, resolution int64, notReady ...int) (*fakeBinder, *fakeFactory) {
	lagging := make(map[int]bool, len(notReady))
	for _, i := range notReady {
		lagging[i] = true
	}

	factory := &fakeFactory{
		coins:          []domain.Coin{{Name: ""}},
		resolutionTime: map[int64]int64{},
		nextResolution: resolution,
		failPoke:       map[string]bool{},
	}
	binder := &fakeBinder{
		factory: factory,
		feeds:   map[string]*fakeFeed{},
		account: &fakeAccount{address: "0xKeeper", nonce: 40},
	}
	for i := 1; i <= n; i++ {
		feedAddr := fmt.Sprintf("0xfeed%d", i)
		marketID := int64(100 + i)
		factory.coins = append(factory.coins, domain.Coin{
			Name:            fmt.Sprintf("C%d", i),
			PriceFeed:       feedAddr,
			CurrentMarketID: big.NewInt(marketID),
		})
		factory.resolutionTime[marketID] = resolution
		if lagging[i] {
			binder.feeds[feedAddr] = newFakeFeed(1, resolution-300, resolution-10)
		} else {
			binder.feeds[feedAddr] = newFakeFeed(1, resolution-200, resolution-100, resolution+10, resolution+20)
		}
	}
	return binder, factory
}

func newTestOrchestrator(binder *fakeBinder, overrides map[OverrideKey]*big.Int) *MarketOrchestrator {
	sched := fixedScheduler(testNow)
	return NewMarketOrchestrator(binder, sched, NewRoundResolver(overrides, discardLogger()), discardLogger())
}

func TestPokeSkipsNotReadyCoins(t *testing.T) {
	resolution := testNow.Unix() - 60
	binder, factory := newCryptoFixture(6, resolution, 2, 5)
	factory.failPoke["C3"] = true
	o := newTestOrchestrator(binder, nil)

	res, err := o.Poke(context.Background(), "0xFactory")
	if err != nil {
		t.Fatalf("Poke: %v", err)
	}

	if res.Succeeded+res.Failed != 4 {
		t.Errorf("succeeded+failed = %d, want 4", res.Succeeded+res.Failed)
	}
	if res.Succeeded != 3 || res.Failed != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v, want 3 succeeded, 1 failed, 2 skipped", res)
	}
	if res.Policy != domain.PolicyLenientPoke {
		t.Errorf("policy = %q", res.Policy)
	}

	wantCoins := []string{"C1", "C3", "C4", "C6"}
	wantNonces := []uint64{40, 41, 42, 43}
	if len(factory.pokes) != len(wantCoins) {
		t.Fatalf("got %d pokes, want %d", len(factory.pokes), len(wantCoins))
	}
	next := fixedScheduler(testNow).UpcomingSettlement(testNow).Unix()
	for i, p := range factory.pokes {
		if p.Coin != wantCoins[i] {
			t.Errorf("poke %d coin = %s, want %s", i, p.Coin, wantCoins[i])
		}
		if factory.pokeNonces[i] != wantNonces[i] {
			t.Errorf("poke %d nonce = %d, want %d", i, factory.pokeNonces[i], wantNonces[i])
		}
		if p.NextResolutionTime != next {
			t.Errorf("poke %d next resolution = %d, want %d", i, p.NextResolutionTime, next)
		}
		// First round at or after the resolution time is sequence 3.
		if want := domain.EncodeRound(1, 3); p.RoundID.Cmp(want) != 0 {
			t.Errorf("poke %d round = %s, want %s", i, p.RoundID, want)
		}
	}
	if binder.account.queries != 1 {
		t.Errorf("nonce queried %d times, want once per batch", binder.account.queries)
	}
	if res.Submissions[1].OK() {
		t.Errorf("submission for C3 should record the failure: %+v", res.Submissions[1])
	}
}

func TestPokeSkipsIneligibleCoins(t *testing.T) {
	resolution := testNow.Unix() - 60
	binder, factory := newCryptoFixture(3, resolution)
	factory.resolutionTime[102] = testNow.Unix() + 3600
	o := newTestOrchestrator(binder, nil)

	res, err := o.Poke(context.Background(), "0xFactory")
	if err != nil {
		t.Fatalf("Poke: %v", err)
	}
	if res.Succeeded != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 2 succeeded and 1 skipped", res)
	}
	for _, p := range factory.pokes {
		if p.Coin == "C2" {
			t.Errorf("ineligible coin C2 was poked")
		}
	}
	if got := factory.pokeNonces; len(got) != 2 || got[0] != 40 || got[1] != 41 {
		t.Errorf("nonces = %v, want [40 41]", got)
	}
}

func TestPokeNeverTouchesPlaceholder(t *testing.T) {
	binder, factory := newCryptoFixture(0, testNow.Unix())
	o := newTestOrchestrator(binder, nil)

	res, err := o.Poke(context.Background(), "0xFactory")
	if err != nil {
		t.Fatalf("Poke: %v", err)
	}
	if res.Attempted() != 0 || len(factory.pokes) != 0 {
		t.Errorf("expected no submissions, got %+v", res)
	}
}

func TestResolveAbortsWhenAnyCoinUnresolved(t *testing.T) {
	resolution := testNow.Unix() - 60
	binder, factory := newCryptoFixture(3, resolution, 2)
	o := newTestOrchestrator(binder, nil)

	_, err := o.Resolve(context.Background(), "0xFactory")
	if !errors.Is(err, domain.ErrBatchAborted) {
		t.Fatalf("expected ErrBatchAborted, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("abort should carry the coin's cause, got %v", err)
	}
	var abort *domain.BatchAbortError
	if !errors.As(err, &abort) || abort.Coin != "C2" {
		t.Errorf("expected abort on C2, got %v", err)
	}
	if len(factory.resolved) != 0 {
		t.Errorf("no transaction may be sent on abort, got %d", len(factory.resolved))
	}
	if binder.account.queries != 0 {
		t.Errorf("nonce must not be fetched on abort")
	}
}

func TestResolveUsesOverrideForUnresolvedCoin(t *testing.T) {
	resolution := testNow.Unix() - 60
	binder, factory := newCryptoFixture(3, resolution, 2)
	pinned := domain.EncodeRound(1, 99)
	o := newTestOrchestrator(binder, map[OverrideKey]*big.Int{
		{ResolutionTime: resolution, Coin: "C2"}: pinned,
	})

	res, err := o.Resolve(context.Background(), "0xFactory")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 || res.Policy != domain.PolicyStrictResolve {
		t.Errorf("result = %+v, want one successful strict submission", res)
	}
	if len(factory.resolved) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(factory.resolved))
	}

	ids := factory.resolved[0]
	want := []*big.Int{big.NewInt(0), domain.EncodeRound(1, 3), pinned, domain.EncodeRound(1, 3)}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i].Cmp(want[i]) != 0 {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if factory.nonces[0] != 40 {
		t.Errorf("nonce = %d, want 40", factory.nonces[0])
	}
	if next := fixedScheduler(testNow).UpcomingSettlement(testNow).Unix(); factory.resolveAt[0] != next {
		t.Errorf("next resolution = %d, want %d", factory.resolveAt[0], next)
	}
}

func TestResolveAbortsOnFutureTarget(t *testing.T) {
	binder, factory := newCryptoFixture(2, testNow.Unix()+600)
	o := newTestOrchestrator(binder, nil)

	_, err := o.Resolve(context.Background(), "0xFactory")
	if !errors.Is(err, domain.ErrBatchAborted) {
		t.Fatalf("expected ErrBatchAborted, got %v", err)
	}
	if len(factory.resolved) != 0 {
		t.Errorf("no transaction may be sent")
	}
}

func TestResolveCountsFailedSubmission(t *testing.T) {
	binder, factory := newCryptoFixture(2, testNow.Unix()-60)
	factory.failCreate = true
	o := newTestOrchestrator(binder, nil)

	res, err := o.Resolve(context.Background(), "0xFactory")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Succeeded != 0 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 failed", res)
	}
}

func TestResolveAbortsWhenFeedCannotBind(t *testing.T) {
	resolution := testNow.Unix() - 60
	binder, factory := newCryptoFixture(2, resolution)
	delete(binder.feeds, "0xfeed2")
	o := newTestOrchestrator(binder, nil)

	_, err := o.Resolve(context.Background(), "0xFactory")
	var abort *domain.BatchAbortError
	if !errors.As(err, &abort) || abort.Coin != "C2" {
		t.Fatalf("err = %v, want abort on C2", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("abort should wrap the bind error, got %v", err)
	}
	if len(factory.resolved) != 0 {
		t.Errorf("no transaction may be sent on abort, got %d", len(factory.resolved))
	}
}
