package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockExcludesSecondHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "account:0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !mr.Exists("lock:" + key) {
		t.Fatalf("lock key not written")
	}

	if _, err := lm.Acquire(ctx, key, time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	unlock2()
}

func TestLockExpiresAndStaleUnlockKeepsNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	staleUnlock, err := lm.Acquire(ctx, "account:a", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	unlock, err := lm.Acquire(ctx, "account:a", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	defer unlock()

	// The expired holder's unlock must not release the new holder's lock.
	staleUnlock()
	if !mr.Exists("lock:account:a") {
		t.Fatal("stale unlock released the new holder's lock")
	}
}

func TestBatchBusRecordPublishesAndStreams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewBatchBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, ChannelBatch)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	reports := []domain.BatchReport{
		{BatchID: "b1", Method: domain.MethodPoke, Result: domain.BatchResult{Policy: domain.PolicyLenientPoke, Succeeded: 3}},
		{BatchID: "b2", Method: domain.MethodResolve, Error: "batch aborted on coin ETH: boom"},
	}
	for _, r := range reports {
		if err := bus.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	select {
	case payload := <-sub:
		var got domain.BatchReport
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.BatchID != "b1" || got.Result.Succeeded != 3 {
			t.Errorf("published %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	recent, err := bus.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 || recent[0].BatchID != "b2" || recent[1].BatchID != "b1" {
		t.Fatalf("recent = %+v, want b2 then b1", recent)
	}
}

func TestBatchBusListRecentSkipsForeignEntries(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewBatchBus(c)
	ctx := context.Background()

	if err := bus.StreamAppend(ctx, StreamBatches, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := bus.Record(ctx, domain.BatchReport{BatchID: "ok"}); err != nil {
		t.Fatal(err)
	}

	recent, err := bus.ListRecent(ctx, 5)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 1 || recent[0].BatchID != "ok" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d rejected", i)
		}
		now = now.Add(time.Second)
	}

	if ok, _ := rl.Allow(ctx, "api:10.0.0.1", 3, time.Minute); ok {
		t.Fatal("fourth request inside the window admitted")
	}
	if ok, _ := rl.Allow(ctx, "api:10.0.0.2", 3, time.Minute); !ok {
		t.Fatal("other client rejected")
	}

	now = now.Add(time.Minute)
	if ok, _ := rl.Allow(ctx, "api:10.0.0.1", 3, time.Minute); !ok {
		t.Fatal("request after the window rejected")
	}
}
