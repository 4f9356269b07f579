package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/marketkeeper/internal/config"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
	"github.com/alanyoungcy/marketkeeper/internal/service"
)

type fakeExecutor struct {
	mu   sync.Mutex
	jobs []domain.Job
	errs map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, job domain.Job) (domain.BatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return domain.BatchReport{BatchID: "b-" + job.ID}, f.errs[job.ID]
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadJobs(t *testing.T, body string) []config.JobConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keeper.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg.Jobs
}

const twoJobs = `
[[jobs]]
name = "poke-crypto"
method = "poke"
contract_address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
interval = "20ms"

[[jobs]]
name = "create-nfl"
method = "create"
sport = "NFL"
contract_address = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
days_in_advance = 7
start_buffer = "1m"
affiliate_ids = [3, 1]
interval = "1h"
`

func TestRunJobsOnceContinuesAfterFailure(t *testing.T) {
	jobs := loadJobs(t, twoJobs)
	exec := &fakeExecutor{errs: map[string]error{
		"poke-crypto": &domain.BatchAbortError{Coin: "ETH", Err: errors.New("boom")},
	}}

	err := runJobsOnce(context.Background(), exec, jobs, discardLogger())
	if !errors.Is(err, domain.ErrBatchAborted) || !strings.Contains(err.Error(), "job poke-crypto") {
		t.Fatalf("err = %v", err)
	}
	if len(exec.jobs) != 2 {
		t.Fatalf("executed %d jobs, want 2", len(exec.jobs))
	}

	create := exec.jobs[1]
	if create.Method != domain.MethodCreate || create.Sport != domain.SportNFL ||
		create.StartBuffer != time.Minute || create.DaysInAdvance != 7 || len(create.AffiliateIDs) != 2 {
		t.Errorf("create job = %+v", create)
	}
}

func TestScheduleJobTicksUntilCancelled(t *testing.T) {
	jobs := loadJobs(t, twoJobs)
	exec := &fakeExecutor{errs: map[string]error{"poke-crypto": domain.ErrAccountBusy}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduleJob(ctx, exec, jobs[0], discardLogger()) }()

	deadline := time.After(2 * time.Second)
	for exec.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs", exec.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("scheduleJob returned %v", err)
	}
}

func TestOracleOverrides(t *testing.T) {
	got, err := oracleOverrides(config.OracleConfig{Overrides: []config.OracleOverride{
		{Coin: "ETH", ResolutionTime: 1700236800, RoundID: "0x20000000000001a2b"},
		{Coin: "BTC", ResolutionTime: 1700236800, RoundID: "36893488147419103232"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	eth := got[service.OverrideKey{ResolutionTime: 1700236800, Coin: "ETH"}]
	if eth == nil || eth.Text(16) != "20000000000001a2b" {
		t.Errorf("ETH override = %v", eth)
	}
	if btc := got[service.OverrideKey{ResolutionTime: 1700236800, Coin: "BTC"}]; btc == nil || btc.String() != "36893488147419103232" {
		t.Errorf("BTC override = %v", btc)
	}

	if _, err := oracleOverrides(config.OracleConfig{Overrides: []config.OracleOverride{{Coin: "ETH", RoundID: "latest"}}}); err == nil {
		t.Error("expected error for non-numeric round id")
	}
}

func TestProviderRouting(t *testing.T) {
	got := providerRouting(map[string]string{" NBA ": "sportsdataio", "mlb": "therundown"})
	if got[domain.SportNBA] != "sportsdataio" || got[domain.SportMLB] != "therundown" {
		t.Errorf("routing = %v", got)
	}
}

func TestIgnoreCanceled(t *testing.T) {
	if err := ignoreCanceled(context.Canceled); err != nil {
		t.Errorf("canceled: %v", err)
	}
	boom := errors.New("listen: address in use")
	if err := ignoreCanceled(boom); err != boom {
		t.Errorf("other: %v", err)
	}
}
