package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketkeeper/internal/config"
	"github.com/alanyoungcy/marketkeeper/internal/crypto"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
	"github.com/alanyoungcy/marketkeeper/internal/server"
	"github.com/alanyoungcy/marketkeeper/internal/server/handler"
	"github.com/alanyoungcy/marketkeeper/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// JobExecutor runs one job. *service.JobService satisfies it.
type JobExecutor interface {
	Execute(ctx context.Context, job domain.Job) (domain.BatchReport, error)
}

// ServerMode serves the job adapter until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// RunMode executes every configured job once, in order, and returns the
// joined job errors.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	return runJobsOnce(ctx, deps.Jobs, a.cfg.Jobs, a.logger)
}

// ScheduleMode runs every configured job on its own interval until ctx is
// cancelled.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startSchedules(ctx, g, deps.Jobs)
	return ignoreCanceled(g.Wait())
}

// FullMode combines ServerMode and ScheduleMode.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startSchedules(ctx, g, deps.Jobs)
	return ignoreCanceled(g.Wait())
}

func runJobsOnce(ctx context.Context, jobs JobExecutor, cfgs []config.JobConfig, logger *slog.Logger) error {
	var errs []error
	for _, jc := range cfgs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report, err := jobs.Execute(ctx, jc.Job())
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", jc.Name, err))
			continue
		}
		logger.InfoContext(ctx, "app: job done",
			slog.String("job", jc.Name),
			slog.String("batch_id", report.BatchID),
			slog.Int("succeeded", report.Result.Succeeded),
			slog.Int("failed", report.Result.Failed),
			slog.Int("skipped", report.Result.Skipped),
		)
	}
	return errors.Join(errs...)
}

// startSchedules adds one ticker goroutine per configured job. A job runs
// once at start and then every Interval; a failing run is logged and retried
// at the next tick.
func (a *App) startSchedules(ctx context.Context, g *errgroup.Group, jobs JobExecutor) {
	for _, jc := range a.cfg.Jobs {
		g.Go(func() error {
			return scheduleJob(ctx, jobs, jc, a.logger)
		})
	}
	a.logger.InfoContext(ctx, "app: schedules started", slog.Int("jobs", len(a.cfg.Jobs)))
}

func scheduleJob(ctx context.Context, jobs JobExecutor, jc config.JobConfig, logger *slog.Logger) error {
	log := logger.With(slog.String("job", jc.Name))
	runOnce := func() {
		report, err := jobs.Execute(ctx, jc.Job())
		switch {
		case err == nil:
			log.InfoContext(ctx, "app: scheduled job done",
				slog.String("batch_id", report.BatchID),
				slog.Int("succeeded", report.Result.Succeeded),
				slog.Int("failed", report.Result.Failed),
				slog.Int("skipped", report.Result.Skipped),
			)
		case errors.Is(err, domain.ErrAccountBusy):
			log.WarnContext(ctx, "app: account busy, skipping tick")
		case ctx.Err() != nil:
		default:
			log.ErrorContext(ctx, "app: scheduled job failed", slog.String("error", err.Error()))
		}
	}

	runOnce()
	ticker := time.NewTicker(jc.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// startHTTPServer adds the HTTP server, its graceful shutdown and, when the
// Redis bus is wired, the WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	logger := a.logger.With(slog.String("component", "server"))

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, logger, ws.Config{
			Mode:      a.cfg.Mode,
			Account:   deps.Account.Address(),
			StartedAt: time.Now().UTC(),
			History:   deps.History,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	var batches *handler.BatchHandler
	if deps.History != nil || deps.Archive != nil {
		batches = handler.NewBatchHandler(deps.History, deps.Archive, logger)
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}
	if a.cfg.Server.HMACSecret != "" {
		srvCfg.Signature = &crypto.RequestAuth{
			Secret:    a.cfg.Server.HMACSecret,
			Tolerance: a.cfg.Server.HMACTolerance.Duration,
		}
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, logger),
		Jobs:    handler.NewJobHandler(deps.Jobs, logger),
		Batches: batches,
	}, hub, deps.RateLimiter, logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ignoreCanceled treats shutdown by context cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
