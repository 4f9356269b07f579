package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	s3blob "github.com/alanyoungcy/marketkeeper/internal/blob/s3"
	"github.com/alanyoungcy/marketkeeper/internal/cache/redis"
	"github.com/alanyoungcy/marketkeeper/internal/config"
	"github.com/alanyoungcy/marketkeeper/internal/crypto"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
	"github.com/alanyoungcy/marketkeeper/internal/notify"
	"github.com/alanyoungcy/marketkeeper/internal/platform/chain"
	"github.com/alanyoungcy/marketkeeper/internal/platform/sportsdataio"
	"github.com/alanyoungcy/marketkeeper/internal/platform/therundown"
	"github.com/alanyoungcy/marketkeeper/internal/server/handler"
	"github.com/alanyoungcy/marketkeeper/internal/service"
	"github.com/alanyoungcy/marketkeeper/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Account domain.Account
	Jobs    *service.JobService

	// Optional, nil when the backing store is disabled.
	Bus         *redis.BatchBus
	RateLimiter domain.RateLimiter
	History     handler.BatchLister
	Archive     handler.ReportLoader

	// Health probes keyed by dependency name.
	Checks map[string]handler.CheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: map[string]handler.CheckFunc{}}

	// --- Signing account and chain ---
	keyHex, err := cfg.Wallet.KeySource().Load()
	if err != nil {
		return fail(fmt.Errorf("wire: wallet: %w", err))
	}
	signer, err := crypto.NewSigner(keyHex, cfg.Chain.ChainID)
	if err != nil {
		return fail(fmt.Errorf("wire: signer: %w", err))
	}
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:   cfg.Chain.RPCURL,
		GasLimit: cfg.Chain.GasLimit,
	}, signer, logger.With(slog.String("component", "chain")))
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, chainClient.Close)
	deps.Account = chainClient.Account()

	var sinks []domain.ReportSink

	// --- PostgreSQL batch ledger ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		store := postgres.NewBatchStore(pgClient.Pool())
		sinks = append(sinks, store)
		deps.History = store
		deps.Checks["postgres"] = func(ctx context.Context) error { return pgClient.Pool().Ping(ctx) }
	}

	// --- Redis: account lock, batch bus, rate limiting ---
	var locks domain.LockManager = service.NewLocalLock()
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewBatchBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		sinks = append(sinks, deps.Bus)
		if deps.History == nil {
			deps.History = deps.Bus
		}
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		archive := s3blob.NewReportArchive(s3Client)
		sinks = append(sinks, archive)
		deps.Archive = archive
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		sinks = append(sinks, notify.NewNotifier(senders, cfg.Notify.Events, logger.With(slog.String("component", "notify"))))
	}

	// --- Schedule providers ---
	providers, err := wireProviders(cfg.Providers, logger)
	if err != nil {
		return fail(err)
	}

	// --- Services ---
	overrides, err := oracleOverrides(cfg.Oracle)
	if err != nil {
		return fail(err)
	}
	scheduler, err := service.NewScheduler()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	svcLogger := logger.With(slog.String("component", "service"))
	markets := service.NewMarketOrchestrator(chainClient, scheduler,
		service.NewRoundResolver(overrides, svcLogger), svcLogger)
	events := service.NewEventService(chainClient, providers, providerRouting(cfg.Providers.Routing), svcLogger)

	deps.Jobs = service.NewJobService(markets, events, deps.Account, locks, sinks, svcLogger)
	deps.Jobs.SetLockTTL(cfg.Lock.TTL.Duration)

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.String("account", deps.Account.Address()),
		slog.Int("report_sinks", len(sinks)),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
	)
	return deps, cleanup, nil
}

func wireProviders(cfg config.ProvidersConfig, logger *slog.Logger) ([]domain.ScheduleProvider, error) {
	sdio, err := sportsdataio.New(sportsdataio.Config{
		BaseURL: cfg.SportsDataIO.BaseURL,
		Keys: map[domain.Sport]string{
			domain.SportNFL: cfg.SportsDataIO.NFLKey,
			domain.SportMMA: cfg.SportsDataIO.MMAKey,
		},
		Timeout: cfg.Timeout.Duration,
	}, logger.With(slog.String("component", sportsdataio.Name)))
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	rundown, err := therundown.New(therundown.Config{
		BaseURL: cfg.TheRundown.BaseURL,
		APIKey:  cfg.TheRundown.APIKey,
		Timeout: cfg.Timeout.Duration,
	}, logger.With(slog.String("component", therundown.Name)))
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return []domain.ScheduleProvider{sdio, rundown}, nil
}

func providerRouting(routing map[string]string) map[domain.Sport]string {
	out := make(map[domain.Sport]string, len(routing))
	for sport, provider := range routing {
		out[domain.Sport(strings.ToLower(strings.TrimSpace(sport)))] = provider
	}
	return out
}

func oracleOverrides(cfg config.OracleConfig) (map[service.OverrideKey]*big.Int, error) {
	out := make(map[service.OverrideKey]*big.Int, len(cfg.Overrides))
	for i, o := range cfg.Overrides {
		id, err := o.ParseRoundID()
		if err != nil {
			return nil, fmt.Errorf("wire: oracle.overrides[%d]: %w", i, err)
		}
		out[service.OverrideKey{ResolutionTime: o.ResolutionTime, Coin: o.Coin}] = id
	}
	return out, nil
}
