// Package config defines the top-level configuration for the market keeper
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketkeeper/internal/crypto"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KEEPER_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Wallet    WalletConfig    `toml:"wallet"`
	Oracle    OracleConfig    `toml:"oracle"`
	Providers ProvidersConfig `toml:"providers"`
	Lock      LockConfig      `toml:"lock"`
	Jobs      []JobConfig     `toml:"jobs"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint and transaction parameters.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// GasLimit is used for every transaction when non-zero; otherwise the
	// node's estimate is used.
	GasLimit uint64 `toml:"gas_limit"`
}

// WalletConfig holds the signing key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// KeySource returns the wallet's private key source.
func (w WalletConfig) KeySource() crypto.KeySource {
	return crypto.KeySource{
		RawPrivateKey:    w.PrivateKey,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	}
}

// OracleConfig holds manual round pins.
type OracleConfig struct {
	Overrides []OracleOverride `toml:"overrides"`
}

// OracleOverride pins the round used for a coin at a resolution time.
type OracleOverride struct {
	Coin           string `toml:"coin"`
	ResolutionTime int64  `toml:"resolution_time"`
	RoundID        string `toml:"round_id"`
}

// ParseRoundID parses RoundID as decimal or 0x-prefixed hex.
func (o OracleOverride) ParseRoundID() (*big.Int, error) {
	id, ok := new(big.Int).SetString(o.RoundID, 0)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid round_id %q", o.RoundID)
	}
	return id, nil
}

// ProvidersConfig holds the schedule data sources and the sport routing.
type ProvidersConfig struct {
	// Routing overrides the default sport -> provider table.
	Routing      map[string]string  `toml:"routing"`
	Timeout      duration           `toml:"timeout"`
	SportsDataIO SportsDataIOConfig `toml:"sportsdataio"`
	TheRundown   TheRundownConfig   `toml:"therundown"`
}

// SportsDataIOConfig holds per-sport subscription keys.
type SportsDataIOConfig struct {
	BaseURL string `toml:"base_url"`
	NFLKey  string `toml:"nfl_key"`
	MMAKey  string `toml:"mma_key"`
}

// TheRundownConfig holds RapidAPI credentials.
type TheRundownConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// LockConfig controls the per-account batch lock.
type LockConfig struct {
	TTL duration `toml:"ttl"`
}

// JobConfig is a job run by the run and schedule modes.
type JobConfig struct {
	Name            string   `toml:"name"`
	Method          string   `toml:"method"`
	Sport           string   `toml:"sport"`
	ContractAddress string   `toml:"contract_address"`
	DaysInAdvance   int      `toml:"days_in_advance"`
	StartBuffer     duration `toml:"start_buffer"`
	AffiliateIDs    []int    `toml:"affiliate_ids"`
	// Interval is how often schedule mode runs the job.
	Interval duration `toml:"interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the batch ledger.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for report archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is accepted as a bearer token.
	APIKey string `toml:"api_key"`
	// HMACSecret, when set, enables signed requests.
	HMACSecret    string   `toml:"hmac_secret"`
	HMACTolerance duration `toml:"hmac_tolerance"`
	// RateLimit is requests per minute per client IP. It needs Redis;
	// 0 disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 137,
		},
		Providers: ProvidersConfig{
			Routing: map[string]string{},
			Timeout: duration{30 * time.Second},
		},
		Lock: LockConfig{
			TTL: duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "keeper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "keeper-reports",
			Prefix:         "batches",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:          8080,
			HMACTolerance: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"batch_aborted", "batch_failed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"run":      true,
	"schedule": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, run, schedule, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Wallet
	if !c.Wallet.KeySource().Configured() {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Oracle overrides
	for i, o := range c.Oracle.Overrides {
		if o.Coin == "" {
			errs = append(errs, fmt.Sprintf("oracle.overrides[%d]: coin must not be empty", i))
		}
		if o.ResolutionTime <= 0 {
			errs = append(errs, fmt.Sprintf("oracle.overrides[%d]: resolution_time must be positive", i))
		}
		if _, err := o.ParseRoundID(); err != nil {
			errs = append(errs, fmt.Sprintf("oracle.overrides[%d]: %v", i, err))
		}
	}

	// Providers
	for sport, provider := range c.Providers.Routing {
		if _, err := domain.ParseSport(sport); err != nil {
			errs = append(errs, fmt.Sprintf("providers.routing: %v", err))
		}
		switch strings.ToLower(provider) {
		case "sportsdataio", "therundown":
		default:
			errs = append(errs, fmt.Sprintf("providers.routing: unknown provider %q for %s", provider, sport))
		}
	}

	// Jobs
	if (mode == "run" || mode == "schedule") && len(c.Jobs) == 0 {
		errs = append(errs, "jobs: at least one job is required for mode "+mode)
	}
	for i, j := range c.Jobs {
		errs = append(errs, j.validate(i, mode)...)
	}

	// Lock
	if c.Lock.TTL.Duration <= 0 {
		errs = append(errs, "lock: ttl must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: rate_limit must not be negative, got %d", c.Server.RateLimit))
		}
		if c.Server.HMACSecret != "" && c.Server.HMACTolerance.Duration <= 0 {
			errs = append(errs, "server: hmac_tolerance must be > 0 when hmac_secret is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (j JobConfig) validate(i int, mode string) []string {
	var errs []string
	prefix := fmt.Sprintf("jobs[%d]", i)
	if j.Name != "" {
		prefix = fmt.Sprintf("jobs[%d] (%s)", i, j.Name)
	}

	method, err := domain.ParseMethod(j.Method)
	if err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
	}
	if j.Sport != "" {
		if _, err := domain.ParseSport(j.Sport); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
		}
	}
	if !common.IsHexAddress(j.ContractAddress) {
		errs = append(errs, fmt.Sprintf("%s: contract_address %q is not a hex address", prefix, j.ContractAddress))
	}
	if method == domain.MethodCreate && j.DaysInAdvance <= 0 {
		errs = append(errs, prefix+": days_in_advance must be > 0 for create")
	}
	if mode == "schedule" || mode == "full" {
		if j.Interval.Duration <= 0 {
			errs = append(errs, prefix+": interval must be > 0 for scheduled jobs")
		}
	}
	return errs
}

// Job converts the job config into a domain job.
func (j JobConfig) Job() domain.Job {
	method, _ := domain.ParseMethod(j.Method)
	return domain.Job{
		ID:              j.Name,
		Method:          method,
		Sport:           domain.Sport(strings.ToLower(strings.TrimSpace(j.Sport))),
		ContractAddress: j.ContractAddress,
		DaysInAdvance:   j.DaysInAdvance,
		StartBuffer:     j.StartBuffer.Duration,
		AffiliateIDs:    j.AffiliateIDs,
	}
}
