package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	// Wallet
	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	// Providers
	redact(&out.Providers.SportsDataIO.NFLKey)
	redact(&out.Providers.SportsDataIO.MMAKey)
	redact(&out.Providers.TheRundown.APIKey)
	if cfg.Providers.Routing != nil {
		out.Providers.Routing = make(map[string]string, len(cfg.Providers.Routing))
		for k, v := range cfg.Providers.Routing {
			out.Providers.Routing[k] = v
		}
	}

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)
	redact(&out.Server.HMACSecret)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Jobs != nil {
		out.Jobs = append([]JobConfig(nil), cfg.Jobs...)
	}
	if cfg.Oracle.Overrides != nil {
		out.Oracle.Overrides = append([]OracleOverride(nil), cfg.Oracle.Overrides...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
