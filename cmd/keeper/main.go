// Command keeper is the entry point for the market keeper. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// "keeper encrypt-key -out FILE" seals KEEPER_WALLET_PRIVATE_KEY under
// KEEPER_WALLET_KEY_PASSWORD for use as wallet.encrypted_key_path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/marketkeeper/internal/app"
	"github.com/alanyoungcy/marketkeeper/internal/config"
	"github.com/alanyoungcy/marketkeeper/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-key" {
		if err := encryptKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (server, run, schedule, full)")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("keeper starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", redacted),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := application.Run(ctx)
	stop()
	application.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("keeper exited with error", slog.String("error", runErr.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", runErr)
		os.Exit(1)
	}
	logger.Info("keeper stopped")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "keeper-key.json", "where to write the encrypted key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := os.Getenv("KEEPER_WALLET_PRIVATE_KEY")
	password := os.Getenv("KEEPER_WALLET_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("KEEPER_WALLET_PRIVATE_KEY and KEEPER_WALLET_KEY_PASSWORD must be set")
	}

	// The chain id does not affect the address.
	signer, err := crypto.NewSigner(key, 1)
	if err != nil {
		return err
	}
	blob, err := crypto.EncryptKey(key, password, signer.Address().Hex())
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s for %s\n", *out, signer.Address().Hex())
	return nil
}
