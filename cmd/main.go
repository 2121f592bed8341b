package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/auth"
	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	godotenv.Load()

	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	creds := auth.NewStore(config.StateDir(), logger)

	httpClient := &http.Client{Timeout: time.Duration(config.Server.TimeoutSeconds) * time.Second}
	client := api.NewClient(config.Server.BaseURL, creds,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
		api.WithRateLimit(config.Server.RateLimit),
		api.WithSessionExpiredHook(func() {
			logger.Warn("session expired, run 'hermesctl auth login' to sign in again")
		}),
	)

	runner := NewRunner(RunnerOpts{
		Config: config,
		Client: client,
		Creds:  creds,
		Logger: logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "hermesctl",
		Usage:    "Track and manage hermes download jobs from the terminal",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrSessionExpired) {
			logger.Error("not signed in, run 'hermesctl auth login'")
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}
