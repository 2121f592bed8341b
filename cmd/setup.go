package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file, state directory and history database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if loaded, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
		} else {
			config = loaded
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if loaded, err := shared.LoadConfig(configPath); err == nil {
				config = loaded
			}
		}
	}
	r.config = config

	stateDir := config.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	r.logger.Info("state directory ready", "path", stateDir)

	r.logger.Info("initializing history database", "path", config.HistoryDBPath())
	db, err := shared.NewDatabase(config.HistoryDBPath())
	if err != nil {
		return fmt.Errorf("failed to create history database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Setup complete\n")
	r.writePlain("Config: %s\n", configPath)
	r.writePlain("State:  %s\n", stateDir)
	return nil
}
