package main

import (
	"context"
	"fmt"

	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Login exchanges a username and password for a session and stores it.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	username := cmd.String("username")
	password := cmd.String("password")
	if password == "" {
		return fmt.Errorf("%w: password (use --password or HERMES_PASSWORD)", shared.ErrMissingArgument)
	}

	r.logger.Info("signing in", "username", username)

	if _, err := r.client.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return r.writePlain("✓ Signed in as %s\n", username)
}

// Refresh rotates the stored token pair without waiting for a 401.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.ForceRefresh(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	return r.writePlain("✓ Session refreshed\n")
}

// Logout discards the stored session.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the local session state and server health.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if _, ok := r.creds.AccessToken(); ok {
		r.writePlain("Session: ✓ signed in\n")
	} else {
		r.writePlain("Session: ✗ not signed in\n")
	}

	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	status, ok := health["status"].(string)
	if !ok {
		status = "unknown"
	}
	return r.writePlain("Server: ✓ reachable (status: %s)\n", status)
}
