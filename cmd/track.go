package main

import (
	"context"
	"fmt"

	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// TrackAdd starts following a job. The job is looked up on the server first
// so typos fail loudly instead of producing a permanently empty row.
func (r *Runner) TrackAdd(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	if !cmd.Bool("no-verify") {
		status, err := r.client.Download(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to verify job %s: %w", id, err)
		}
		r.logger.Debug("verified job", "id", id, "status", status.Status)
	}

	reg, err := r.registry()
	if err != nil {
		return err
	}
	if err := reg.Add(id); err != nil {
		return err
	}

	return r.writePlain("✓ Following %s\n", id)
}

// TrackRemove stops following a job.
func (r *Runner) TrackRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	reg, err := r.registry()
	if err != nil {
		return err
	}
	if err := reg.Remove(id); err != nil {
		return err
	}

	return r.writePlain("✓ Stopped following %s\n", id)
}

// TrackList prints the followed job IDs.
func (r *Runner) TrackList(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.registry()
	if err != nil {
		return err
	}

	ids := reg.List()
	if cmd.Bool("json") {
		return r.writeJSON(ids, true)
	}

	if len(ids) == 0 {
		return r.writePlain("Not following any jobs\n")
	}
	for _, id := range ids {
		r.writePlain("%s\n", id)
	}
	return nil
}

// TrackClear stops following everything.
func (r *Runner) TrackClear(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.registry()
	if err != nil {
		return err
	}
	if err := reg.Clear(); err != nil {
		return err
	}
	return r.writePlain("✓ Cleared followed jobs\n")
}
