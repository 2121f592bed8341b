package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/poll"
	"github.com/hermesdl/hermesctl/internal/progress"
	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// QueueList prints the server's download queue.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	if status := cmd.String("status"); status != "" {
		normalized := api.NormalizeStatus(status)
		if !normalized.Active() && !normalized.Terminal() && normalized != api.StatusQueued {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
	}

	queue, err := r.client.Queue(ctx, api.QueueQuery{
		Status: cmd.String("status"),
		Limit:  int(cmd.Int("limit")),
		Offset: int(cmd.Int("offset")),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch queue: %w", err)
	}

	items := queue.Items
	if cmd.Bool("tracked") {
		reg, err := r.registry()
		if err != nil {
			return err
		}
		tracked := reg.List()
		items = slices.DeleteFunc(slices.Clone(items), func(item api.DownloadStatus) bool {
			return !slices.Contains(tracked, item.DownloadID)
		})
	}

	if cmd.Bool("json") {
		queue.Items = items
		return r.writeJSON(queue, true)
	}

	r.writePlain("Queue: %d total (%d pending, %d active, %d completed, %d failed)\n",
		queue.TotalItems, queue.Pending, queue.Active, queue.Completed, queue.Failed)
	if len(items) == 0 {
		return r.writePlain("No matching jobs\n")
	}

	for _, item := range items {
		r.writePlain("%s\n", formatJob(&item, valueOrZero(item.Percent())))
	}
	return nil
}

// Status prints one job, optionally following it until it finishes.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	if !cmd.Bool("follow") {
		status, err := r.client.Download(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch job %s: %w", id, err)
		}
		if cmd.Bool("json") {
			return r.writeJSON(status, true)
		}
		return r.writePlain("%s\n", formatJob(status, valueOrZero(status.Percent())))
	}

	return r.follow(ctx, id, cmd.Bool("json"))
}

// follow polls a job until it reaches a terminal status, printing each report
// with smoothed progress and recording the outcome locally.
func (r *Runner) follow(ctx context.Context, id string, asJSON bool) error {
	var mark float64
	var display float64

	poller := poll.NewJobPoller(id, r.client.Download, poll.WithJobLogger(r.logger))
	final, err := poller.Run(ctx, func(status *api.DownloadStatus) {
		mark, display = progress.Compute(mark, progress.Observation{
			Status:  status.Status,
			Percent: status.Percent(),
		})
		if asJSON {
			r.writeJSON(status, false)
			return
		}
		r.writePlain("%s\n", formatJob(status, display))
	})
	if err != nil {
		return fmt.Errorf("failed to follow job %s: %w", id, err)
	}

	if repo, err := r.historyRepo(); err != nil {
		r.logger.Warn("could not record finished download", "id", id, "error", err)
	} else if err := repo.Record(final, display); err != nil {
		r.logger.Warn("could not record finished download", "id", id, "error", err)
	}

	if final.Status == api.StatusCompleted {
		return nil
	}
	return fmt.Errorf("job %s ended %s: %s", id, final.Status, final.Error)
}

// DownloadStart submits a URL and, unless told otherwise, follows the new job.
func (r *Runner) DownloadStart(ctx context.Context, cmd *cli.Command) error {
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	resp, err := r.client.StartDownload(ctx, api.DownloadRequest{
		URL:               url,
		Format:            cmd.String("format"),
		DownloadSubtitles: cmd.Bool("subtitles"),
		DownloadThumbnail: cmd.Bool("thumbnail"),
	})
	if err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	if !cmd.Bool("no-track") {
		reg, err := r.registry()
		if err != nil {
			return err
		}
		if err := reg.Add(resp.DownloadID); err != nil {
			r.logger.Warn("failed to follow new job", "id", resp.DownloadID, "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(resp, true)
	}
	return r.writePlain("✓ Download started: %s\n", resp.DownloadID)
}

// DownloadCancel aborts a job on the server.
func (r *Runner) DownloadCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	resp, err := r.client.CancelDownload(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}

	return r.writePlain("✓ Cancelled %s: %s\n", resp.DownloadID, resp.Message)
}

// formatJob renders one status line for plain output.
func formatJob(status *api.DownloadStatus, display float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %6.1f%%  %s", status.Status, display, status.Title())
	if status.Error != "" {
		fmt.Fprintf(&b, "  (%s)", status.Error)
	} else if status.Message != "" {
		fmt.Fprintf(&b, "  (%s)", status.Message)
	}
	return b.String()
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
