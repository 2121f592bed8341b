package main

import (
	"context"
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/poll"
	"github.com/hermesdl/hermesctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch runs the interactive TUI over the followed jobs.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.registry()
	if err != nil {
		return err
	}
	history, err := r.historyRepo()
	if err != nil {
		r.logger.Warn("history cache unavailable", "error", err)
		history = nil
	}

	// Fetch the whole queue and keep only followed jobs, so one request
	// serves every row on screen.
	fetch := func(ctx context.Context) ([]api.DownloadStatus, error) {
		queue, err := r.client.Queue(ctx, api.QueueQuery{})
		if err != nil {
			return nil, err
		}
		tracked := reg.List()
		items := slices.DeleteFunc(slices.Clone(queue.Items), func(item api.DownloadStatus) bool {
			return !slices.Contains(tracked, item.DownloadID)
		})
		return items, nil
	}

	controller := poll.NewController(fetch, poll.WithControllerLogger(r.logger))

	model := ui.NewModel(ctx, controller, reg, r.client, history, r.logger)
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
