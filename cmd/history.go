package main

import (
	"context"
	"fmt"

	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recorded downloads, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.historyRepo()
	if err != nil {
		return err
	}

	entries, err := repo.List(cmd.String("status"), int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		return r.writePlain("No recorded downloads\n")
	}
	for _, entry := range entries {
		title := entry.Title
		if title == "" {
			title = entry.ID
		}
		r.writePlain("%s  %-12s %6.1f%%  %s\n",
			entry.RecordedAt.Local().Format("2006-01-02 15:04"), entry.Status, entry.Progress, title)
	}
	return nil
}

// HistoryShow prints one recorded download in full.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	repo, err := r.historyRepo()
	if err != nil {
		return err
	}
	entry, err := repo.Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entry, true)
	}

	r.writePlain("ID:       %s\n", entry.ID)
	r.writePlain("Title:    %s\n", entry.Title)
	r.writePlain("URL:      %s\n", entry.URL)
	r.writePlain("Status:   %s\n", entry.Status)
	r.writePlain("Progress: %.1f%%\n", entry.Progress)
	if entry.FileSize != nil {
		r.writePlain("Size:     %d bytes\n", *entry.FileSize)
	}
	if entry.Duration != nil {
		r.writePlain("Duration: %.0fs\n", *entry.Duration)
	}
	if entry.ErrorMessage != "" {
		r.writePlain("Error:    %s\n", entry.ErrorMessage)
	}
	r.writePlain("Recorded: %s\n", entry.RecordedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// HistoryDelete removes one recorded download.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	repo, err := r.historyRepo()
	if err != nil {
		return err
	}
	if err := repo.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %s from history\n", id)
}

// HistoryClear removes every recorded download.
func (r *Runner) HistoryClear(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.historyRepo()
	if err != nil {
		return err
	}
	if err := repo.Clear(); err != nil {
		return err
	}
	return r.writePlain("✓ History cleared\n")
}
