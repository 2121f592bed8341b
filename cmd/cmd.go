// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes local state: config file, state directory, history database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize config, state directory and history database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles session management against the hermes server
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the hermes session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in and store the session tokens",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Account username",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password (falls back to HERMES_PASSWORD)",
						Sources: cli.EnvVars("HERMES_PASSWORD"),
					},
				},
				Action: r.Login,
			},
			{
				Name:   "refresh",
				Usage:  "Force a token refresh",
				Action: r.Refresh,
			},
			{
				Name:   "logout",
				Usage:  "Discard the stored session",
				Action: r.Logout,
			},
			{
				Name:   "status",
				Usage:  "Show session and server health",
				Action: r.AuthStatus,
			},
		},
	}
}

// trackCommand manages the tracked set shared across processes
func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Manage the set of followed download jobs",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Start following a download job",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-verify",
						Usage: "Skip checking that the job exists on the server",
					},
				},
				Action: r.TrackAdd,
			},
			{
				Name:  "remove",
				Usage: "Stop following a download job",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.TrackRemove,
			},
			{
				Name:  "list",
				Usage: "List followed job IDs",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.TrackList,
			},
			{
				Name:   "clear",
				Usage:  "Stop following everything",
				Action: r.TrackClear,
			},
		},
	}
}

// queueCommand shows the server-side download queue
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Show the server download queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (queued, downloading, processing, completed, failed, cancelled)",
			},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of items"},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "tracked", Usage: "Only show followed jobs"},
		},
		Action: r.QueueList,
	}
}

// statusCommand reports one job, optionally following it to completion
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show one download job",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "Poll until the job finishes",
			},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Status,
	}
}

// getCommand submits a new server-side download
func getCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "get",
		Aliases: []string{"dl"},
		Usage:   "Submit a URL for download",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "Requested media format"},
			&cli.BoolFlag{Name: "subtitles", Usage: "Also download subtitles"},
			&cli.BoolFlag{Name: "thumbnail", Usage: "Also download the thumbnail"},
			&cli.BoolFlag{
				Name:  "no-track",
				Usage: "Do not follow the new job",
			},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.DownloadStart,
	}
}

// cancelCommand cancels a running or queued job
func cancelCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cancel",
		Usage: "Cancel a running or queued job",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Action: r.DownloadCancel,
	}
}

// historyCommand browses the local cache of finished downloads
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse finished downloads recorded locally",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded downloads, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Filter by final status"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of rows", Value: 20},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one recorded download",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Remove one recorded download",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryDelete,
			},
			{
				Name:   "clear",
				Usage:  "Remove every recorded download",
				Action: r.HistoryClear,
			},
		},
	}
}

// watchCommand launches the interactive TUI
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Watch followed downloads in an interactive view",
		Action: r.Watch,
	}
}
