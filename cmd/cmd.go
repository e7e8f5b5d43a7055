// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles Bullhorn authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Bullhorn authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Obtain a Bullhorn token with the configured API user, or through the browser",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "browser",
						Usage: "Authorize in the browser and wait for the OAuth callback",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check that the stored token opens a Bullhorn session",
				Action: r.AuthStatus,
			},
		},
	}
}

// syncCommand runs and inspects the time-boxed sync.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run and inspect the Bullhorn sync",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one sync invocation; a paused run resumes on the next invocation",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "budget",
						Usage: "Time budget for this invocation (default: sync.time_budget)",
					},
					&cli.StringFlag{
						Name:  "trigger",
						Usage: "Trigger recorded on the run (manual, schedule, rest, loopback, cron)",
						Value: "manual",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the run result as JSON",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "status",
				Usage: "Show the lock, checkpoint, last run and cached continuation method",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncStatus,
			},
			{
				Name:   "reset",
				Usage:  "Discard the checkpoint and lock so the next invocation starts fresh",
				Action: r.SyncReset,
			},
		},
	}
}

// jobsCommand reads the local job board.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Local job board operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List local jobs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (open, closed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.JobsList,
			},
			{
				Name:  "export",
				Usage: "Export local jobs to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (json, csv, markdown, text)",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: jobs.<ext>)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (open, closed)",
					},
				},
				Action: r.JobsExport,
			},
		},
	}
}

// applicationsCommand manages collected applications.
func applicationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "applications",
		Aliases: []string{"apps"},
		Usage:   "Applications waiting to be pushed to Bullhorn",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Collect an application for the next sync",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "job", Usage: "Bullhorn job order ID; empty creates the candidate only"},
					&cli.StringFlag{Name: "first-name", Usage: "Applicant first name", Required: true},
					&cli.StringFlag{Name: "last-name", Usage: "Applicant last name"},
					&cli.StringFlag{Name: "email", Usage: "Applicant email", Required: true},
					&cli.StringFlag{Name: "phone", Usage: "Applicant phone"},
					&cli.StringFlag{Name: "resume", Usage: "Path to a plain-text resume"},
				},
				Action: r.ApplicationsAdd,
			},
			{
				Name:  "list",
				Usage: "List collected applications",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, synced, failed)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ApplicationsList,
			},
		},
	}
}

// serveCommand runs the HTTP service with the scheduler.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve continuation endpoints and the job feed, and run the scheduled sync",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Do not register the periodic sync",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload the config file when it changes",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for the local job board and manual syncs",
		Action:  r.TUI,
	}
}
