package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/scheduler"
	"github.com/desertthunder/jobsync/internal/server"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP service, the periodic sync and the config watcher until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	svc, err := r.service(d)
	if err != nil {
		return err
	}

	if purged, err := d.store.Purge(); err != nil {
		r.logger.Warn("failed to purge expired transients", "error", err)
	} else if purged > 0 {
		r.logger.Debug("purged expired transients", "count", purged)
	}

	sched := scheduler.New(shared.WithLogger(r.logger, "component", "scheduler"))
	selector, cron := r.newSelector(d, sched)
	sync := r.newSync(d, svc).WithContinuation(selector)

	run := func(ctx context.Context, trigger models.Trigger) {
		r.runInBackground(ctx, sync, d, svc, trigger)
	}
	cron.Bind(func(ctx context.Context) { run(ctx, models.TriggerCron) })

	if !cmd.Bool("no-schedule") && r.config.Sync.Schedule != "" {
		if err := sched.Every(r.config.Sync.Schedule, func() { run(ctx, models.TriggerSchedule) }); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if !cmd.Bool("no-watch") && r.configPath != "" {
		if _, statErr := os.Stat(r.configPath); statErr == nil {
			go r.watch(ctx, sched, cmd.Bool("no-schedule"))
		}
	}

	logger := shared.WithLogger(r.logger, "component", "http")
	syncHandler := server.NewSyncHandler(ctx, sync, d.store, r.config.Sync.Token, logger).
		WithCompletion(func(models.Trigger, *tasks.RunResult, error) { r.persistToken(d, svc) })
	defer syncHandler.Wait()

	router := server.NewBasicRouter()
	router.Use(server.Logging(logger), server.Recover(logger))
	router.Handler(syncHandler)
	router.Handler(server.NewJobsHandler(d.jobs, d.apps, logger))

	if r.config.Sync.Token == "" {
		r.logger.Warn("sync.token is empty, REST continuations are rejected")
	}
	r.logger.Info("serving", "routes", router.Patterns(), "schedule", sched.Spec())

	return server.Serve(ctx, server.New(r.config.Server, router), logger)
}

// runInBackground runs one invocation for the scheduler or a cron continuation.
func (r *Runner) runInBackground(ctx context.Context, sync *tasks.Sync, d *deps, svc services.Service, trigger models.Trigger) {
	result, err := sync.Run(ctx, trigger, nil)
	switch {
	case errors.Is(err, shared.ErrSyncLocked):
		r.logger.Info("sync skipped, already running", "trigger", trigger)
	case err != nil:
		r.logger.Error("sync failed", "trigger", trigger, "error", err)
	default:
		r.logger.Info("sync invocation finished", "trigger", trigger, "run", result.RunID, "status", result.Status)
	}

	r.persistToken(d, svc)
}

// persistToken saves the Bullhorn token after a background run, logging failures.
func (r *Runner) persistToken(d *deps, svc services.Service) {
	if err := r.saveToken(d, svc); err != nil {
		r.logger.Warn("token not saved", "error", err)
	}
}

// watch reapplies the sync schedule whenever the config file changes.
func (r *Runner) watch(ctx context.Context, sched *scheduler.Scheduler, noSchedule bool) {
	logger := shared.WithLogger(r.logger, "component", "config")
	err := shared.WatchConfig(ctx, r.configPath, logger, func(config *shared.Config) {
		if noSchedule {
			return
		}
		if err := sched.Apply(config.Sync.Schedule); err != nil {
			logger.Warn("schedule not applied", "schedule", config.Sync.Schedule, "error", err)
			return
		}
		logger.Info("schedule applied", "schedule", sched.Spec())
	})
	if err != nil {
		logger.Error("config watcher stopped", "error", err)
	}
}
