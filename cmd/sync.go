package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jobsync/internal/formatter"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun runs one sync invocation and prints its progress.
//
// Outside serve there is no scheduler, so a paused run continues through a REST or
// loopback call to a running service, or on the next invocation.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) (err error) {
	trigger, err := models.ParseTrigger(cmd.String("trigger"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	svc, err := r.service(d)
	if err != nil {
		return err
	}

	selector, _ := r.newSelector(d, nil)
	sync := r.newSync(d, svc).WithContinuation(selector)
	if budget := cmd.Duration("budget"); budget > 0 {
		sync.WithBudget(budget)
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase.String())
		}
	}()

	r.logger.Info("starting sync", "trigger", trigger, "budget", sync.Budget())
	result, runErr := sync.Run(ctx, trigger, progress)
	close(progress)
	<-printed

	if saveErr := r.saveToken(d, svc); saveErr != nil {
		r.logger.Warn("token not saved", "error", saveErr)
	}

	if runErr != nil {
		if errors.Is(runErr, shared.ErrSyncLocked) {
			return r.writePlain("Sync already running, nothing to do\n")
		}
		if result == nil {
			return runErr
		}
		r.logger.Warn("sync interrupted", "error", runErr)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("%s", formatter.FormatRunResult(result))
}

// SyncStatus prints the lock, checkpoint, last run and cached continuation method.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	status, err := tasks.NewSync(d.store, d.runs).Status()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("Sync Status")
	r.writePlain("Running:      %v\n", status.Running)
	method := status.ContinuationMethod
	if method == "" {
		method = "(not detected)"
	}
	r.writePlain("Continuation: %s\n", method)

	if state := status.State; state != nil {
		r.writePlainln("Checkpoint")
		r.writePlain("  Run:         %s (%s)\n", state.RunID, state.Trigger)
		r.writePlain("  Next task:   %d\n", state.Index)
		r.writePlain("  Invocations: %d\n", state.Invocations)
		r.writePlain("  Elapsed:     %s\n", state.Elapsed.Round(time.Millisecond))
	}

	if run := status.LastRun; run != nil {
		r.writePlainln("Last Run")
		r.writePlain("  ID:          %s\n", run.ID())
		r.writePlain("  Status:      %s (%s)\n", run.Status(), run.Trigger())
		r.writePlain("  Invocations: %d\n", run.Invocations())
		r.writePlain("  Elapsed:     %s\n", run.Elapsed().Round(time.Millisecond))
		if run.ErrorMessage() != "" {
			r.writePlain("  Error:       %s\n", run.ErrorMessage())
		}
	}

	if status.LastSync != nil {
		r.writePlainln("Last Completed Sync")
		r.writePlain("%s", formatter.FormatRunResult(status.LastSync))
	}
	return nil
}

// SyncReset discards the checkpoint and lock so the next invocation starts a new run.
func (r *Runner) SyncReset(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	if err := tasks.NewSync(d.store, d.runs).Reset(); err != nil {
		return err
	}

	selector, _ := r.newSelector(d, nil)
	if err := selector.Invalidate(); err != nil {
		r.logger.Warn("failed to clear continuation cache", "error", err)
	}

	r.logger.Info("sync state reset")
	return r.writePlain("✓ Sync state reset\n")
}
