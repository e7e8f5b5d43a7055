package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/jobsync/internal/formatter"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// JobsList prints local jobs.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	jobs, err := d.jobs.List(map[string]any{
		"source": models.SourceBullhorn,
		"status": cmd.String("status"),
		"limit":  int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(formatter.JobRecords(jobs), cmd.Bool("pretty"))
	}

	data, err := formatter.ExportToText(jobs)
	if err != nil {
		return err
	}
	r.writePlainHeader(fmt.Sprintf("Local Jobs (%d)", len(jobs)))
	return r.writePlain("%s", data)
}

// JobsExport writes local jobs to a file in the requested format.
func (r *Runner) JobsExport(ctx context.Context, cmd *cli.Command) (err error) {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	jobs, err := d.jobs.List(map[string]any{"source": models.SourceBullhorn, "status": cmd.String("status")})
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(format, jobs, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("jobs exported", "format", format, "path", path, "count", len(jobs))
	return r.writePlain("✓ Exported %d job(s) to %s\n", len(jobs), path)
}

// ApplicationsAdd collects an application as pending for the next sync.
func (r *Runner) ApplicationsAdd(ctx context.Context, cmd *cli.Command) (err error) {
	fields := models.ApplicationFields{
		JobSourceID: cmd.String("job"),
		FirstName:   cmd.String("first-name"),
		LastName:    cmd.String("last-name"),
		Email:       cmd.String("email"),
		Phone:       cmd.String("phone"),
	}

	if path := cmd.String("resume"); path != "" {
		resume, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: failed to read resume: %v", shared.ErrInvalidArgument, err)
		}
		fields.Resume = string(resume)
	}

	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	app := models.NewApplication(0, fields)
	if err := d.apps.Create(app); err != nil {
		return err
	}

	r.logger.Info("application collected", "id", app.ID(), "job", app.JobSourceID())
	return r.writePlain("✓ Application %s for %s queued for the next sync\n", app.ID(), app.Name())
}

// ApplicationsList prints collected applications and their sync state.
func (r *Runner) ApplicationsList(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	apps, err := d.apps.List(map[string]any{"status": cmd.String("status")})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type record struct {
			ID           string `json:"id"`
			JobSourceID  string `json:"job_source_id,omitempty"`
			Name         string `json:"name"`
			Email        string `json:"email"`
			Status       string `json:"status"`
			CandidateID  int    `json:"candidate_id,omitempty"`
			SubmissionID int    `json:"submission_id,omitempty"`
			Attempts     int    `json:"attempts"`
			LastError    string `json:"last_error,omitempty"`
		}
		records := make([]record, len(apps))
		for i, a := range apps {
			records[i] = record{
				ID:           a.ID(),
				JobSourceID:  a.JobSourceID(),
				Name:         a.Name(),
				Email:        a.Email(),
				Status:       a.Status(),
				CandidateID:  a.CandidateID(),
				SubmissionID: a.SubmissionID(),
				Attempts:     a.Attempts(),
				LastError:    a.LastError(),
			}
		}
		return r.writeJSON(records, true)
	}

	r.writePlainHeader(fmt.Sprintf("Applications (%d)", len(apps)))
	for _, a := range apps {
		job := a.JobSourceID()
		if job == "" {
			job = "-"
		}
		r.writePlain("%-8s job %-8s %s <%s>", a.Status(), job, a.Name(), a.Email())
		switch {
		case a.SubmissionID() != 0:
			r.writePlain(" submission #%d", a.SubmissionID())
		case a.LastError() != "":
			r.writePlain(" (%d attempt(s): %s)", a.Attempts(), a.LastError())
		}
		r.writePlain("\n")
	}
	return nil
}
