package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for browsing local jobs and running manual syncs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) (err error) {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/jobsync-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	svc, err := r.service(d)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer func() {
		if saveErr := r.saveToken(d, svc); saveErr != nil {
			r.logger.Warn("token not saved", "error", saveErr)
		}
	}()

	selector, _ := r.newSelector(d, nil)
	sync := r.newSync(d, svc).WithContinuation(selector)

	model := ui.NewModel(ctx, d.jobs, sync)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
