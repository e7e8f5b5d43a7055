package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	ConfirmView
	SyncView
	ResultView
)

const maxLogLines = 8

// JobLister reads the local job board.
type JobLister interface {
	List(criteria map[string]any) ([]*models.LocalJob, error)
}

// Runner runs one sync invocation.
type Runner interface {
	Run(ctx context.Context, trigger models.Trigger, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	jobs         JobLister
	runner       Runner
	width        int
	height       int
	jobList      list.Model
	count        int
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	done         chan syncComplete
	progress     tasks.ProgressUpdate
	log          []string
	result       *tasks.RunResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, jobs JobLister, runner Runner) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.warn

	jobList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobList.Title = "Local Jobs"

	return &Model{
		ctx:     ctx,
		view:    JobListView,
		jobs:    jobs,
		runner:  runner,
		jobList: jobList,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init initializes the TUI by loading local jobs.
func (m *Model) Init() tea.Cmd {
	return m.fetchJobs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleJobListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		data := msg.data.(jobsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.count = len(data.jobs)
		return m, m.jobList.SetItems(jobItems(data.jobs))

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		if m.progress.Message != "" {
			m.log = append(m.log, m.progress.Message)
			if len(m.log) > maxLogLines {
				m.log = m.log[len(m.log)-maxLogLines:]
			}
		}
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.result = data.result
		m.err = data.err
		m.progressChan = nil
		m.done = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == JobListView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case JobListView:
		return m.renderJobList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleJobListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.sync):
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	}
	return m.updateList(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		m.view = JobListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.resume):
		if m.paused() {
			return m, m.startSync()
		}
	case key.Matches(msg, m.keys.back):
		m.view = JobListView
		m.result = nil
		m.err = nil
		return m, m.fetchJobs()
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != JobListView {
		return m, nil
	}
	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) paused() bool {
	return m.err == nil && m.result != nil && m.result.Status == models.RunPaused
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.jobs.List(map[string]any{"source": models.SourceBullhorn})
		return jobsFetchedMsg(jobs, err)
	}
}

// startSync runs one manual invocation in the background and streams its progress.
func (m *Model) startSync() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan syncComplete, 1)

	m.view = SyncView
	m.log = nil
	m.result = nil
	m.err = nil
	m.progress = tasks.ProgressUpdate{}
	m.progressChan = progress
	m.done = done

	go func() {
		result, err := m.runner.Run(m.ctx, models.TriggerManual, progress)
		done <- syncComplete{result, err}
		close(progress)
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

// waitForProgress reads the next update, or the final result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			d := <-done
			return syncCompleteMsg(d.result, d.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderJobList() string {
	helpKeys := []key.Binding{m.keys.sync, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.jobList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Run a sync against Bullhorn?")
	info := fmt.Sprintf("\nLocal jobs: %d\nThe run stops when its time budget is spent and resumes on the next invocation.\n", m.count)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing")

	var phase string
	switch m.progress.Phase {
	case tasks.SyncStarted:
		phase = "Starting..."
	case tasks.TaskStarted, tasks.StepRan, tasks.TaskCompleted, tasks.TaskFailed:
		phase = fmt.Sprintf("Task %d/%d", m.progress.Step, m.progress.Total)
	case tasks.SyncPaused:
		phase = "Pausing..."
	case tasks.ContinuationScheduled:
		phase = "Scheduling continuation..."
	default:
		phase = "Waiting for lock..."
	}

	lines := make([]string, len(m.log))
	for i, line := range m.log {
		lines[i] = styles.muted.Render(line)
	}

	return fmt.Sprintf("%s\n%s %s\n\n%s\n\n%s",
		title, m.spinner.View(), phase, strings.Join(lines, "\n"), m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)), m.help.ShortHelpView(helpKeys))
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), m.help.ShortHelpView(helpKeys))
	}

	var title string
	switch {
	case m.paused():
		title = styles.warn.Render(fmt.Sprintf("Sync paused at task %d/%d", m.result.Index, m.result.Total))
		helpKeys = append([]key.Binding{m.keys.resume}, helpKeys...)
	case m.result.Failed() > 0:
		title = styles.warn.Render(fmt.Sprintf("Sync completed with %d failed task(s)", m.result.Failed()))
	default:
		title = styles.ok.Render("✓ Sync Complete!")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\nInvocations: %d\nElapsed: %s\n", m.result.RunID, m.result.Invocations, m.result.Elapsed.Round(time.Millisecond))
	if m.result.Continuation != "" {
		fmt.Fprintf(&b, "Continuation: %s\n", m.result.Continuation)
	}
	for _, r := range m.result.Results {
		line := fmt.Sprintf("\n%-14s %-10s %s", r.Name, r.Status, r.StatsString())
		if r.Error != "" {
			line = styles.err.Render(fmt.Sprintf("\n%-14s %-10s %s", r.Name, r.Status, r.Error))
		}
		b.WriteString(line)
	}

	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.box.Render(b.String()), m.help.ShortHelpView(helpKeys))
}
