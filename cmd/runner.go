package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/repositories"
	"github.com/desertthunder/jobsync/internal/scheduler"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// BullhornTokenKey is the transient key holding the persisted Bullhorn OAuth token.
const BullhornTokenKey = "jobsync_bullhorn_token"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	bullhorn   services.Service
	db         *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Bullhorn and DB are injected by tests; when nil they are built from the config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Bullhorn   services.Service
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		bullhorn:   opts.Bullhorn,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, jobsCommand, applicationsCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before applies the global flags: log level and config file.
//
// A missing config file keeps the defaults so "setup database" can create it.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := shared.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, level)

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// deps are the repositories every command works against.
type deps struct {
	db     *sql.DB
	store  *repositories.TransientRepository
	jobs   *repositories.JobRepository
	apps   *repositories.ApplicationRepository
	runs   *repositories.SyncRunRepository
	closer func() error
}

func (d *deps) Close() error {
	return d.closer()
}

// open connects to the configured database and applies pending migrations.
func (r *Runner) open() (*deps, error) {
	db, closer := r.db, func() error { return nil }
	if db == nil {
		var err error
		if db, err = shared.NewDatabase(r.config.Database.Path); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		closer = db.Close
	}

	if err := shared.RunMigrations(db); err != nil {
		closer()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &deps{
		db:     db,
		store:  repositories.NewTransientRepository(db),
		jobs:   repositories.NewJobRepository(db),
		apps:   repositories.NewApplicationRepository(db),
		runs:   repositories.NewSyncRunRepository(db),
		closer: closer,
	}, nil
}

// service returns the Bullhorn client with its persisted token restored.
func (r *Runner) service(d *deps) (services.Service, error) {
	if r.bullhorn != nil {
		return r.bullhorn, nil
	}

	svc, err := services.NewBullhornService(r.config.Bullhorn, r.httpClient)
	if err != nil {
		return nil, err
	}
	svc.WithLogger(shared.WithLogger(r.logger, "service", "bullhorn"))

	var token oauth2.Token
	found, err := d.store.GetJSON(BullhornTokenKey, &token)
	switch {
	case err != nil:
		r.logger.Warn("discarding unreadable bullhorn token", "error", err)
	case found:
		svc.SetToken(&token)
	}

	r.bullhorn = svc
	return svc, nil
}

// saveToken persists the current Bullhorn token. Refreshes rotate it, so this runs after
// every command that talks to Bullhorn.
func (r *Runner) saveToken(d *deps, svc services.Service) error {
	holder, ok := svc.(interface{ Token() *oauth2.Token })
	if !ok {
		return nil
	}
	token := holder.Token()
	if token == nil {
		return nil
	}
	if err := d.store.SetJSON(BullhornTokenKey, token, 0); err != nil {
		return fmt.Errorf("failed to save bullhorn token: %w", err)
	}
	return nil
}

// newSync assembles the runner with the jobs and applications tasks.
func (r *Runner) newSync(d *deps, svc services.Service) *tasks.Sync {
	logger := shared.WithLogger(r.logger, "component", "sync")

	jobsTask := tasks.NewJobsTask(d.store, svc, d.jobs, tasks.NewJobsTaskConfig(r.config)).WithLogger(logger)
	appsTask := tasks.NewApplicationsTask(d.store, svc, d.apps, tasks.NewApplicationsTaskConfig(r.config)).WithLogger(logger)

	return tasks.NewSync(d.store, d.runs, jobsTask, appsTask).
		WithLogger(logger).
		WithBudget(r.config.Sync.Budget()).
		WithLockTTL(r.config.Sync.LockDuration())
}

// newSelector builds the continuation selector: REST self-call first, then loopback,
// with a one-shot scheduler entry as the fallback. sched may be nil outside serve.
func (r *Runner) newSelector(d *deps, sched *scheduler.Scheduler) (*tasks.Selector, *tasks.CronContinuer) {
	logger := shared.WithLogger(r.logger, "component", "continuation")

	var once tasks.OnceScheduler
	if sched != nil {
		once = sched
	}
	cron := tasks.NewCronContinuer(once, r.config.Sync.Delay()).WithLogger(logger)

	candidates := []tasks.Continuer{}
	if r.config.Server.PublicURL != "" && r.config.Sync.Token != "" {
		candidates = append(candidates, tasks.NewRESTContinuer(r.config.Server.PublicURL, r.config.Sync.Token, r.httpClient))
	}
	if r.config.Server.LoopbackURL != "" {
		candidates = append(candidates, tasks.NewLoopbackContinuer(r.config.Server.LoopbackURL, d.store, r.httpClient))
	}

	selector := tasks.NewSelector(d.store, cron, candidates...).
		WithTTL(r.config.Sync.ContinuationCacheTTL()).
		WithLogger(logger)
	return selector, cron
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// closeWith closes d, joining a close error into err.
func closeWith(d *deps, err *error) {
	if cerr := d.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
