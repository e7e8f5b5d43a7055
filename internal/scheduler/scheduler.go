// Package scheduler runs the periodic sync and one-shot continuations on a cron.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/robfig/cron/v3"
)

// Entry kinds reported by [Scheduler.Entries].
const (
	KindPeriodic = "periodic"
	KindOnce     = "once"
)

// Entry describes a scheduled job.
type Entry struct {
	ID   int       `json:"id"`
	Kind string    `json:"kind"`
	Spec string    `json:"spec,omitempty"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// onceSchedule fires a single time at at.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// Scheduler wraps a [cron.Cron] with one periodic job and any number of one-shot jobs.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	parser   cron.Parser
	logger   *log.Logger
	running  bool
	spec     string
	job      func()
	periodic cron.EntryID
	once     map[cron.EntryID]struct{}
}

// New creates a stopped scheduler.
//
// Specs accept an optional seconds field and descriptors such as "@hourly" or "@every 30m".
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	adapter := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		parser: parser,
		logger: logger,
		once:   map[cron.EntryID]struct{}{},
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)
}

// Stop halts the scheduler and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.cron.Stop()
}

// Validate checks a cron spec without scheduling it.
func (s *Scheduler) Validate(spec string) error {
	if _, err := s.parser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", shared.ErrInvalidConfig, spec, err)
	}
	return nil
}

// Every registers job as the periodic job, replacing any previous one.
func (s *Scheduler) Every(spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = job
	return s.applyLocked(strings.TrimSpace(spec))
}

// Apply reschedules the periodic job with a new spec. Unchanged specs are a no-op.
func (s *Scheduler) Apply(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec = strings.TrimSpace(spec)
	if spec == s.spec && s.periodic != 0 {
		return nil
	}
	if s.job == nil {
		return fmt.Errorf("%w: no periodic job registered", shared.ErrInvalidArgument)
	}
	return s.applyLocked(spec)
}

func (s *Scheduler) applyLocked(spec string) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %v", shared.ErrInvalidConfig, spec, err)
	}

	if s.periodic != 0 {
		s.cron.Remove(s.periodic)
	}
	s.periodic = s.cron.Schedule(schedule, cron.FuncJob(s.job))
	s.spec = spec
	s.logger.Info("periodic sync scheduled", "spec", spec)
	return nil
}

// Once runs job a single time after delay, then drops the entry.
func (s *Scheduler) Once(delay time.Duration, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id cron.EntryID
	wrapped := cron.FuncJob(func() {
		s.mu.Lock()
		self := id
		delete(s.once, self)
		s.mu.Unlock()

		defer s.cron.Remove(self)
		job()
	})

	id = s.cron.Schedule(onceSchedule{at: time.Now().Add(delay)}, wrapped)
	s.once[id] = struct{}{}
	s.logger.Debug("one-shot job scheduled", "id", id, "delay", delay)
	return nil
}

// Spec returns the periodic spec.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Entries lists the scheduled jobs in the order they were added.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	periodic, spec := s.periodic, s.spec
	once := make(map[cron.EntryID]struct{}, len(s.once))
	for id := range s.once {
		once[id] = struct{}{}
	}
	s.mu.Unlock()

	var entries []Entry
	for _, e := range s.cron.Entries() {
		switch _, isOnce := once[e.ID]; {
		case e.ID == periodic:
			entries = append(entries, Entry{ID: int(e.ID), Kind: KindPeriodic, Spec: spec, Next: e.Next, Prev: e.Prev})
		case isOnce:
			entries = append(entries, Entry{ID: int(e.ID), Kind: KindOnce, Next: e.Next, Prev: e.Prev})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// cronLogger adapts a charmbracelet logger to [cron.Logger].
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
