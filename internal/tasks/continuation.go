package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
)

// Continuation methods, in order of preference.
const (
	MethodREST     = "rest"
	MethodLoopback = "loopback"
	MethodCron     = "cron"
)

// Endpoints and headers used by self-calls.
const (
	ContinuePath    = "/api/sync/continue"
	LoopbackPath    = "/sync/loopback"
	SyncTokenHeader = "X-Sync-Token"
)

// ContinueRequest is the body of a REST or loopback continuation.
//
// Probe requests exercise the endpoint without starting a sync.
type ContinueRequest struct {
	RunID string `json:"run_id,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	Probe bool   `json:"probe,omitempty"`
}

// Continuer starts the next invocation of a paused run out of band.
type Continuer interface {
	Method() string
	Probe(ctx context.Context) error
	Continue(ctx context.Context, runID string) error
}

// RESTContinuer continues a run by calling the public sync endpoint with the shared token.
type RESTContinuer struct {
	client *services.SelfClient
}

// NewRESTContinuer creates a continuer for the service reachable at publicURL.
func NewRESTContinuer(publicURL, token string, client *http.Client) *RESTContinuer {
	self := services.NewSelfClient(publicURL, client)
	self.SetHeader(SyncTokenHeader, token)
	return &RESTContinuer{client: self}
}

func (c *RESTContinuer) Method() string { return MethodREST }

func (c *RESTContinuer) Probe(ctx context.Context) error {
	return c.post(ctx, ContinueRequest{Probe: true})
}

func (c *RESTContinuer) Continue(ctx context.Context, runID string) error {
	return c.post(ctx, ContinueRequest{RunID: runID})
}

func (c *RESTContinuer) post(ctx context.Context, body ContinueRequest) error {
	resp, err := c.client.PostJSON(ctx, ContinuePath, body)
	if err != nil {
		return fmt.Errorf("rest continuation: %w", err)
	}
	return checkContinuation(resp)
}

// LoopbackContinuer continues a run by calling the loopback endpoint with a single-use nonce.
type LoopbackContinuer struct {
	client *services.SelfClient
	store  Store
	ttl    time.Duration
}

// NewLoopbackContinuer creates a continuer for the service listening at loopbackURL.
func NewLoopbackContinuer(loopbackURL string, store Store, client *http.Client) *LoopbackContinuer {
	return &LoopbackContinuer{
		client: services.NewSelfClient(loopbackURL, client),
		store:  store,
		ttl:    5 * time.Minute,
	}
}

func (c *LoopbackContinuer) Method() string { return MethodLoopback }

func (c *LoopbackContinuer) Probe(ctx context.Context) error {
	return c.post(ctx, "", true)
}

func (c *LoopbackContinuer) Continue(ctx context.Context, runID string) error {
	return c.post(ctx, runID, false)
}

func (c *LoopbackContinuer) post(ctx context.Context, runID string, probe bool) error {
	nonce := shared.GenerateID()
	if err := c.store.Set(LoopbackNoncePrefix+nonce, runID, c.ttl); err != nil {
		return fmt.Errorf("failed to store loopback nonce: %w", err)
	}

	resp, err := c.client.PostJSON(ctx, LoopbackPath, ContinueRequest{RunID: runID, Nonce: nonce, Probe: probe})
	if err != nil {
		_ = c.store.Delete(LoopbackNoncePrefix + nonce)
		return fmt.Errorf("loopback continuation: %w", err)
	}
	return checkContinuation(resp)
}

// ConsumeNonce redeems a loopback nonce and returns the run it was issued for.
func ConsumeNonce(store Store, nonce string) (string, error) {
	if strings.TrimSpace(nonce) == "" {
		return "", shared.ErrInvalidNonce
	}
	runID, ok, err := store.Take(LoopbackNoncePrefix + nonce)
	if err != nil {
		return "", fmt.Errorf("failed to redeem nonce: %w", err)
	}
	if !ok {
		return "", shared.ErrInvalidNonce
	}
	return runID, nil
}

func checkContinuation(resp *services.Response) error {
	if resp.OK() {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body))
	return fmt.Errorf("%w: continuation endpoint returned %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, body)
}

// OnceScheduler runs a job once after a delay.
//
// Implemented by scheduler.Scheduler.
type OnceScheduler interface {
	Once(delay time.Duration, job func()) error
}

// CronContinuer continues a run through a one-shot scheduler entry.
//
// Without a scheduler the next periodic run resumes the paused run.
type CronContinuer struct {
	scheduler OnceScheduler
	delay     time.Duration
	logger    *log.Logger

	mu  sync.Mutex
	run func(ctx context.Context)
}

// NewCronContinuer creates a continuer that fires after delay. scheduler may be nil.
func NewCronContinuer(scheduler OnceScheduler, delay time.Duration) *CronContinuer {
	return &CronContinuer{scheduler: scheduler, delay: delay, logger: log.New(io.Discard)}
}

// WithLogger sets the logger.
func (c *CronContinuer) WithLogger(logger *log.Logger) *CronContinuer {
	c.logger = logger
	return c
}

// Bind sets the function the one-shot entry invokes.
func (c *CronContinuer) Bind(run func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
}

func (c *CronContinuer) Method() string                  { return MethodCron }
func (c *CronContinuer) Probe(ctx context.Context) error { return nil }

func (c *CronContinuer) Continue(ctx context.Context, runID string) error {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if c.scheduler == nil || run == nil {
		c.logger.Info("no scheduler available, next scheduled run resumes", "run", runID)
		return nil
	}

	if err := c.scheduler.Once(c.delay, func() { run(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule continuation: %w", err)
	}
	c.logger.Info("continuation scheduled", "run", runID, "delay", c.delay)
	return nil
}

// Selector picks the first continuation method whose probe succeeds and
// caches the choice in the transient store.
type Selector struct {
	store      Store
	candidates []Continuer
	fallback   Continuer
	ttl        time.Duration
	logger     *log.Logger
}

// NewSelector probes candidates in order and uses fallback when none respond.
func NewSelector(store Store, fallback Continuer, candidates ...Continuer) *Selector {
	return &Selector{
		store:      store,
		candidates: candidates,
		fallback:   fallback,
		ttl:        6 * time.Hour,
		logger:     log.New(io.Discard),
	}
}

// WithTTL sets how long a selected method stays cached.
func (s *Selector) WithTTL(ttl time.Duration) *Selector {
	s.ttl = ttl
	return s
}

// WithLogger sets the logger.
func (s *Selector) WithLogger(logger *log.Logger) *Selector {
	s.logger = logger
	return s
}

// Select returns the cached continuer or probes for a new one.
func (s *Selector) Select(ctx context.Context) (Continuer, error) {
	cached, ok, err := s.store.Get(ContinuationMethodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read continuation method: %w", err)
	}
	if ok {
		if c := s.lookup(cached); c != nil {
			return c, nil
		}
	}

	for _, c := range s.candidates {
		if err := c.Probe(ctx); err != nil {
			s.logger.Debug("continuation probe failed", "method", c.Method(), "error", err)
			continue
		}
		s.remember(c)
		return c, nil
	}

	if s.fallback == nil {
		return nil, shared.ErrNoContinuation
	}
	s.remember(s.fallback)
	return s.fallback, nil
}

// Continue schedules runID through the selected method, falling back when it fails.
func (s *Selector) Continue(ctx context.Context, runID string) (string, error) {
	c, err := s.Select(ctx)
	if err != nil {
		return "", err
	}

	err = c.Continue(ctx, runID)
	if err == nil {
		return c.Method(), nil
	}
	if s.fallback == nil || c == s.fallback {
		return c.Method(), err
	}

	s.logger.Warn("continuation failed, using fallback", "method", c.Method(), "error", err)
	if invErr := s.Invalidate(); invErr != nil {
		s.logger.Warn("failed to invalidate continuation method", "error", invErr)
	}
	if fbErr := s.fallback.Continue(ctx, runID); fbErr != nil {
		return s.fallback.Method(), errors.Join(err, fbErr)
	}
	return s.fallback.Method(), nil
}

// Invalidate forgets the cached method so the next selection probes again.
func (s *Selector) Invalidate() error {
	return s.store.Delete(ContinuationMethodKey)
}

func (s *Selector) lookup(method string) Continuer {
	for _, c := range s.candidates {
		if c.Method() == method {
			return c
		}
	}
	if s.fallback != nil && s.fallback.Method() == method {
		return s.fallback
	}
	return nil
}

func (s *Selector) remember(c Continuer) {
	if err := s.store.Set(ContinuationMethodKey, c.Method(), s.ttl); err != nil {
		s.logger.Warn("failed to cache continuation method", "method", c.Method(), "error", err)
		return
	}
	s.logger.Info("continuation method selected", "method", c.Method())
}
