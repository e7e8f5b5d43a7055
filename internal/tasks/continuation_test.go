package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/shared"
)

type continueEndpoint struct {
	mu     sync.Mutex
	probes int
	runIDs []string
}

func (e *continueEndpoint) calls() (int, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.probes, append([]string(nil), e.runIDs...)
}

func (e *continueEndpoint) record(req ContinueRequest) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if req.Probe {
		e.probes++
		return http.StatusNoContent
	}
	e.runIDs = append(e.runIDs, req.RunID)
	return http.StatusAccepted
}

// newSelfServer serves both continuation endpoints the way the sync handler does.
func newSelfServer(t *testing.T, store Store, token string, restUp, loopbackUp bool) (*httptest.Server, *continueEndpoint, *continueEndpoint) {
	t.Helper()

	rest, loopback := &continueEndpoint{}, &continueEndpoint{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+ContinuePath, func(w http.ResponseWriter, r *http.Request) {
		if !restUp {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get(SyncTokenHeader) != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req ContinueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(rest.record(req))
	})

	mux.HandleFunc("POST "+LoopbackPath, func(w http.ResponseWriter, r *http.Request) {
		if !loopbackUp {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req ContinueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		runID, err := ConsumeNonce(store, req.Nonce)
		if err != nil || runID != req.RunID {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(loopback.record(req))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, rest, loopback
}

type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	jobs   []func()
	err    error
}

func (s *fakeScheduler) Once(delay time.Duration, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delays = append(s.delays, delay)
	s.jobs = append(s.jobs, job)
	return nil
}

func TestSelector(t *testing.T) {
	ctx := context.Background()

	build := func(f *fixture, server *httptest.Server, token string, sched OnceScheduler) (*Selector, *CronContinuer) {
		cron := NewCronContinuer(sched, time.Minute)
		return NewSelector(f.store, cron,
			NewRESTContinuer(server.URL, token, server.Client()),
			NewLoopbackContinuer(server.URL, f.store, server.Client()),
		), cron
	}

	t.Run("prefers REST", func(t *testing.T) {
		f := setup(t)
		server, rest, loopback := newSelfServer(t, f.store, "secret", true, true)
		selector, _ := build(f, server, "secret", nil)

		method, err := selector.Continue(ctx, "run-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if method != MethodREST {
			t.Errorf("expected rest, got %s", method)
		}
		probes, runs := rest.calls()
		if probes != 1 || len(runs) != 1 || runs[0] != "run-1" {
			t.Errorf("unexpected rest calls: probes=%d runs=%v", probes, runs)
		}
		if probes, _ := loopback.calls(); probes != 0 {
			t.Error("loopback should not be probed when REST works")
		}

		cached, ok, _ := f.store.Get(ContinuationMethodKey)
		if !ok || cached != MethodREST {
			t.Errorf("expected cached rest method, got %q", cached)
		}
	})

	t.Run("uses cached method", func(t *testing.T) {
		f := setup(t)
		server, rest, _ := newSelfServer(t, f.store, "secret", true, true)
		selector, _ := build(f, server, "secret", nil)

		for _, id := range []string{"run-1", "run-2"} {
			if _, err := selector.Continue(ctx, id); err != nil {
				t.Fatalf("continue failed: %v", err)
			}
		}
		if probes, _ := rest.calls(); probes != 1 {
			t.Errorf("expected a single probe while the method is cached, got %d", probes)
		}
	})

	t.Run("cache expires", func(t *testing.T) {
		f := setup(t)
		server, rest, _ := newSelfServer(t, f.store, "secret", true, true)
		selector, _ := build(f, server, "secret", nil)

		if _, err := selector.Select(ctx); err != nil {
			t.Fatalf("select failed: %v", err)
		}
		f.clock.Advance(7 * time.Hour)
		if _, err := selector.Select(ctx); err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if probes, _ := rest.calls(); probes != 2 {
			t.Errorf("expected a new probe after 6h, got %d probes", probes)
		}
	})

	t.Run("falls back to loopback", func(t *testing.T) {
		f := setup(t)
		server, rest, loopback := newSelfServer(t, f.store, "secret", true, true)
		selector, _ := build(f, server, "wrong-token", nil)

		method, err := selector.Continue(ctx, "run-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if method != MethodLoopback {
			t.Errorf("expected loopback, got %s", method)
		}
		if _, runs := rest.calls(); len(runs) != 0 {
			t.Error("rest endpoint should reject the wrong token")
		}
		if _, runs := loopback.calls(); len(runs) != 1 || runs[0] != "run-1" {
			t.Errorf("unexpected loopback runs: %v", runs)
		}

		if n, _ := f.store.DeletePrefix(LoopbackNoncePrefix); n != 0 {
			t.Errorf("nonces should be consumed, %d left", n)
		}
	})

	t.Run("falls back to cron", func(t *testing.T) {
		f := setup(t)
		server, _, _ := newSelfServer(t, f.store, "secret", false, false)
		sched := &fakeScheduler{}
		selector, cron := build(f, server, "secret", sched)

		resumed := make(chan struct{}, 1)
		cron.Bind(func(ctx context.Context) { resumed <- struct{}{} })

		method, err := selector.Continue(ctx, "run-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if method != MethodCron {
			t.Errorf("expected cron, got %s", method)
		}
		if len(sched.jobs) != 1 || sched.delays[0] != time.Minute {
			t.Fatalf("expected one job after 1m, got %v", sched.delays)
		}

		sched.jobs[0]()
		select {
		case <-resumed:
		default:
			t.Error("scheduled job should invoke the bound runner")
		}
	})

	t.Run("failed continuation uses fallback", func(t *testing.T) {
		f := setup(t)
		server, _, _ := newSelfServer(t, f.store, "secret", true, true)
		sched := &fakeScheduler{}
		selector, cron := build(f, server, "secret", sched)
		cron.Bind(func(context.Context) {})

		if err := f.store.Set(ContinuationMethodKey, MethodREST, time.Hour); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}
		server.Close()

		method, err := selector.Continue(ctx, "run-1")
		if err != nil {
			t.Fatalf("fallback should succeed: %v", err)
		}
		if method != MethodCron {
			t.Errorf("expected cron fallback, got %s", method)
		}
		if _, ok, _ := f.store.Get(ContinuationMethodKey); ok {
			t.Error("failed method should be forgotten")
		}
	})

	t.Run("no methods", func(t *testing.T) {
		f := setup(t)
		selector := NewSelector(f.store, nil)

		if _, err := selector.Continue(ctx, "run-1"); !errors.Is(err, shared.ErrNoContinuation) {
			t.Fatalf("expected ErrNoContinuation, got %v", err)
		}
	})
}

func TestCronContinuer(t *testing.T) {
	t.Run("without scheduler", func(t *testing.T) {
		c := NewCronContinuer(nil, time.Minute)
		c.Bind(func(context.Context) { t.Error("runner should not be called") })

		if err := c.Continue(context.Background(), "run-1"); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("scheduler error", func(t *testing.T) {
		c := NewCronContinuer(&fakeScheduler{err: errors.New("stopped")}, time.Minute)
		c.Bind(func(context.Context) {})

		if err := c.Continue(context.Background(), "run-1"); err == nil {
			t.Fatal("expected scheduling error")
		}
	})
}

func TestConsumeNonce(t *testing.T) {
	f := setup(t)

	if err := f.store.Set(LoopbackNoncePrefix+"abc", "run-1", time.Minute); err != nil {
		t.Fatalf("failed to store nonce: %v", err)
	}

	runID, err := ConsumeNonce(f.store, "abc")
	if err != nil || runID != "run-1" {
		t.Fatalf("expected run-1, got %q (%v)", runID, err)
	}

	if _, err := ConsumeNonce(f.store, "abc"); !errors.Is(err, shared.ErrInvalidNonce) {
		t.Errorf("nonce should be single use, got %v", err)
	}
	if _, err := ConsumeNonce(f.store, ""); !errors.Is(err, shared.ErrInvalidNonce) {
		t.Errorf("empty nonce should be rejected, got %v", err)
	}

	_ = f.store.Set(LoopbackNoncePrefix+"old", "run-2", time.Minute)
	f.clock.Advance(2 * time.Minute)
	if _, err := ConsumeNonce(f.store, "old"); !errors.Is(err, shared.ErrInvalidNonce) {
		t.Errorf("expired nonce should be rejected, got %v", err)
	}
}
