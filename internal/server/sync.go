package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/desertthunder/jobsync/internal/tasks"
)

const maxContinueBody = 4 << 10

// SyncRunner is the part of [tasks.Sync] the HTTP service drives.
type SyncRunner interface {
	Run(ctx context.Context, trigger models.Trigger, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
	Status() (*tasks.Status, error)
}

// RunView is the JSON view of a sync run record.
type RunView struct {
	ID          string           `json:"id"`
	Trigger     models.Trigger   `json:"trigger"`
	Status      models.RunStatus `json:"status"`
	Invocations int              `json:"invocations"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewRunView converts a run record to its JSON view.
func NewRunView(run *models.SyncRun) *RunView {
	if run == nil {
		return nil
	}
	return &RunView{
		ID:          run.ID(),
		Trigger:     run.Trigger(),
		Status:      run.Status(),
		Invocations: run.Invocations(),
		ElapsedMS:   run.Elapsed().Milliseconds(),
		Error:       run.ErrorMessage(),
		StartedAt:   run.StartedAt(),
		CompletedAt: run.CompletedAt(),
	}
}

type statusView struct {
	*tasks.Status
	LastRun *RunView `json:"last_run,omitempty"`
}

// CompletionFunc is called after every background invocation, whatever its outcome.
type CompletionFunc func(trigger models.Trigger, result *tasks.RunResult, err error)

// SyncHandler serves the continuation endpoints, sync status and health.
//
// Continuations answer 202 Accepted and run the sync in the background.
type SyncHandler struct {
	ctx      context.Context
	runner   SyncRunner
	store    tasks.Store
	token    string
	logger   *log.Logger
	complete CompletionFunc
	wg       sync.WaitGroup
}

// NewSyncHandler creates a handler whose background runs use ctx.
func NewSyncHandler(ctx context.Context, runner SyncRunner, store tasks.Store, token string, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SyncHandler{ctx: ctx, runner: runner, store: store, token: token, logger: logger}
}

// WithCompletion sets a hook run after each background invocation, e.g. to persist
// a refreshed Bullhorn token.
func (h *SyncHandler) WithCompletion(fn CompletionFunc) *SyncHandler {
	h.complete = fn
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *SyncHandler) Routes() []string {
	return []string{
		"POST " + tasks.ContinuePath,
		"POST " + tasks.LoopbackPath,
		"GET /api/sync/status",
		"GET /health",
	}
}

// ServeHTTP dispatches on the request path.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case tasks.ContinuePath:
		h.handleContinue(w, r)
	case tasks.LoopbackPath:
		h.handleLoopback(w, r)
	case "/api/sync/status":
		h.handleStatus(w, r)
	case "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func (h *SyncHandler) handleContinue(w http.ResponseWriter, r *http.Request) {
	given := r.Header.Get(tasks.SyncTokenHeader)
	if h.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
		writeError(w, http.StatusUnauthorized, shared.ErrInvalidSyncToken.Error())
		return
	}

	req, err := decodeContinue(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Probe {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.start(models.TriggerREST, req.RunID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": req.RunID})
}

func (h *SyncHandler) handleLoopback(w http.ResponseWriter, r *http.Request) {
	req, err := decodeContinue(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := tasks.ConsumeNonce(h.store, req.Nonce)
	switch {
	case errors.Is(err, shared.ErrInvalidNonce):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to redeem nonce", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to redeem nonce")
		return
	case runID != req.RunID:
		writeError(w, http.StatusForbidden, shared.ErrInvalidNonce.Error())
		return
	}

	if req.Probe {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.start(models.TriggerLoopback, runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": runID})
}

func (h *SyncHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.runner.Status()
	if err != nil {
		h.logger.Error("failed to read sync status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, statusView{Status: status, LastRun: NewRunView(status.LastRun)})
}

// start runs one invocation in the background.
func (h *SyncHandler) start(trigger models.Trigger, runID string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		result, err := h.runner.Run(h.ctx, trigger, nil)
		switch {
		case errors.Is(err, shared.ErrSyncLocked):
			h.logger.Info("continuation skipped, sync already running", "run", runID)
		case err != nil:
			h.logger.Error("background sync failed", "trigger", trigger, "error", err)
		default:
			h.logger.Info("background sync finished", "run", result.RunID, "status", result.Status)
		}

		if h.complete != nil {
			h.complete(trigger, result, err)
		}
	}()
}

// Wait blocks until background runs have returned.
func (h *SyncHandler) Wait() {
	h.wg.Wait()
}

func decodeContinue(w http.ResponseWriter, r *http.Request) (tasks.ContinueRequest, error) {
	var req tasks.ContinueRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	body := http.MaxBytesReader(w, r.Body, maxContinueBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}
