package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/formatter"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

const (
	maxApplicationBody = 5 << 20
	defaultFeedLimit   = 100
	maxFeedLimit       = 1000
)

// JobLister reads local jobs.
type JobLister interface {
	List(criteria map[string]any) ([]*models.LocalJob, error)
}

// ApplicationCreator stores collected applications.
type ApplicationCreator interface {
	Create(app *models.Application) error
}

// JobsHandler serves the job feed and collects applications.
type JobsHandler struct {
	jobs   JobLister
	apps   ApplicationCreator
	logger *log.Logger
}

// NewJobsHandler creates a new [JobsHandler].
func NewJobsHandler(jobs JobLister, apps ApplicationCreator, logger *log.Logger) *JobsHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &JobsHandler{jobs: jobs, apps: apps, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *JobsHandler) Routes() []string {
	return []string{"GET /api/jobs", "POST /api/applications"}
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/jobs":
		h.handleFeed(w, r)
	case "/api/applications":
		h.handleApply(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleFeed lists open jobs; ?status=closed or ?status=all widen the feed.
func (h *JobsHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	criteria := map[string]any{"source": models.SourceBullhorn, "status": models.JobStatusOpen}

	switch status := r.URL.Query().Get("status"); status {
	case "", models.JobStatusOpen:
	case models.JobStatusClosed:
		criteria["status"] = models.JobStatusClosed
	case "all":
		delete(criteria, "status")
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(status))
		return
	}

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFeedLimit)
	}
	criteria["limit"] = limit

	jobs, err := h.jobs.List(criteria)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(jobs),
		"jobs":  formatter.JobRecords(jobs),
	})
}

// handleApply stores an application as pending for the next sync.
func (h *JobsHandler) handleApply(w http.ResponseWriter, r *http.Request) {
	var fields models.ApplicationFields
	body := http.MaxBytesReader(w, r.Body, maxApplicationBody)
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid application body")
		return
	}

	app := models.NewApplication(0, fields)
	if err := h.apps.Create(app); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("failed to store application", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store application")
		return
	}

	h.logger.Info("application collected", "id", app.ID(), "job", app.JobSourceID())
	writeJSON(w, http.StatusCreated, map[string]string{"id": app.ID(), "status": app.Status()})
}
