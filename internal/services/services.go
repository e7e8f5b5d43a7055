// package services defines interfaces for talking to the Bullhorn ATS over HTTP
//
// Bullhorn REST, plus a plain client for calls back into this service
package services

import (
	"context"

	"github.com/desertthunder/jobsync/internal/models"
)

// JobSource pages through remote job listings.
type JobSource interface {
	// SearchJobs returns up to count jobs starting at offset start.
	SearchJobs(ctx context.Context, start, count int) (*models.JobPage, error)
}

// CandidateSink pushes applicants into the ATS.
type CandidateSink interface {
	// FindCandidate looks up a candidate by email.
	// Returns [shared.ErrCandidateNotFound] when there is none.
	FindCandidate(ctx context.Context, email string) (int, error)

	// CreateCandidate creates a candidate from a collected application and returns its ID.
	CreateCandidate(ctx context.Context, app *models.Application) (int, error)

	// CreateSubmission links a candidate to a job order and returns the submission ID.
	CreateSubmission(ctx context.Context, candidateID, jobID int) (int, error)
}

// Service defines the interface for an applicant tracking system the sync runner talks to.
type Service interface {
	JobSource
	CandidateSink

	// Authenticate performs OAuth authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Ping checks that the current session is usable.
	Ping(ctx context.Context) error

	// Name returns the name of the service (e.g., "Bullhorn")
	Name() string
}
