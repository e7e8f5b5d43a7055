// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
)

// FakeATS is an in-memory stand-in for the Bullhorn client.
//
// It satisfies services.Service, services.JobSource and services.CandidateSink.
type FakeATS struct {
	mu sync.Mutex

	jobs        []models.Job
	candidates  map[string]int
	submissions map[int][]int
	nextID      int

	// Errors returned by the matching operation when set.
	SearchErr     error
	CandidateErr  error
	SubmissionErr error

	// OnSearch is called before every SearchJobs with the requested range.
	OnSearch func(start, count int)

	searches int
}

// NewFakeATS returns a fake holding jobs.
func NewFakeATS(jobs ...models.Job) *FakeATS {
	return &FakeATS{
		jobs:        jobs,
		candidates:  map[string]int{},
		submissions: map[int][]int{},
		nextID:      1000,
	}
}

// SetJobs replaces the remote job list.
func (f *FakeATS) SetJobs(jobs ...models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = jobs
}

// AddCandidate registers an existing candidate.
func (f *FakeATS) AddCandidate(email string, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[email] = id
}

// Searches returns the number of SearchJobs calls.
func (f *FakeATS) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// Submissions returns the job IDs the candidate was submitted to.
func (f *FakeATS) Submissions(candidateID int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.submissions[candidateID]...)
}

func (f *FakeATS) Name() string                                                          { return "fake" }
func (f *FakeATS) Ping(ctx context.Context) error                                        { return nil }
func (f *FakeATS) Authenticate(ctx context.Context, credentials map[string]string) error { return nil }

func (f *FakeATS) SearchJobs(ctx context.Context, start, count int) (*models.JobPage, error) {
	if f.OnSearch != nil {
		f.OnSearch(start, count)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++

	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	start = min(max(start, 0), len(f.jobs))
	end := min(start+count, len(f.jobs))
	data := append([]models.Job(nil), f.jobs[start:end]...)
	return &models.JobPage{Total: len(f.jobs), Start: start, Count: len(data), Data: data}, nil
}

func (f *FakeATS) FindCandidate(ctx context.Context, email string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CandidateErr != nil {
		return 0, f.CandidateErr
	}
	id, ok := f.candidates[email]
	if !ok {
		return 0, fmt.Errorf("%w: %s", shared.ErrCandidateNotFound, email)
	}
	return id, nil
}

func (f *FakeATS) CreateCandidate(ctx context.Context, app *models.Application) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CandidateErr != nil {
		return 0, f.CandidateErr
	}
	f.nextID++
	f.candidates[app.Email()] = f.nextID
	return f.nextID, nil
}

func (f *FakeATS) CreateSubmission(ctx context.Context, candidateID, jobID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmissionErr != nil {
		return 0, f.SubmissionErr
	}
	if !slices.ContainsFunc(f.jobs, func(j models.Job) bool { return j.ID == jobID }) {
		return 0, fmt.Errorf("%w: %d", shared.ErrJobNotFound, jobID)
	}
	f.nextID++
	f.submissions[candidateID] = append(f.submissions[candidateID], jobID)
	return f.nextID, nil
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
