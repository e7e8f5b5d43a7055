package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/jobsync/internal/shared"
	"golang.org/x/oauth2"
)

// CodeExchanger trades an authorization code for a token.
//
// Implemented by services.BullhornService.
type CodeExchanger interface {
	Authenticate(ctx context.Context, credentials map[string]string) error
	Token() *oauth2.Token
}

// OAuthResult is the outcome of one authorization callback.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// callbackError pairs a failed callback with the status shown to the browser.
type callbackError struct {
	status int
	reason string
	err    error
}

// OAuthHandler receives the Bullhorn authorization redirect for `auth login --browser`.
// It accepts exactly one callback; later hits are rejected.
type OAuthHandler struct {
	exchanger CodeExchanger
	state     string
	hit       atomic.Bool
	results   chan OAuthResult
	once      sync.Once
}

// NewOAuthHandler creates the callback handler. state must match the value sent with
// the authorize URL.
func NewOAuthHandler(exchanger CodeExchanger, state string) *OAuthHandler {
	return &OAuthHandler{
		exchanger: exchanger,
		state:     state,
		results:   make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hit.CompareAndSwap(false, true) {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	if cerr := h.exchange(r); cerr != nil {
		h.Send(OAuthResult{err: cerr.err})
		http.Error(w, cerr.reason, cerr.status)
		return
	}

	h.Send(OAuthResult{Token: h.exchanger.Token()})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, connectedPage)
}

func (h *OAuthHandler) exchange(r *http.Request) *callbackError {
	query := r.URL.Query()

	if query.Get("state") != h.state {
		return &callbackError{
			status: http.StatusBadRequest,
			reason: "Invalid state parameter",
			err:    fmt.Errorf("%w: state mismatch on bullhorn callback", shared.ErrAuthFailed),
		}
	}

	code := query.Get("code")
	if code == "" {
		return &callbackError{
			status: http.StatusBadRequest,
			reason: "Authorization failed",
			err:    fmt.Errorf("%w: bullhorn returned %q (%s)", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description")),
		}
	}

	if err := h.exchanger.Authenticate(r.Context(), map[string]string{"auth_code": code}); err != nil {
		return &callbackError{
			status: http.StatusInternalServerError,
			reason: "Token exchange failed",
			err:    fmt.Errorf("failed to exchange bullhorn authorization code: %w", err),
		}
	}
	return nil
}

// Send delivers the result once; later calls are dropped.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result yields exactly one [OAuthResult] and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

const connectedPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>jobsync: Bullhorn connected</title>
<style>
  html, body { height: 100%; margin: 0; }
  body { display: grid; place-items: center; background: #fafafa; font: 16px system-ui, sans-serif; }
  main { padding: 2rem 2.5rem; border-top: 4px solid #F26B21; background: #fff; box-shadow: 0 1px 3px rgba(0,0,0,.12); }
  h1 { margin: 0 0 .75rem; font-size: 1.4rem; color: #F26B21; }
  p { margin: 0; color: #555; }
</style>
</head>
<body>
<main>
  <h1>Bullhorn connected</h1>
  <p>jobsync stored the session. Close this tab and go back to the terminal.</p>
</main>
</body>
</html>
`
