package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/jobsync/internal/server"
	"github.com/desertthunder/jobsync/internal/services"
	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 5 * time.Minute

// AuthLogin obtains a Bullhorn token and stores it for later commands.
//
// By default the configured API user logs in headlessly. With --browser the authorization
// page opens in the browser and a temporary server on the redirect URI receives the callback.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	svc, err := r.service(d)
	if err != nil {
		return err
	}

	if cmd.Bool("browser") {
		err = r.browserLogin(ctx, svc)
	} else {
		r.logger.Info("logging in to bullhorn", "user", r.config.Bullhorn.Username)
		err = svc.Authenticate(ctx, nil)
	}
	if err != nil {
		return err
	}

	if err := r.saveToken(d, svc); err != nil {
		return err
	}

	r.logger.Info("authentication successful")
	return r.writePlain("✓ Authenticated with %s\n", svc.Name())
}

func (r *Runner) browserLogin(ctx context.Context, svc services.Service) error {
	bullhorn, ok := svc.(*services.BullhornService)
	if !ok {
		return fmt.Errorf("%w: browser login needs the Bullhorn client", shared.ErrInvalidArgument)
	}

	redirect, err := url.Parse(r.config.Bullhorn.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: bullhorn.redirect_uri %q", shared.ErrInvalidConfig, r.config.Bullhorn.RedirectURI)
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(bullhorn, state)
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handle(http.MethodGet, redirect.Path, handler)

	srv := &http.Server{Addr: redirect.Host, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	errs := make(chan error, 1)
	go func() { errs <- server.Serve(serveCtx, srv, r.logger) }()

	authURL := bullhorn.GetAuthURL(state)
	r.writePlain("Opening browser for Bullhorn authorization...\nIf it does not open, visit:\n%s\n", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
	}

	select {
	case result := <-handler.Result():
		cancel()
		<-errs
		return result.Error()
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("callback server failed: %w", err)
		}
		return fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, authTimeout)
	}
}

// AuthStatus checks that the stored token opens a Bullhorn session.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) (err error) {
	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	svc, err := r.service(d)
	if err != nil {
		return err
	}

	r.logger.Info("checking auth status")
	if err := svc.Ping(ctx); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return r.writePlain("✗ Not authenticated, run 'jobsync auth login'\n")
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	if err := r.saveToken(d, svc); err != nil {
		return err
	}
	return r.writePlain("✓ %s session is healthy\n", svc.Name())
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
