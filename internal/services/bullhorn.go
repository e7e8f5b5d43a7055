// Bullhorn REST API implementation of [Service]
//
// Response types based on https://bullhorn.github.io/rest-api-docs/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultJobFields = "id,title,publicDescription,address,employmentType,salary,isOpen,isPublic,dateAdded,dateLastModified,categories(name)"
	defaultJobQuery  = "isOpen:1 AND isPublic:1 AND isDeleted:false"
)

// BullhornSession is the REST session returned by the login endpoint.
type BullhornSession struct {
	BhRestToken string `json:"BhRestToken"`
	RestURL     string `json:"restUrl"`
}

type bullhornAddress struct {
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
}

type bullhornCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type bullhornCategories struct {
	Total int                `json:"total"`
	Data  []bullhornCategory `json:"data"`
}

// BullhornJob represents a Bullhorn JobOrder entity.
type BullhornJob struct {
	ID                int                `json:"id"`
	Title             string             `json:"title"`
	PublicDescription string             `json:"publicDescription"`
	Address           bullhornAddress    `json:"address"`
	EmploymentType    string             `json:"employmentType"`
	Salary            float64            `json:"salary"`
	IsOpen            bool               `json:"isOpen"`
	IsPublic          int                `json:"isPublic"`
	DateAdded         int64              `json:"dateAdded"`
	DateLastModified  int64              `json:"dateLastModified"`
	Categories        bullhornCategories `json:"categories"`
}

// Job converts the JobOrder to a [models.Job]. Bullhorn timestamps are epoch milliseconds.
func (b BullhornJob) Job() models.Job {
	country := b.Address.CountryName
	if country == "" {
		country = b.Address.CountryCode
	}

	var categories []string
	for _, c := range b.Categories.Data {
		if c.Name != "" {
			categories = append(categories, c.Name)
		}
	}

	return models.Job{
		ID:               b.ID,
		Title:            b.Title,
		Description:      b.PublicDescription,
		City:             b.Address.City,
		State:            b.Address.State,
		Country:          country,
		Zip:              b.Address.Zip,
		EmploymentType:   b.EmploymentType,
		Salary:           b.Salary,
		IsOpen:           b.IsOpen,
		IsPublic:         b.IsPublic == 1,
		DateAdded:        fromMillis(b.DateAdded),
		DateLastModified: fromMillis(b.DateLastModified),
		Categories:       categories,
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// bullhornSearch is the envelope of /search and /query responses.
type bullhornSearch[T any] struct {
	Total int `json:"total"`
	Start int `json:"start"`
	Count int `json:"count"`
	Data  []T `json:"data"`
}

// bullhornChange is the response of entity PUT/POST calls.
type bullhornChange struct {
	ChangedEntityID int    `json:"changedEntityId"`
	ChangeType      string `json:"changeType"`
}

type bullhornError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    int    `json:"errorCode"`
}

// BullhornService implements the Service interface for Bullhorn REST API interactions.
//
// Uses [oauth2] for the authorization code flow. Each REST request carries the session's
// BhRestToken; a 401 triggers one re-login with a refreshed token and a single retry.
type BullhornService struct {
	config     *oauth2.Config
	loginURL   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger

	username  string
	password  string
	jobFields string
	jobQuery  string

	mu      sync.Mutex
	token   *oauth2.Token
	session *BullhornSession
}

// NewBullhornService creates a new Bullhorn service from configuration.
// A nil client uses [http.DefaultClient].
func NewBullhornService(cfg shared.BullhornConfig, client *http.Client) (*BullhornService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing bullhorn client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing bullhorn client_secret", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}

	authURL := strings.TrimSuffix(cfg.AuthURL, "/")
	if authURL == "" {
		authURL = "https://auth.bullhornstaffing.com"
	}
	loginURL := strings.TrimSuffix(cfg.LoginURL, "/")
	if loginURL == "" {
		loginURL = "https://rest.bullhornstaffing.com"
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	fields := cfg.JobFields
	if fields == "" {
		fields = defaultJobFields
	}
	query := cfg.JobQuery
	if query == "" {
		query = defaultJobQuery
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL + "/oauth/authorize",
			TokenURL:  authURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &BullhornService{
		config:     config,
		loginURL:   loginURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     log.New(io.Discard),
		username:   cfg.Username,
		password:   cfg.Password,
		jobFields:  fields,
		jobQuery:   query,
	}, nil
}

// WithLogger sets the logger used for session events.
func (s *BullhornService) WithLogger(logger *log.Logger) *BullhornService {
	s.logger = logger
	return s
}

func (s *BullhornService) Name() string {
	return "Bullhorn"
}

// GetAuthURL returns the OAuth2 authorization URL for browser login.
func (s *BullhornService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Token returns the current OAuth token for persistence.
func (s *BullhornService) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Session returns the current REST session, if any.
func (s *BullhornService) Session() *BullhornSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetToken restores a previously persisted token. The REST session is opened lazily.
func (s *BullhornService) SetToken(token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.session = nil
}

// Restore sets a persisted token and opens a REST session with it. The access token is
// refreshed first when a refresh token is available.
func (s *BullhornService) Restore(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return shared.ErrNotAuthenticated
	}
	s.SetToken(token)
	_, err := s.login(ctx, token.RefreshToken != "")
	return err
}

func (s *BullhornService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Authenticate obtains an OAuth token and opens a REST session.
//
// Accepted credentials, in order of precedence: "access_token" (with optional
// "refresh_token"), "auth_code", or "username"/"password" for the headless login.
// Without credentials the configured username and password are used.
func (s *BullhornService) Authenticate(ctx context.Context, credentials map[string]string) error {
	token, err := s.obtainToken(ctx, credentials)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.session = nil
	s.mu.Unlock()

	_, err = s.login(ctx, false)
	return err
}

func (s *BullhornService) obtainToken(ctx context.Context, credentials map[string]string) (*oauth2.Token, error) {
	if accessToken := credentials["access_token"]; accessToken != "" {
		return &oauth2.Token{AccessToken: accessToken, RefreshToken: credentials["refresh_token"]}, nil
	}

	if refreshToken := credentials["refresh_token"]; refreshToken != "" {
		return s.refresh(ctx, refreshToken)
	}

	code := credentials["auth_code"]
	if code == "" {
		username, password := credentials["username"], credentials["password"]
		if username == "" {
			username, password = s.username, s.password
		}
		if username == "" || password == "" {
			return nil, fmt.Errorf("%w: need auth_code, access_token or username and password", shared.ErrMissingCredentials)
		}

		var err error
		if code, err = s.authorize(ctx, username, password); err != nil {
			return nil, err
		}
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// authorize performs the headless authorization step and returns the auth code
// carried by the redirect.
func (s *BullhornService) authorize(ctx context.Context, username, password string) (string, error) {
	params := url.Values{
		"client_id":     {s.config.ClientID},
		"response_type": {"code"},
		"username":      {username},
		"password":      {password},
		"action":        {"Login"},
	}
	if s.config.RedirectURL != "" {
		params.Set("redirect_uri", s.config.RedirectURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.Endpoint.AuthURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	client := *s.httpClient
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: authorize request failed: %w", shared.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
		return "", fmt.Errorf("%w: bullhorn did not redirect (status %d)", shared.ErrInvalidCredentials, resp.StatusCode)
	}

	redirect, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: bad redirect %q", shared.ErrAuthFailed, location)
	}

	code := redirect.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: redirect carried no code", shared.ErrInvalidCredentials)
	}
	return code, nil
}

func (s *BullhornService) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	token, err := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// login opens a REST session. With force set the access token is refreshed first,
// since Bullhorn access tokens are consumed by the login call.
func (s *BullhornService) login(ctx context.Context, force bool) (*BullhornSession, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == nil {
		return nil, shared.ErrNotAuthenticated
	}

	if force || !token.Valid() {
		if token.RefreshToken == "" {
			return nil, shared.ErrNoRefreshToken
		}
		refreshed, err := s.refresh(ctx, token.RefreshToken)
		if err != nil {
			return nil, err
		}
		token = refreshed
	}

	params := url.Values{"version": {"*"}, "access_token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.loginURL+"/rest-services/login?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: rest login failed: %w", shared.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rest login status %d: %s", shared.ErrAuthFailed, resp.StatusCode, readError(resp.Body))
	}

	var session BullhornSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if session.BhRestToken == "" || session.RestURL == "" {
		return nil, fmt.Errorf("%w: login response missing BhRestToken or restUrl", shared.ErrAuthFailed)
	}

	s.mu.Lock()
	s.token = token
	s.session = &session
	s.mu.Unlock()

	s.logger.Debug("bullhorn session opened", "rest_url", session.RestURL)
	return &session, nil
}

func (s *BullhornService) currentSession(ctx context.Context) (*BullhornSession, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session != nil {
		return session, nil
	}
	return s.login(ctx, false)
}

// doRequest performs a rate-limited request against the REST session.
func (s *BullhornService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	session, err := s.currentSession(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		apiURL := strings.TrimSuffix(session.RestURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")
		if len(query) > 0 {
			apiURL += "?" + query.Encode()
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("BhRestToken", session.BhRestToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			s.logger.Info("bullhorn session expired, logging in again")
			if session, err = s.login(ctx, true); err != nil {
				return fmt.Errorf("%w: re-login failed: %w", shared.ErrTokenExpired, err)
			}
			continue
		}

		err = decodeResponse(resp, result)
		resp.Body.Close()
		return err
	}
}

func decodeResponse(resp *http.Response, result any) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: bullhorn status 401", shared.ErrNotAuthenticated)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: bullhorn status %d: %s", shared.ErrAPIRequest, resp.StatusCode, readError(resp.Body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// readError extracts Bullhorn's errorMessage, falling back to the raw body.
func readError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))

	var e bullhornError
	if err := json.Unmarshal(raw, &e); err == nil && e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return strings.TrimSpace(string(raw))
}

// Ping checks that the REST session is still valid.
func (s *BullhornService) Ping(ctx context.Context) error {
	var result struct {
		SessionExpires int64 `json:"sessionExpires"`
	}
	return s.doRequest(ctx, http.MethodGet, "ping", nil, nil, &result)
}

// SearchJobs returns one page of open, public job orders ordered by ID.
func (s *BullhornService) SearchJobs(ctx context.Context, start, count int) (*models.JobPage, error) {
	if count <= 0 {
		count = 200
	}
	if count > 500 {
		count = 500
	}

	query := url.Values{
		"query":  {s.jobQuery},
		"fields": {s.jobFields},
		"start":  {strconv.Itoa(start)},
		"count":  {strconv.Itoa(count)},
		"sort":   {"id"},
	}

	var response bullhornSearch[BullhornJob]
	if err := s.doRequest(ctx, http.MethodGet, "search/JobOrder", query, nil, &response); err != nil {
		return nil, err
	}

	page := &models.JobPage{
		Total: response.Total,
		Start: response.Start,
		Count: response.Count,
		Data:  make([]models.Job, 0, len(response.Data)),
	}
	for _, j := range response.Data {
		page.Data = append(page.Data, j.Job())
	}
	return page, nil
}

// FindCandidate looks up a live candidate by email.
func (s *BullhornService) FindCandidate(ctx context.Context, email string) (int, error) {
	query := url.Values{
		"query":  {fmt.Sprintf("email:%q AND isDeleted:0", email)},
		"fields": {"id"},
		"count":  {"1"},
	}

	var response bullhornSearch[struct {
		ID int `json:"id"`
	}]
	if err := s.doRequest(ctx, http.MethodGet, "search/Candidate", query, nil, &response); err != nil {
		return 0, err
	}

	if len(response.Data) == 0 {
		return 0, fmt.Errorf("%w: %s", shared.ErrCandidateNotFound, email)
	}
	return response.Data[0].ID, nil
}

// CreateCandidate creates a candidate from an application.
func (s *BullhornService) CreateCandidate(ctx context.Context, app *models.Application) (int, error) {
	body := map[string]any{
		"firstName":   app.FirstName(),
		"lastName":    app.LastName(),
		"name":        app.Name(),
		"email":       app.Email(),
		"phone":       app.Phone(),
		"description": app.Resume(),
		"status":      "New Lead",
		"source":      "Web Response",
	}

	var change bullhornChange
	if err := s.doRequest(ctx, http.MethodPut, "entity/Candidate", nil, body, &change); err != nil {
		return 0, err
	}
	if change.ChangedEntityID == 0 {
		return 0, fmt.Errorf("%w: candidate create returned no id", shared.ErrAPIRequest)
	}
	return change.ChangedEntityID, nil
}

// CreateSubmission creates a web-response JobSubmission for the candidate.
func (s *BullhornService) CreateSubmission(ctx context.Context, candidateID, jobID int) (int, error) {
	body := map[string]any{
		"candidate":       map[string]int{"id": candidateID},
		"jobOrder":        map[string]int{"id": jobID},
		"status":          "New Lead",
		"dateWebResponse": time.Now().UnixMilli(),
	}

	var change bullhornChange
	if err := s.doRequest(ctx, http.MethodPut, "entity/JobSubmission", nil, body, &change); err != nil {
		if errors.Is(err, shared.ErrAPIRequest) && strings.Contains(err.Error(), "status 404") {
			return 0, fmt.Errorf("%w: %d", shared.ErrJobNotFound, jobID)
		}
		return 0, err
	}
	if change.ChangedEntityID == 0 {
		return 0, fmt.Errorf("%w: submission create returned no id", shared.ErrAPIRequest)
	}
	return change.ChangedEntityID, nil
}
