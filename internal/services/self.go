package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SelfClient makes plain HTTP requests back to this service.
//
// Continuation strategies use it for REST self-calls and loopback requests.
type SelfClient struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewSelfClient creates a client for the service listening at baseURL.
func NewSelfClient(baseURL string, client *http.Client) *SelfClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &SelfClient{
		baseURL:    baseURL,
		httpClient: client,
		headers:    http.Header{},
	}
}

// BaseURL returns the URL requests are resolved against.
func (c *SelfClient) BaseURL() string {
	return c.baseURL
}

// SetHeader adds a header sent with every request.
func (c *SelfClient) SetHeader(key, value string) {
	c.headers.Set(key, value)
}

// Response represents a raw response with status and body.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to the specified path and returns the raw response.
func (c *SelfClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (c *SelfClient) Post(ctx context.Context, path string, data []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, data)
}

// PostJSON encodes v and posts it to path.
func (c *SelfClient) PostJSON(ctx context.Context, path string, v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.Post(ctx, path, data)
}

func (c *SelfClient) do(ctx context.Context, method, path string, data []byte) (*Response, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	r := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		r.IsJSON = true
		r.JSONData = jsonData
	}

	return r, nil
}
