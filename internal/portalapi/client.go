// Package portalapi is the typed client of the survey analytics REST backend.
// Every call is a single attempt: no retry, no caching.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the local development backend.
const DefaultBaseURL = "http://localhost:8000"

// TokenProvider yields the subscriber's bearer token. An empty token means the
// request is sent without credentials.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a provider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// Recorder receives one observation per backend call.
type Recorder interface {
	ObserveRequest(operation string, err error, elapsed time.Duration)
}

type operation struct {
	name    string
	message string
}

var (
	opGetStudies       = operation{"get_studies", "Failed to load studies"}
	opGetFilterOptions = operation{"get_filter_options", "Failed to load filter options"}
	opGetTimeseries    = operation{"get_timeseries", "Failed to load timeseries"}
	opGetDistribution  = operation{"get_distribution", "Failed to load distribution"}
	opExportCSV        = operation{"export_csv", "Failed to export CSV"}
	opGetSavedViews    = operation{"get_saved_views", "Failed to load saved views"}
	opCreateSavedView  = operation{"create_saved_view", "Failed to save view"}
	opDeleteSavedView  = operation{"delete_saved_view", "Failed to delete saved view"}
)

// Client talks to the survey backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout. Zero keeps requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit throttles outgoing calls to rps requests per second.
// Zero or negative disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStudies lists all studies.
func (c *Client) GetStudies(ctx context.Context) ([]Study, error) {
	var out []Study
	if _, err := c.do(ctx, opGetStudies, http.MethodGet, "/api/studies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFilterOptions returns the option lists of one study.
func (c *Client) GetFilterOptions(ctx context.Context, studyID int64) (FilterOptions, error) {
	var out FilterOptions
	path := fmt.Sprintf("/api/studies/%d/filters", studyID)
	if _, err := c.do(ctx, opGetFilterOptions, http.MethodGet, path, nil, nil, &out); err != nil {
		return FilterOptions{}, err
	}
	return out, nil
}

// GetTimeseries returns one point per wave for a question under filters.
func (c *Client) GetTimeseries(ctx context.Context, studyID int64, questionCode string, filters Filters) ([]TimePoint, error) {
	var out []TimePoint
	path := fmt.Sprintf("/api/studies/%d/timeseries?%s", studyID,
		buildQuery(filters, "question_code", questionCode))
	if _, err := c.do(ctx, opGetTimeseries, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDistribution returns one point per group of dimension.
func (c *Client) GetDistribution(ctx context.Context, studyID int64, questionCode, dimension string, filters Filters) ([]DistributionPoint, error) {
	var out []DistributionPoint
	path := fmt.Sprintf("/api/studies/%d/distribution?%s", studyID,
		buildQuery(filters, "question_code", questionCode, "dimension", dimension))
	if _, err := c.do(ctx, opGetDistribution, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportCSV downloads the CSV rendering of the current cut.
func (c *Client) ExportCSV(ctx context.Context, studyID int64, questionCode, dimension string, filters Filters, tokens TokenProvider) ([]byte, error) {
	path := fmt.Sprintf("/api/studies/%d/export.csv?%s", studyID,
		buildQuery(filters, "question_code", questionCode, "dimension", dimension))
	return c.do(ctx, opExportCSV, http.MethodGet, path, nil, tokens, nil)
}

// GetSavedViews lists the subscriber's saved views of one study.
func (c *Client) GetSavedViews(ctx context.Context, studyID int64, tokens TokenProvider) ([]SavedView, error) {
	var out []SavedView
	path := fmt.Sprintf("/api/saved-views?study_id=%d", studyID)
	if _, err := c.do(ctx, opGetSavedViews, http.MethodGet, path, nil, tokens, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSavedView stores a new saved view. The filter map is always sent with
// all four keys.
func (c *Client) CreateSavedView(ctx context.Context, payload SavedViewPayload, tokens TokenProvider) error {
	payload.Filters = payload.Filters.Clone()
	_, err := c.do(ctx, opCreateSavedView, http.MethodPost, "/api/saved-views", payload, tokens, nil)
	return err
}

// DeleteSavedView removes a saved view by id.
func (c *Client) DeleteSavedView(ctx context.Context, viewID int64, tokens TokenProvider) error {
	path := fmt.Sprintf("/api/saved-views/%d", viewID)
	_, err := c.do(ctx, opDeleteSavedView, http.MethodDelete, path, nil, tokens, nil)
	return err
}

// do performs one request. When out is nil the raw body is returned.
func (c *Client) do(ctx context.Context, op operation, method, path string, body any, tokens TokenProvider, out any) (raw []byte, err error) {
	start := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.ObserveRequest(op.name, err, time.Since(start))
		}
	}()

	fail := func(status int, cause error) error {
		return &RequestError{Op: op.name, Message: op.message, StatusCode: status, Err: cause}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	token := ""
	if tokens != nil {
		token, err = tokens(ctx)
		if err != nil {
			return nil, fail(0, fmt.Errorf("get token: %w", err))
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fail(0, fmt.Errorf("marshal body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Cache-Control", "no-store")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(0, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, fmt.Errorf("%s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(data))))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}

	return data, nil
}
