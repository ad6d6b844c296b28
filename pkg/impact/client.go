// Package impact provides the authenticated client for the affiliate
// reporting API: report catalog discovery, export scheduling, job status
// polling and result download. Every request passes through a shared rate
// limiter, circuit breaker and retry executor.
package impact

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/resilience"
)

// Client defines the gateway operations against the reporting API.
type Client interface {
	// DiscoverReports fetches the report catalog filtered to accessible
	// reports. Returns ErrEmptyCatalog when none are accessible.
	DiscoverReports(ctx context.Context) ([]model.ReportDescriptor, error)
	// ScheduleExport requests an asynchronous export of one report and
	// returns the job in scheduled state.
	ScheduleExport(ctx context.Context, reportID string, params ExportParams) (model.ExportJob, error)
	// CheckJobStatus fetches the current state of an export job, with the
	// upstream status string normalized to the canonical enum.
	CheckJobStatus(ctx context.Context, jobID string) (model.ExportJob, error)
	// DownloadResult fetches a completed job's delimited result payload,
	// decoded to UTF-8.
	DownloadResult(ctx context.Context, location string) (string, error)
}

// ExportParams narrows an export request. Dates are formatted upstream as
// YYYY-MM-DDTHH:mm:ssZ, no sub-second precision.
type ExportParams struct {
	SubAID    string
	DateRange *model.DateRange
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimiter overrides the request pacing limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithCircuitBreaker supplies the run-wide circuit breaker. The breaker is
// shared across all calls on one credential window and never reset between
// pipeline items.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

// WithRetryConfig overrides the per-request retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithClock injects a clock for date-boundary validation in tests.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) {
		c.now = now
	}
}

type httpClient struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	now        func() time.Time
}

// NewClient creates a reporting API client authenticated with the given
// credential pair. Credential material is carried only in the Authorization
// header and never logged.
func NewClient(accountSID, authToken string, opts ...Option) Client {
	c := &httpClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.impact.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retry:   resilience.DefaultRetryConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs one rate-limited, breaker-gated, retried GET. The body and
// status code of the final response are returned; non-2xx statuses come back
// as *APIError (transient-wrapped when retryable).
func (c *httpClient) get(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "impact: rate limiter")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		// The breaker gates every attempt: once open, remaining retries
		// fail fast without touching the network.
		if !c.breaker.CanExecute() {
			return nil, resilience.ErrCircuitOpen
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "impact: create request")
		}
		req.SetBasicAuth(c.accountSID, c.authToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			return nil, resilience.NewTransientError(eris.Wrap(err, "impact: transport"), 0)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			return nil, resilience.NewTransientError(eris.Wrap(readErr, "impact: read body"), resp.StatusCode)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.breaker.RecordFailure()
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			return nil, resilience.WrapStatus(apiErr, resp.StatusCode)
		}

		c.breaker.RecordSuccess()
		return body, nil
	})
}

func (c *httpClient) endpoint(parts ...string) string {
	u := c.baseURL + "/Advertisers/" + url.PathEscape(c.accountSID)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}
