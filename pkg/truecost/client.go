// Package truecost is the client for the truecost data service.
package truecost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/resilience"
)

// TokenSource supplies the bearer token attached to each request. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// APIError is a non-2xx response. Its Error field is the service's {error}
// message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("truecost: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the shared error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return model.ErrValidation
	case http.StatusNotFound:
		return model.ErrNotFound
	default:
		return model.ErrUnavailable
	}
}

// Health is the /health response.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles requests to rps with the given burst. rps <= 0
// disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker overrides the breaker that short-circuits calls while
// the service is down.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// Client talks to the data service.
type Client struct {
	baseURL    string
	tokens     TokenSource
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breakerCfg resilience.CircuitBreakerConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a Client for baseURL. tokens may be nil.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		http:       &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(5, 10),
		retry:      resilience.DefaultRetryConfig(),
		breakerCfg: resilience.DefaultCircuitBreakerConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("truecost", "request")
	c.breakerCfg.ShouldTrip = resilience.IsTransient
	c.breaker = resilience.NewCircuitBreaker(c.breakerCfg)
	return c
}

// Breaker exposes the client's circuit breaker state.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// do sends one logical request. Transient failures are retried inside the
// circuit breaker; an open circuit fails fast with model.ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "truecost: marshal request")
		}
		payload = b
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
			return c.attempt(ctx, method, path, payload, out)
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return eris.Wrapf(model.ErrUnavailable, "truecost: %s %s: circuit open", method, path)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "truecost: rate limit")
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "truecost: create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(err, "truecost: request")
		}
		return resilience.NewTransientError(eris.Wrapf(model.ErrUnavailable, "truecost: %s %s: %v", method, path, err), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "truecost: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(raw, out), "truecost: unmarshal %s response", path)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if len(raw) == 0 {
		return "Request failed"
	}
	return strings.TrimSpace(string(raw))
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSettings returns the remote profile, or nil when none was saved.
func (c *Client) GetSettings(ctx context.Context) (*model.Settings, error) {
	var out struct {
		Settings *model.Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// SaveSettings upserts the remote profile.
func (c *Client) SaveSettings(ctx context.Context, s model.Settings) (*model.Settings, error) {
	var out struct {
		Settings *model.Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodPost, "/settings", s, &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// ActiveVariants lists the prompts eligible for selection.
func (c *Client) ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error) {
	var out struct {
		Variants []model.QuestionVariant `json:"variants"`
	}
	if err := c.do(ctx, http.MethodGet, "/variants/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Variants, nil
}

// Effectiveness lists the caller's per-variant counters.
func (c *Client) Effectiveness(ctx context.Context) ([]model.EffectivenessStat, error) {
	var out struct {
		Effectiveness []model.EffectivenessStat `json:"effectiveness"`
	}
	if err := c.do(ctx, http.MethodGet, "/effectiveness", nil, &out); err != nil {
		return nil, err
	}
	return out.Effectiveness, nil
}

// RecordSaving submits one purchase decision.
func (c *Client) RecordSaving(ctx context.Context, rec model.SavingRecord) (*model.SavingRecord, error) {
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	var out struct {
		Saving *model.SavingRecord `json:"saving"`
	}
	if err := c.do(ctx, http.MethodPost, "/savings", rec, &out); err != nil {
		return nil, err
	}
	return out.Saving, nil
}

// Savings returns skipped-purchase totals for a period token.
func (c *Client) Savings(ctx context.Context, period string) (*model.Totals, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	return c.savings(ctx, q)
}

// SavingsBetween returns skipped-purchase totals for [start, end).
func (c *Client) SavingsBetween(ctx context.Context, start, end time.Time) (*model.Totals, error) {
	q := url.Values{}
	q.Set("start_date", start.Format(time.RFC3339))
	q.Set("end_date", end.Format(time.RFC3339))
	return c.savings(ctx, q)
}

func (c *Client) savings(ctx context.Context, q url.Values) (*model.Totals, error) {
	path := "/savings"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out model.Totals
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BestVariant returns the caller's most effective variant, or nil.
func (c *Client) BestVariant(ctx context.Context) (*model.BestVariant, error) {
	var out struct {
		BestVariant *model.BestVariant `json:"best_variant"`
	}
	if err := c.do(ctx, http.MethodGet, "/savings/best-variant", nil, &out); err != nil {
		return nil, err
	}
	return out.BestVariant, nil
}
