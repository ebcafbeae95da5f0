// Package provider talks to the external catalog and inventory API (Square-compatible wire format).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vinylyard/api/internal/platform/observability"
)

const (
	defaultAPIVersion = "2024-10-17"
	defaultTimeout    = 20 * time.Second
	defaultMaxRetries = 4
	maxResponseBytes  = 8 << 20

	versionHeader = "Square-Version"
)

// TokenSource returns the bearer token for each request, allowing rotation without a restart.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client performs authenticated, rate limited, retried JSON calls against the provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    func() gax.Backoff
	sleep      func(ctx context.Context, d time.Duration) error
	tracer     trace.Tracer
	retries    metric.Int64Counter
}

// Option customises the Client.
type Option func(*clientConfig)

type clientConfig struct {
	apiVersion string
	token      TokenSource
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    gax.Backoff
	base       http.RoundTripper
	sleep      func(ctx context.Context, d time.Duration) error
	meter      metric.Meter
}

func WithAPIVersion(version string) Option {
	return func(cfg *clientConfig) {
		if v := strings.TrimSpace(version); v != "" {
			cfg.apiVersion = v
		}
	}
}

func WithTokenSource(source TokenSource) Option {
	return func(cfg *clientConfig) {
		cfg.token = source
	}
}

// WithRateLimit caps outgoing requests per second, shared across all calls on the client.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *clientConfig) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		cfg.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout bounds each attempt, not the whole retried call.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *clientConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(cfg *clientConfig) {
		if n >= 0 {
			cfg.maxRetries = n
		}
	}
}

func WithBackoff(backoff gax.Backoff) Option {
	return func(cfg *clientConfig) {
		cfg.backoff = backoff
	}
}

// WithTransport replaces the base round tripper, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *clientConfig) {
		if rt != nil {
			cfg.base = rt
		}
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(cfg *clientConfig) {
		cfg.meter = meter
	}
}

func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(cfg *clientConfig) {
		cfg.sleep = sleep
	}
}

// NewClient builds a Client for baseURL, for example https://connect.squareup.com.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog client: base url is required")
	}
	cfg := clientConfig{
		apiVersion: defaultAPIVersion,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		backoff:    gax.Backoff{Initial: 250 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2},
		base:       http.DefaultTransport,
		sleep:      gax.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.token == nil {
		return nil, errors.New("catalog client: token source is required")
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/vinylyard/api/internal/provider")
	}
	retries, err := meter.Int64Counter("catalog.provider.retries",
		metric.WithDescription("Retried calls to the catalog provider"))
	if err != nil {
		return nil, fmt.Errorf("catalog client: register retry counter: %w", err)
	}

	backoff := cfg.backoff
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &transport{
				base:       cfg.base,
				token:      cfg.token,
				apiVersion: cfg.apiVersion,
				limiter:    cfg.limiter,
			},
		},
		maxRetries: cfg.maxRetries,
		backoff:    func() gax.Backoff { return backoff },
		sleep:      cfg.sleep,
		tracer:     observability.Tracer("internal/provider"),
		retries:    retries,
	}, nil
}

// transport applies authentication, versioning and the shared rate limit to every attempt.
type transport struct {
	base       http.RoundTripper
	token      TokenSource
	apiVersion string
	limiter    *rate.Limiter
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	token, err := t.token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("resolve access token: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set(versionHeader, t.apiVersion)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return t.base.RoundTrip(req)
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Category   string
	Code       string
	Detail     string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	parts := []string{fmt.Sprintf("catalog provider: status %d", e.StatusCode)}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, ": ")
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// do sends a JSON request and decodes the response into out, retrying transient failures.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "catalog.provider."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("url.path", path)))
	defer func() { observability.EndSpan(span, err) }()

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	backoff := c.backoff()
	for attempt := 0; ; attempt++ {
		err = c.attempt(ctx, method, path, payload, out)
		if err == nil || attempt >= c.maxRetries || !retryable(ctx, err) {
			span.SetAttributes(attribute.Int("catalog.provider.attempts", attempt+1))
			return err
		}

		delay := backoff.Pause()
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
			delay = min(apiErr.RetryAfter, backoff.Max)
		}
		c.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope errorEnvelope
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		apiErr.Category = first.Category
		apiErr.Code = first.Code
		apiErr.Detail = first.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
		if len(apiErr.Detail) > 200 {
			apiErr.Detail = apiErr.Detail[:200]
		}
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && seconds > 0 {
		apiErr.RetryAfter = time.Duration(seconds) * time.Second
	}
	return apiErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Decode failures on a 2xx will not change on retry.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return true
}
