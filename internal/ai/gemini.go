// Package ai calls the external generative-text provider.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// Config captures the provider endpoint and the call policy around it.
type Config struct {
	URL    string
	APIKey string

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration
	// MaxRetries is the number of extra attempts for transient failures.
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	// BreakerFailures consecutive transient failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// GatewayError describes a failed provider call. Transient errors (network,
// timeouts, 408, 429, 5xx, open circuit) may succeed on a later attempt;
// the rest (authentication, other 4xx) will not.
type GatewayError struct {
	StatusCode int
	Transient  bool
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("ai provider returned status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("ai provider call failed: %v", e.Err)
	default:
		return "ai provider call failed"
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a GatewayError worth retrying later.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Transient
}

// Option configures optional behaviour for GeminiClient.
type Option func(*GeminiClient)

// WithHTTPClient overrides the HTTP client, e.g. for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *GeminiClient) { c.httpClient = client }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *zap.Logger) Option {
	return func(c *GeminiClient) { c.logger = logger }
}

// GeminiClient issues generateContent calls.
type GeminiClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[string]
	logger     *zap.Logger
}

// NewGeminiClient constructs a client for the configured endpoint.
func NewGeminiClient(cfg Config, opts ...Option) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ai provider url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ai provider api key is required")
	}
	cfg.applyDefaults()

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &GeminiClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, cfg.RateBurst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "ai-provider",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Only provider-side trouble counts against the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerStateGauge.Set(float64(to))
			c.logger.Warn("ai circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

// GetAnswer sends prompt to the provider and returns the raw response body.
// Transient failures are retried with exponential backoff up to MaxRetries.
func (c *GeminiClient) GetAnswer(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	var answer string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.breaker.Execute(func() (string, error) {
			return c.do(ctx, body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				// Waiting out the cooldown is the consumer's job, not this call's.
				return backoff.Permanent(&GatewayError{Transient: true, Err: err})
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		answer = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	err = backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx),
		func(err error, wait time.Duration) {
			retryCounter.Inc()
			c.logger.Info("retrying ai provider call", zap.Duration("wait", wait), zap.Error(err))
		},
	)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestCounter.WithLabelValues(outcome(err)).Inc()
		return "", err
	}
	requestCounter.WithLabelValues("success").Inc()
	return answer, nil
}

func (c *GeminiClient) do(ctx context.Context, body []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &GatewayError{Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &GatewayError{
			StatusCode: resp.StatusCode,
			Transient:  transientStatus(resp.StatusCode),
			Body:       truncate(string(payload), 512),
		}
	}
	return string(payload), nil
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func outcome(err error) string {
	var gwErr *GatewayError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized, errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusForbidden:
		return "auth_error"
	case IsTransient(err):
		return "transient_error"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
