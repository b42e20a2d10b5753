package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storyart/internal/logging"
	"storyart/internal/services"
)

const (
	defaultTimeout         = 5 * time.Minute
	defaultExtendedTimeout = 10 * time.Minute
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 1 * time.Second
	defaultRetryMaxDelay   = 30 * time.Second
)

// Config captures the runtime settings required to talk to the render service.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	ExtendedTimeout time.Duration
}

// Request describes one generation call.
type Request struct {
	Label    string  `json:"-"`
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Model    string  `json:"model,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Seed     int64   `json:"seed,omitempty"`
	Count    int     `json:"count,omitempty"`
}

// Result is the outcome of one successful generation call.
type Result struct {
	Files    []string
	Attempts int
	Duration time.Duration
}

// Client calls the render service with classified retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)

	estimator *estimator
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for retry and stats events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "render")
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 4).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryMaxAttempts = attempts
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a render client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ExtendedTimeout <= cfg.Timeout {
		cfg.ExtendedTimeout = cfg.Timeout * 2
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	client := &Client{
		cfg:              cfg,
		httpClient:       &http.Client{},
		logger:           logging.NewComponentLogger(nil, "render"),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		estimator:        newEstimator(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("render request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// InitSession performs the service handshake. Failure here means the run
// cannot proceed at all, so it maps to ServiceUnavailable.
func (c *Client) InitSession(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/session/init", nil)
	if err != nil {
		return services.Wrap(services.ErrServiceUnavailable, "render", "init", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrServiceUnavailable, "render", "init", c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return services.Wrap(services.ErrServiceUnavailable, "render", "init",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	c.refreshStats(ctx)
	return nil
}

// Generate issues one generation call with classified retries. The returned
// error is tagged ErrPermanent, ErrTimeout, or ErrTransient and its message
// lists every attempt when retries were exhausted.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, services.Wrap(services.ErrPermanent, "render", "generate", "empty prompt", nil)
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	machine := newRetryMachine(c.retryMaxAttempts, c.retryBaseDelay, c.retryMaxDelay)
	start := time.Now()

	for {
		attempt := machine.begin()
		timeout := c.cfg.Timeout
		if machine.extendedDeadline {
			timeout = c.cfg.ExtendedTimeout
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		files, err := c.generateOnce(callCtx, req)
		cancel()

		if ctx.Err() != nil {
			return Result{}, services.Wrap(services.ErrTransient, "render", "generate", "call aborted", ctx.Err())
		}

		machine.observe(err)
		switch machine.phase {
		case phaseSucceeded:
			duration := time.Since(start)
			c.estimator.observe(duration)
			return Result{Files: files, Attempts: attempt, Duration: duration}, nil
		case phaseBackoff:
			c.logger.Warn("render attempt failed; retrying",
				logging.String("label", req.Label),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("delay", machine.nextDelay),
				logging.Bool("extended_deadline", machine.extendedDeadline),
				logging.Error(err),
			)
			if sleepErr := c.sleep(ctx, machine.nextDelay); sleepErr != nil {
				return Result{}, services.Wrap(services.ErrTransient, "render", "generate", "backoff interrupted", sleepErr)
			}
		case phaseFailed:
			return Result{}, machine.failure("render", req.Label)
		}
	}
}

func (c *Client) generateOnce(ctx context.Context, req Request) ([]string, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/generate", bytes.NewReader(encoded))
	if err != nil {
		return nil, &permanentError{fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Files []string `json:"files"`
		Error string   `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Error != "" {
		return nil, &permanentError{errors.New(strings.TrimSpace(payload.Error))}
	}
	if len(payload.Files) == 0 {
		return nil, errors.New("response carried no files")
	}
	return payload.Files, nil
}

// EstimateRemaining projects the time left for the given number of pending
// items, folding in the service's reported queue depth when known.
func (c *Client) EstimateRemaining(pendingItems int) time.Duration {
	return c.estimator.remaining(pendingItems)
}

// refreshStats asks the service for aggregate timing statistics. The
// endpoint is optional; every failure path leaves local observations in
// charge.
func (c *Client) refreshStats(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+"/stats", nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	var payload struct {
		AvgDurationMS int64 `json:"avg_duration_ms"`
		QueueDepth    int   `json:"queue_depth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return
	}
	c.estimator.setServiceStats(time.Duration(payload.AvgDurationMS)*time.Millisecond, payload.QueueDepth)
	c.logger.Debug("render stats refreshed",
		logging.Int64("avg_duration_ms", payload.AvgDurationMS),
		logging.Int("queue_depth", payload.QueueDepth),
	)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
