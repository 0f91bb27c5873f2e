package immich

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

	"github.com/google/uuid"

	"reclaim/internal/config"
	"reclaim/internal/logging"
	"reclaim/internal/services"
)

const (
	headerAPIKey          = "x-api-key"
	headerRequestID       = "x-request-id"
	defaultRequestTimeout = 300 * time.Second
	defaultRetryMax       = 3
	defaultRetryBackoff   = 2 * time.Second
	defaultPageSize       = 500
)

// Client talks to one Immich server. It is safe for concurrent use.
//
// API calls are bounded by the HTTP client's timeout. Downloads and uploads
// run on a copy without one and are cancelled only when no bytes move for the
// stall timeout, so large videos can take as long as they need.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	transferClient *http.Client
	stallTimeout   time.Duration
	logger         *slog.Logger

	retryMax     int
	retryBackoff time.Duration
	pageSize     int
	sleeper      func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Transfers use a copy
// with Timeout cleared.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithStallTimeout sets how long a download or upload may go without moving
// bytes. Zero disables the guard.
func WithStallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.stallTimeout = timeout
	}
}

// WithRetry sets how many times idempotent reads are retried and the base
// delay, which doubles per attempt.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retryMax = maxRetries
		c.retryBackoff = backoff
	}
}

// WithPageSize sets the search page size.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client for the API rooted at baseURL (for example
// "https://photos.example.com/api/").
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/",
		apiKey:       strings.TrimSpace(apiKey),
		httpClient:   &http.Client{Timeout: defaultRequestTimeout, Transport: newTransport(defaultRequestTimeout)},
		stallTimeout: defaultRequestTimeout,
		logger:       logging.NewNop(),
		retryMax:     defaultRetryMax,
		retryBackoff: defaultRetryBackoff,
		pageSize:     defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	transfer := *c.httpClient
	transfer.Timeout = 0
	c.transferClient = &transfer
	c.logger = logging.NewComponentLogger(c.logger, "immich")
	return c
}

// NewFromConfig builds a client from the [immich] config section.
// request_timeout bounds API calls and is the stall limit for transfers.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout()
	return New(cfg.Immich.APIBase, cfg.Immich.APIKey,
		WithHTTPClient(&http.Client{Timeout: timeout, Transport: newTransport(timeout)}),
		WithStallTimeout(timeout),
		WithRetry(cfg.Immich.RetryMax, cfg.RetryBackoff()),
		WithPageSize(cfg.Immich.PageSize),
		WithLogger(logger),
	)
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// bodyFunc produces a fresh request body and its content type for each attempt.
type bodyFunc func() (io.Reader, string, error)

type request struct {
	method string
	path   string
	body   bodyFunc
	// idempotent requests are retried on 429, 5xx, and transport errors.
	idempotent bool
	// transfer requests stream file bodies and use the stall guard instead
	// of a total timeout.
	transfer bool
}

func jsonBody(payload any) (bodyFunc, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return func() (io.Reader, string, error) {
		return bytes.NewReader(data), "application/json", nil
	}, nil
}

// do sends req, retrying idempotent calls with exponential backoff. The
// caller owns the returned body.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	attempts := 1
	if req.idempotent && c.retryMax > 0 {
		attempts = c.retryMax + 1
	}
	requestID := uuid.NewString()
	if id, ok := services.RequestIDFromContext(ctx); ok {
		requestID = id
	}
	logger := logging.WithContext(ctx, c.logger).With(logging.String(logging.FieldCorrelationID, requestID))

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryBackoff*time.Duration(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}
		client, attemptCtx := c.httpClient, ctx
		var guard *stallGuard
		if req.transfer {
			client = c.transferClient
			attemptCtx, guard = withStallGuard(ctx, c.stallTimeout)
		}
		httpReq, err := c.newRequest(attemptCtx, req, requestID, guard)
		if err != nil {
			guard.stop()
			return nil, err
		}
		start := time.Now()
		resp, err := client.Do(httpReq)
		if err != nil {
			guard.stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			err = guard.err(err)
			lastErr = services.Wrap(services.ErrTransient, "immich", req.method+" "+req.path, "request failed", err)
			logger.Debug("immich request failed",
				logging.String("method", req.method),
				logging.String("path", req.path),
				logging.Int("attempt", attempt+1),
				logging.Error(err),
			)
			continue
		}
		logger.Debug("immich request",
			logging.String("method", req.method),
			logging.String("path", req.path),
			logging.Int("status", resp.StatusCode),
			logging.Duration("elapsed", time.Since(start)),
			logging.Int("attempt", attempt+1),
		)
		if guard != nil {
			resp.Body = &guardedBody{guardedReader{r: resp.Body, guard: guard}}
		}
		if req.idempotent && retryableStatus(resp.StatusCode) && attempt+1 < attempts {
			drain(resp)
			lastErr = &StatusError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode}
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("immich: request failed")
	}
	return nil, lastErr
}

func (c *Client) newRequest(ctx context.Context, req request, requestID string, guard *stallGuard) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	if req.body != nil {
		var err error
		if body, contentType, err = req.body(); err != nil {
			return nil, err
		}
		if guard != nil {
			body = &guardedReader{r: body, guard: guard}
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("build immich request: %w", err)
	}
	httpReq.Header.Set(headerAPIKey, c.apiKey)
	httpReq.Header.Set(headerRequestID, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// expect closes resp and returns a StatusError unless the status is one of want.
func expect(resp *http.Response, method, path string, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(body)}
}

func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode immich response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
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
