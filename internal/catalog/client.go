package catalog

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
	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/time/rate"

	"titlemonitor/internal/logging"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

// MethodAddJournal is the remote procedure that upserts a journal record.
const MethodAddJournal = "add_journal"

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = 2 * time.Second
	maxRetryDelay     = 30 * time.Second
	maxErrorBody      = 512
)

// Config captures the settings required to reach the catalog.
type Config struct {
	URL               string
	TimeoutSeconds    int
	RetryAttempts     int
	RetryDelaySeconds int
	// RatePerSecond limits calls; 0 disables limiting.
	RatePerSecond float64
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

// WithClock overrides the clock used for retry delays (useful for tests).
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "catalog")
	}
}

// WithRequestIDs overrides request id generation.
func WithRequestIDs(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.newID = next
		}
	}
}

// Client is a JSON-RPC client for the catalog service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   int
	delay      time.Duration
	clock      clock.Clock
	newID      func() string
	logger     *slog.Logger
}

// New constructs a catalog client.
func New(cfg Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("catalog url required")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	delay := defaultRetryDelay
	if cfg.RetryDelaySeconds > 0 {
		delay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		attempts:   attempts,
		delay:      delay,
		clock:      clock.WallClock,
		newID:      func() string { return uuid.NewString() },
		logger:     logging.NewComponentLogger(nil, "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the catalog URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// AddJournal sends one record to the catalog.
func (c *Client) AddJournal(ctx context.Context, rec record.Record) error {
	var result json.RawMessage
	if err := c.Call(ctx, MethodAddJournal, []any{rec}, &result); err != nil {
		return err
	}
	logging.WithContext(ctx, c.logger).Debug("journal accepted",
		logging.String(logging.FieldRecordKey, rec.CollectionAcronym()+rec.Identifier()),
		logging.String("result", summarize(result)),
	)
	return nil
}

// Call invokes method with params and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.newID()}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("catalog %s: encode request: %w", method, err)
	}
	logger := logging.WithContext(services.WithRequestID(ctx, req.ID), c.logger)

	var (
		resp    rpcResponse
		lastErr error
	)
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			resp, lastErr = c.post(ctx, body)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !isRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt < c.attempts {
				logger.Debug("catalog call failed; retrying",
					logging.String("method", method),
					logging.Int("attempt", attempt),
					logging.Error(err),
				)
			}
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		MaxDelay:    maxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return c.classify(method, lastErr)
	}

	if resp.Error != nil {
		return services.Wrap(services.ErrDispatch, "catalog", method, "remote error", resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("catalog %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (rpcResponse, error) {
	var decoded rpcResponse
	if err := c.limiter.Wait(ctx); err != nil {
		return decoded, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return decoded, &permanentError{err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decoded, fmt.Errorf("http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decoded, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decoded, &httpStatusError{StatusCode: resp.StatusCode, Body: truncate(string(payload))}
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return decoded, &permanentError{err: fmt.Errorf("decode response: %w", err)}
	}
	return decoded, nil
}

func (c *Client) classify(method string, err error) error {
	var netTimeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netTimeout) && netTimeout.Timeout()) {
		return services.Wrap(services.ErrTimeout, "catalog", method, c.endpoint, err)
	}
	return services.Wrap(services.ErrDispatch, "catalog", method, c.endpoint, err)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// RPCError is a JSON-RPC error object returned by the catalog.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	var status *httpStatusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func truncate(value string) string {
	if len(value) <= maxErrorBody {
		return value
	}
	return value[:maxErrorBody] + "..."
}

func summarize(raw json.RawMessage) string {
	return truncate(strings.TrimSpace(string(raw)))
}
