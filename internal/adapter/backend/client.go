package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/infra/config"
	"conduit-ai/internal/infra/tracer"
)

// Fixed transport-layer schedule. Retries pause a fixed interval;
// health probes escalate timeouts across a fixed ladder, stopping at
// the first success.
const (
	retryPause     = 2 * time.Second
	maxOpenRetries = 3
)

var healthTimeouts = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// QueryRequest is the conversational query sent to the backend.
type QueryRequest struct {
	ConversationID string          `json:"conversation_id"`
	Prompt         string          `json:"prompt"`
	Attachments    []string        `json:"attachments,omitempty"`
	Functions      json.RawMessage `json:"functions,omitempty"`
}

// Client talks to the remote AI backend. Stream opens are protected by
// a circuit breaker so a failing backend does not absorb retry storms,
// and paced by a limiter so the fixed retry pause is honored even
// across concurrent conversations.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// DefaultBreaker settings.
const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// NewClient creates a backend client from config.
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Breaker.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Breaker.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "backend:" + cfg.BaseURL,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  newHTTPClient(cfg),
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(retryPause), 1),
		logger:  logger,
	}
}

// OpenStream starts the streamed response for a query and returns a
// handle the poller can drive. Retryable failures pause the fixed
// interval between attempts; terminal classifications surface
// immediately without consuming another attempt.
func (c *Client) OpenStream(ctx context.Context, req QueryRequest) (*StreamHandle, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.open_stream",
		trace.WithAttributes(tracer.StringAttr("conversation.id", req.ConversationID)),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxOpenRetries; attempt++ {
		if attempt > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, domain.WrapOp("backend.OpenStream", err)
			}
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.doStream(ctx, body)
		})
		if err == nil {
			tracer.SetOK(span)
			return newStreamHandle(resp.Body, c.logger), nil
		}

		if domain.CodeOf(err).Terminal() {
			tracer.RecordError(span, err)
			return nil, err
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("backend circuit open: %w", err)
		}
		lastErr = err
		c.logger.Debug("stream open failed, will retry", "attempt", attempt+1, "error", err)
	}

	tracer.RecordError(span, lastErr)
	return nil, domain.WrapOp("backend.OpenStream", lastErr)
}

func (c *Client) doStream(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// Health probes the backend readiness endpoint, escalating the timeout
// across the fixed ladder with the fixed pause between rungs.
func (c *Client) Health(ctx context.Context) error {
	var lastErr error
	for i, timeout := range healthTimeouts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryPause):
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.probe(probeCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Debug("health probe failed", "rung", i+1, "timeout", timeout, "error", err)
	}
	return domain.WrapOp("backend.Health", lastErr)
}

func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// wireError is the backend's error envelope.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError maps a non-200 response to a BackendError carrying the
// machine-readable kind string when the body supplies one.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var we wireError
	if err := json.Unmarshal(raw, &we); err == nil && we.Error.Code != "" {
		return &domain.BackendError{
			Code:    domain.ErrorCode(we.Error.Code),
			Message: we.Error.Message,
		}
	}
	return &domain.BackendError{
		Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
	}
}

func newHTTPClient(cfg config.BackendConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = 30 * time.Second
	}
	respTimeout := cfg.RespTimeout
	if respTimeout == 0 {
		respTimeout = 120 * time.Second
	}

	maxIdle := cfg.Pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 20
	}
	maxIdlePerHost := cfg.Pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 10
	}
	maxConnsPerHost := cfg.Pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 20
	}
	idleTimeout := cfg.Pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: respTimeout,
			MaxIdleConns:          maxIdle,
			MaxIdleConnsPerHost:   maxIdlePerHost,
			MaxConnsPerHost:       maxConnsPerHost,
			IdleConnTimeout:       idleTimeout,
			ForceAttemptHTTP2:     true,
		},
		// No overall client timeout: the response body is a long-lived
		// stream bounded by the poller's watchdog instead.
	}
}
