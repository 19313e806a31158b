// Package apiclient is the HTTP client of the remote access-request API. It
// attaches the bearer token, decodes the {success,message,data} envelope and
// normalises failures into *Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"armp/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 1 << 20

// TokenSource yields the bearer token for outgoing calls. tokenstore.Store
// satisfies it.
type TokenSource interface {
	Load(ctx context.Context) (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outgoing calls per second; zero disables the limiter.
	RateLimit float64
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client calls the remote API. A Client is safe for concurrent use; copies
// made by WithTokenSource share the transport and limiter.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tokens  TokenSource
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"errorCode"`
}

// New returns a Client without a token source.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// WithTokenSource returns a copy of c that authenticates with ts.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// do performs one API call. out, when non-nil, receives the envelope data.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	outcome := observability.OutcomeSuccess
	status := 0

	ctx, span := observability.GetTraceLayer().TraceAPICall(ctx, op, method, path)
	defer func() {
		span.SetAttributes(attribute.Int("http.status_code", status))
		observability.SpanError(span, err)
		span.End()

		elapsed := time.Since(start)
		observability.ObserveAPICall(op, outcome, elapsed)
		observability.Logger.DebugContext(ctx, "api call",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("outcome", outcome),
			slog.Duration("duration", elapsed),
		)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			outcome = observability.OutcomeTransport
			return fmt.Errorf("%s: rate limit: %w", op, err)
		}
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		outcome = observability.OutcomeTransport
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = observability.OutcomeTransport
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outcome = observability.OutcomeTransport
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if !ok || (decodeErr == nil && !env.Success) {
		outcome = observability.OutcomeAPIError
		return &Error{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    env.Message,
			ErrorCode:  env.ErrorCode,
		}
	}
	if decodeErr != nil {
		outcome = observability.OutcomeTransport
		return fmt.Errorf("%s: decode response: %w", op, decodeErr)
	}

	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		outcome = observability.OutcomeTransport
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rid := observability.RequestIDFrom(ctx)
	if rid == "" {
		rid = observability.NewCorrelationID()
	}
	req.Header.Set("X-Request-ID", rid)

	if c.tokens != nil {
		token, err := c.tokens.Load(ctx)
		if err != nil {
			observability.Logger.WarnContext(ctx, "token unavailable, calling without credentials", slog.String("error", err.Error()))
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}
