// Package apiclient talks to the student union REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/bde-portal/internal/metrics"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/middleware/requestid"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token attached to authenticated requests.
type TokenSource interface {
	AccessToken() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) AccessToken() string { return f() }

// Config describes how to reach the API.
type Config struct {
	BaseURL string
	// Timeout of zero leaves requests bounded only by their context.
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	UserAgent string
}

// Client is a thin JSON-over-HTTP client. It never retries.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	tokens    TokenSource
	limiter   *rate.Limiter
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithMetrics records every request.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q must be http or https", cfg.BaseURL)
	}

	c := &Client{
		baseURL:   u.String(),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    zap.NewNop(),
	}
	if c.userAgent == "" {
		c.userAgent = "bde-portal"
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// SetTokenSource binds the token source after construction. The session service needs the
// client to exist first, so wiring sets it once before any request is issued.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	method string
	path   string
	// route is the metrics label; ids are replaced so cardinality stays bounded.
	route  string
	query  url.Values
	body   interface{}
	bearer string
	anon   bool

	// wantBody makes an empty 2xx reply an error instead of leaving out untouched.
	wantBody bool
}

func (c *Client) do(ctx context.Context, in call, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return appErrors.Wrap(err, appErrors.ErrTransport.Code, 0, appErrors.ErrTransport.Message)
		}
	}

	var reader io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, 0, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + in.path
	if len(in.query) > 0 {
		target += "?" + in.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, in.method, target, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, 0, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearerFor(in); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := requestid.Stamp(req)

	route := in.route
	if route == "" {
		route = in.path
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(in.method, route, 0, time.Since(start))
		c.logger.Debug("api request failed", zap.String("method", in.method), zap.String("route", route), zap.String("request_id", reqID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrTransport.Code, 0, appErrors.ErrTransport.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveRequest(in.method, route, resp.StatusCode, time.Since(start))
	c.logger.Debug("api request",
		zap.String("method", in.method),
		zap.String("route", route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("request_id", reqID),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransport.Code, resp.StatusCode, appErrors.ErrTransport.Message)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		if in.wantBody && out != nil {
			return appErrors.New(appErrors.ErrInternal.Code, resp.StatusCode, "empty response from server")
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, resp.StatusCode, "unexpected response from server")
	}
	return nil
}

func (c *Client) bearerFor(in call) string {
	if in.anon {
		return ""
	}
	if in.bearer != "" {
		return in.bearer
	}
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

// decodeError extracts a display message and field errors from an API error payload.
// Accepted shapes: {"detail": "..."}, {"error": "..."}, {"message": "..."},
// {"non_field_errors": ["..."]}, {"email": ["..."]}, {"errors": {"email": "..."}}.
func decodeError(status int, raw []byte) *appErrors.Error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return appErrors.FromStatus(status, "", nil)
	}

	message := ""
	for _, key := range []string{"detail", "error", "message", "non_field_errors"} {
		if v, ok := payload[key]; ok {
			if msg := firstString(v); msg != "" {
				message = msg
				break
			}
		}
	}

	fields := map[string]string{}
	for key, v := range payload {
		switch key {
		case "detail", "error", "message", "non_field_errors", "code", "status":
			continue
		case "errors":
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(v, &nested); err == nil {
				for nk, nv := range nested {
					if msg := firstString(nv); msg != "" {
						fields[nk] = msg
					}
				}
			}
		default:
			if msg := firstString(v); msg != "" {
				fields[key] = msg
			}
		}
	}

	if message == "" && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		message = fields[keys[0]]
	}
	return appErrors.FromStatus(status, message, fields)
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}
