// Package upstream is the client for the pharmacy REST backend. Every call
// carries a bearer token, is rate limited, and has its failures normalized
// into *apperror.AppError. Calls are never retried.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "github.com/sangkips/pharmadesk/internal/infrastructure/logger"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// IdempotencyKeyHeader is forwarded on mutating calls that carry a key
const IdempotencyKeyHeader = "Idempotency-Key"

// Config configures the backend client
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	ServiceToken      string
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// Observer receives one call per completed request. Status is 0 when no
// response was received.
type Observer interface {
	ObserveUpstream(method, resource string, status int, elapsed time.Duration)
}

// Client talks to the pharmacy backend
type Client struct {
	baseURL      *url.URL
	transport    http.RoundTripper
	timeout      time.Duration
	serviceToken string
	userAgent    string
	limiter      *rate.Limiter
	logger       *zap.Logger
	observer     Observer
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the base round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithObserver attaches a request observer, typically metrics
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client's logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("upstream") }
}

// New builds a Client from cfg
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pharmadesk/1.0"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL: base,
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
		timeout:      cfg.Timeout,
		serviceToken: cfg.ServiceToken,
		userAgent:    cfg.UserAgent,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Calls made with ctx
// are sent with this token instead of the service token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token set by WithToken
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

func (c *Client) httpClient(ctx context.Context) *http.Client {
	token := TokenFromContext(ctx)
	if token == "" {
		token = c.serviceToken
	}
	rt := c.transport
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

// Request describes one backend call
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any
}

func (c *Client) buildURL(p string, query url.Values) (*url.URL, error) {
	rel, err := url.Parse(strings.TrimLeft(p, "/"))
	if err != nil {
		return nil, err
	}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// Do executes req and decodes a successful JSON response into out, which may
// be nil. Non-2xx responses and transport failures return *apperror.AppError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.doRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("undecodable upstream response",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return apperror.Wrap(http.StatusBadGateway, "Unexpected response from upstream service", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, req Request) ([]byte, error) {
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.Wrap(http.StatusServiceUnavailable, "Upstream request was cancelled", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := applog.GetRequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resource := resourceOf(req.Path)
	start := time.Now()
	resp, err := c.httpClient(ctx).Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(req.Method, resource, 0, elapsed)
		return nil, c.transportError(ctx, req, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.observe(req.Method, resource, resp.StatusCode, elapsed)
	if err != nil {
		return nil, apperror.Wrap(http.StatusBadGateway, "Upstream service unavailable", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		appErr := normalizeError(resp.StatusCode, raw)
		c.logger.Warn("upstream request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", appErr.Message),
		)
		return nil, appErr
	}
	return raw, nil
}

func (c *Client) transportError(ctx context.Context, req Request, err error) error {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Error(err),
	}
	if ctx.Err() != nil {
		c.logger.Debug("upstream request cancelled", fields...)
		return apperror.Wrap(http.StatusServiceUnavailable, "Upstream request was cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Error("upstream request timed out", fields...)
		return apperror.Wrap(http.StatusGatewayTimeout, "Upstream service timed out", err)
	}
	c.logger.Error("upstream request failed", fields...)
	return apperror.Wrap(http.StatusBadGateway, "Upstream service unavailable", err)
}

func (c *Client) observe(method, resource string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstream(method, resource, status, elapsed)
	}
}

// resourceOf returns the first path segment, used as a low-cardinality label
func resourceOf(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}
