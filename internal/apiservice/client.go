// Implements the RecroGrid server API client with rate limiting and retries.

package apiservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/recrovit/rgfclient/internal/config"
	rgferrors "github.com/recrovit/rgfclient/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Request describes one call to the server.
type Request struct {
	// URI is joined to the base address.
	URI   string
	Query url.Values

	// Body is JSON encoded for POST requests.
	Body any

	// AuthClient selects the client sending the bearer token.
	AuthClient bool

	Headers map[string]string
}

// Response is the outcome of a call. Failures never surface as Go errors;
// Success is false and ErrorMessage describes the failure.
type Response[T any] struct {
	Success      bool
	StatusCode   int
	ErrorMessage string
	Result       T

	// Err is the underlying failure, usually a *rgferrors.APIError.
	Err error
}

// Client talks to the RecroGrid server.
type Client struct {
	baseAddress string
	anon        *http.Client
	auth        *http.Client
	tokens      *tokenSource
	limiter     *rate.Limiter
	retries     int
	headers     map[string]string
	logger      *slog.Logger

	mu       sync.RWMutex
	versions map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the base HTTP client. The auth client wraps its
// transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.anon = hc }
}

// WithTokenSource sets the source of the bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens.set(ts) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server configured in cfg.
func New(cfg *config.API, opts ...Option) *Client {
	c := &Client{
		baseAddress: strings.TrimRight(cfg.BaseAddress, "/"),
		anon:        &http.Client{Timeout: cfg.Timeout},
		tokens:      &tokenSource{},
		retries:     cfg.Retries,
		headers:     maps.Clone(cfg.Headers),
		logger:      slog.Default(),
		versions:    map[string]string{},
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.Burst, 1)
	c.limiter = rate.NewLimiter(limit, burst)
	for _, opt := range opts {
		opt(c)
	}
	c.auth = &http.Client{
		Timeout:   c.anon.Timeout,
		Transport: &oauth2.Transport{Source: c.tokens, Base: c.anon.Transport},
	}
	return c
}

// BaseAddress returns the server address without the trailing slash.
func (c *Client) BaseAddress() string {
	return c.baseAddress
}

// SetClientVersion registers a version header sent with every request.
func (c *Client) SetClientVersion(name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[name] = version
}

// ClientVersions returns a copy of the version headers.
func (c *Client) ClientVersions() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.versions)
}

// SetTokenSource replaces the source of the bearer token. nil disables
// authentication.
func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	c.tokens.set(ts)
}

// SetAccessToken authenticates subsequent requests with a static token.
func (c *Client) SetAccessToken(token string) {
	if token == "" {
		c.tokens.set(nil)
		return
	}
	c.tokens.set(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// Get sends a GET request and decodes the body into T. A string T receives
// the raw body.
func Get[T any](ctx context.Context, c *Client, req *Request) *Response[T] {
	return send[T](ctx, c, http.MethodGet, req)
}

// Post sends req.Body as JSON and decodes the response body into T.
func Post[T any](ctx context.Context, c *Client, req *Request) *Response[T] {
	return send[T](ctx, c, http.MethodPost, req)
}

func send[T any](ctx context.Context, c *Client, method string, req *Request) *Response[T] {
	resp := &Response[T]{}
	body, status, err := c.do(ctx, method, req)
	resp.StatusCode = status
	if err == nil {
		if err = decode(body, &resp.Result); err != nil {
			err = rgferrors.Decode(status, err)
		}
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "API request failed", "method", method, "uri", req.URI, "status", status, "err", err)
		resp.Err = err
		resp.ErrorMessage = errorMessage(err)
		return resp
	}
	resp.Success = true
	return resp
}

// do performs the request with rate limiting. GET requests are retried on
// transport errors, 429 and 5xx responses.
func (c *Client) do(ctx context.Context, method string, req *Request) ([]byte, int, error) {
	var payload []byte
	if method != http.MethodGet && req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	u := c.url(req.URI, req.Query)
	c.logger.DebugContext(ctx, "API request", "method", method, "uri", u)

	var status int
	op := func() ([]byte, error) {
		body, code, err := c.once(ctx, method, u, payload, req)
		status = code
		if err != nil && (method != http.MethodGet || !retryable(err)) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}
	var b backoff.BackOff = &backoff.StopBackOff{}
	if method == http.MethodGet && c.retries > 0 {
		b = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retries))
	}
	body, err := backoff.RetryWithData(op, backoff.WithContext(b, ctx))
	return body, status, err
}

func (c *Client) once(ctx context.Context, method, u string, payload []byte, req *Request) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, rgferrors.Transport(err)
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		hreq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	for k, v := range c.ClientVersions() {
		hreq.Header.Set(k, v)
	}

	hc := c.anon
	if req.AuthClient && c.tokens.valid() {
		hc = c.auth
	}
	resp, err := hc.Do(hreq)
	if err != nil {
		return nil, 0, rgferrors.Transport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, rgferrors.Transport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, rgferrors.FromStatus(resp.StatusCode, "")
	}
	return data, resp.StatusCode, nil
}

func (c *Client) url(uri string, query url.Values) string {
	u := c.baseAddress + "/" + strings.TrimLeft(uri, "/")
	if len(query) != 0 {
		u += "?" + query.Encode()
	}
	return u
}

func retryable(err error) bool {
	var apiErr *rgferrors.APIError
	return errors.As(err, &apiErr) && rgferrors.IsRetryable(apiErr)
}

func decode[T any](data []byte, out *T) error {
	switch p := any(out).(type) {
	case *string:
		*p = string(data)
		return nil
	case *[]byte:
		*p = data
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// errorMessage is the user-facing text of a failed call.
func errorMessage(err error) string {
	msg := err.Error()
	var apiErr *rgferrors.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode() != 0 {
		msg = apiErr.Message()
	}
	if msg == "" || msg == "''" {
		return fmt.Sprintf("%T", err)
	}
	return msg
}

var errNoToken = errors.New("no access token")

// tokenSource is an oauth2.TokenSource whose underlying source can be
// swapped after the client is built.
type tokenSource struct {
	mu  sync.RWMutex
	src oauth2.TokenSource
}

func (t *tokenSource) set(src oauth2.TokenSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.src = src
}

func (t *tokenSource) valid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.src != nil
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	t.mu.RLock()
	src := t.src
	t.mu.RUnlock()
	if src == nil {
		return nil, errNoToken
	}
	return src.Token()
}
