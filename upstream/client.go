// Package upstream performs authenticated calls against one fixed third-party
// HTTP API. The bearer token is attached per call and only ever to requests
// whose scheme and host match the configured base URL.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "go-session-broker"
)

// Config describes one upstream API.
type Config struct {
	Name         string            `yaml:"name" json:"name"`
	BaseURL      string            `yaml:"base_url" json:"base_url"`
	IdentityPath string            `yaml:"identity_path" json:"identity_path"`
	Headers      map[string]string `yaml:"headers" json:"headers"`
	UserAgent    string            `yaml:"user_agent" json:"user_agent"`
}

// RateLimit holds the upstream's X-RateLimit-* headers that were present.
type RateLimit struct {
	Limit     *int64 `json:"limit,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
	Reset     *int64 `json:"reset,omitempty"`
	Used      *int64 `json:"used,omitempty"`
}

// Result is a normalized upstream response. Data is always valid JSON.
type Result struct {
	Status    int
	Data      json.RawMessage
	RateLimit *RateLimit
}

// OK reports a 2xx status.
func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client calls a single upstream.
type Client struct {
	name         string
	base         *url.URL
	identityPath string
	headers      map[string]string
	userAgent    string
	transport    http.RoundTripper
	timeout      time.Duration
	maxBodyBytes int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport replaces the base round tripper the bearer transport wraps.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithTimeout bounds each call including reading the response body.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodyBytes caps the upstream body size. Larger bodies fail the call
// with ErrUpstream.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// New validates cfg and builds a Client.
func New(cfg Config, options ...ClientOption) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("[upstream New] name is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("[upstream New] base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[upstream New] invalid base URL")
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, errors.Errorf("[upstream New] unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("[upstream New] base URL has no host")
	}

	c := &Client{
		name:         cfg.Name,
		base:         base,
		identityPath: cfg.IdentityPath,
		headers:      cfg.Headers,
		userAgent:    cfg.UserAgent,
		transport:    http.DefaultTransport,
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	if c.identityPath == "" {
		c.identityPath = "/user"
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Host returns the pinned host.
func (c *Client) Host() string {
	return c.base.Host
}

// Resolve turns a caller-supplied endpoint into a URL on the pinned upstream.
// Bare paths are joined onto the base URL. Absolute and scheme-relative URLs
// are accepted only when scheme and host match the base URL exactly.
func (c *Client) Resolve(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, brokererrors.Invalid("Invalid endpoint")
	}

	if ref.Scheme != "" || ref.Host != "" || ref.Opaque != "" {
		if !strings.EqualFold(ref.Scheme, c.base.Scheme) ||
			!strings.EqualFold(ref.Host, c.base.Host) ||
			ref.User != nil || ref.Opaque != "" {
			return nil, fmt.Errorf("[Resolve] %q: %w", ref.Host, brokererrors.ErrForeignHost)
		}
		target := *ref
		target.Fragment = ""
		return &target, nil
	}

	target := *c.base
	target.Path = singleJoiningSlash(c.base.Path, ref.Path)
	target.RawPath = singleJoiningSlash(c.base.EscapedPath(), ref.EscapedPath())
	target.RawQuery = ref.RawQuery
	target.Fragment = ""
	return &target, nil
}

// Identity calls the upstream's "who am I" endpoint with token.
func (c *Client) Identity(ctx context.Context, token string) (*Result, error) {
	return c.Do(ctx, token, http.MethodGet, c.identityPath, nil)
}

// Do issues method against endpoint with token injected as a bearer
// credential. body, when non-empty, is sent as application/json. Any HTTP
// status is a successful call; errors are transport or resolution failures.
func (c *Client) Do(ctx context.Context, token, method, endpoint string, body json.RawMessage) (*Result, error) {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if len(body) > 0 && !bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "[upstream Do] failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		log.Debug().Str("upstream", c.name).Str("method", method).Str("path", target.Path).Err(err).Msg("upstream call failed")
		return nil, fmt.Errorf("[upstream Do] %s %s: %w: %w", method, target.Path, brokererrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("[upstream Do] reading body: %w: %w", brokererrors.ErrUpstream, err)
	}
	if int64(len(data)) > c.maxBodyBytes {
		log.Warn().Str("upstream", c.name).Str("path", target.Path).Int64("limit", c.maxBodyBytes).Msg("upstream response too large")
		return nil, brokererrors.Wrapf(brokererrors.ErrUpstream, "[upstream Do] response larger than %d bytes", c.maxBodyBytes)
	}

	log.Debug().
		Str("upstream", c.name).
		Str("method", method).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream call")

	return &Result{
		Status:    resp.StatusCode,
		Data:      normalizeJSON(data),
		RateLimit: parseRateLimit(resp.Header),
	}, nil
}

// httpClient builds a per-call client so a token is never shared between
// calls. Redirects are returned, not followed: oauth2.Transport would attach
// the token to the redirected request whatever its host.
func (c *Client) httpClient(token string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   c.transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		},
		Timeout: c.timeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

var emptyObject = json.RawMessage(`{}`)

func normalizeJSON(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return emptyObject
	}
	return json.RawMessage(trimmed)
}

func parseRateLimit(h http.Header) *RateLimit {
	rl := &RateLimit{
		Limit:     headerInt(h, "X-RateLimit-Limit"),
		Remaining: headerInt(h, "X-RateLimit-Remaining"),
		Reset:     headerInt(h, "X-RateLimit-Reset"),
		Used:      headerInt(h, "X-RateLimit-Used"),
	}
	if rl.Limit == nil && rl.Remaining == nil && rl.Reset == nil && rl.Used == nil {
		return nil
	}
	return rl
}

func headerInt(h http.Header, name string) *int64 {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return utils.Ptr(n)
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}
