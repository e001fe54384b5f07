// Package broker implements the caller-facing action surface: decoding the
// action union, sweeping expired sessions and dispatching to a bearer or
// vault broker. Secrets never appear in any Response body.
package broker

import (
	"context"
	"strconv"
	"time"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/providers"
	"github.com/jrsteele09/go-session-broker/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBearerTTL = time.Hour
	DefaultVaultTTL  = 24 * time.Hour
)

// Dispatcher is one broker instance bound to its own session store.
type Dispatcher interface {
	Name() string
	// Sweep evicts the broker's expired sessions.
	Sweep() int
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

type options struct {
	ttl              time.Duration
	nowTime          func() time.Time
	allowedProviders map[string]struct{}
	verifiers        *providers.Registry
}

// Option configures a broker.
type Option func(*options)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowTime = nowFunc
	}
}

// WithAllowedProviders restricts which provider names the vault accepts.
// An empty list allows any provider.
func WithAllowedProviders(names ...string) Option {
	return func(o *options) {
		if len(names) == 0 {
			o.allowedProviders = nil
			return
		}
		o.allowedProviders = make(map[string]struct{}, len(names))
		for _, name := range names {
			o.allowedProviders[name] = struct{}{}
		}
	}
}

// WithVerifiers enables verify_key for the registered providers.
func WithVerifiers(r *providers.Registry) Option {
	return func(o *options) {
		o.verifiers = r
	}
}

// core is the state shared by both broker flavors.
type core struct {
	name    string
	repo    sessions.Repo
	ttl     time.Duration
	nowTime func() time.Time
}

func newOptions(defaultTTL time.Duration, opts []Option) options {
	o := options{ttl: defaultTTL, nowTime: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *core) Name() string {
	return c.name
}

func (c *core) Sweep() int {
	evicted := c.repo.Sweep(c.ttl)
	if evicted > 0 {
		metrics.SessionsSweptTotal.WithLabelValues(c.name).Add(float64(evicted))
		log.Debug().Str("broker", c.name).Int("evicted", evicted).Msg("expired sessions swept")
	}
	metrics.SessionsLive.WithLabelValues(c.name).Set(float64(c.repo.Len()))
	return evicted
}

func (c *core) remaining(createdAt time.Time) int64 {
	return sessions.RemainingSeconds(c.nowTime(), createdAt, c.ttl)
}

func (c *core) destroySession(req *DestroySessionRequest) (*Response, error) {
	if req.SessionID != "" {
		c.repo.Delete(req.SessionID)
		log.Debug().Str("broker", c.name).Str("session", sessions.Fingerprint(req.SessionID)).Msg("session destroyed")
	}
	return ok(SuccessResponse{Success: true}), nil
}

func (c *core) observeUpstream(status int, err error, start time.Time) {
	class := "error"
	if err == nil {
		class = metrics.StatusClass(status)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(c.name, class).Inc()
	metrics.UpstreamLatencyMs.WithLabelValues(c.name).Observe(float64(time.Since(start).Milliseconds()))
}

// Handle is the single request-handling boundary: sweep, decode, dispatch,
// and convert any error into the JSON envelope. It never returns nil.
func Handle(ctx context.Context, d Dispatcher, payload []byte) *Response {
	start := time.Now()
	d.Sweep()

	action := "invalid"
	req, err := DecodeRequest(payload)
	var resp *Response
	if err == nil {
		action = string(req.Action())
		resp, err = d.Dispatch(ctx, req)
	}
	if err != nil {
		resp = ErrorResponse(err)
		logFailure(d.Name(), action, resp.Status, err)
	}

	metrics.ActionsTotal.WithLabelValues(d.Name(), action, strconv.Itoa(resp.Status)).Inc()
	metrics.ActionLatencyMs.WithLabelValues(d.Name(), action).Observe(float64(time.Since(start).Milliseconds()))
	return resp
}

func logFailure(broker, action string, status int, err error) {
	var event *zerolog.Event
	if status >= 500 && !brokererrors.Is(err, brokererrors.ErrUpstream) {
		event = log.Error()
	} else {
		event = log.Debug()
	}
	event.Err(err).Str("broker", broker).Str("action", action).Int("status", status).Msg("action failed")
}
