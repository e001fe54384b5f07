package broker

import (
	"context"
	"net/http"
	"time"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/sessions"
	"github.com/jrsteele09/go-session-broker/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// BearerBroker holds one bearer token per session and proxies calls to a
// single upstream with that token injected.
type BearerBroker struct {
	core
	client *upstream.Client
}

var _ Dispatcher = (*BearerBroker)(nil)

// NewBearerBroker creates a bearer broker. Sessions expire after
// DefaultBearerTTL unless WithTTL says otherwise.
func NewBearerBroker(name string, repo sessions.Repo, client *upstream.Client, opts ...Option) *BearerBroker {
	o := newOptions(DefaultBearerTTL, opts)
	return &BearerBroker{
		core:   core{name: name, repo: repo, ttl: o.ttl, nowTime: o.nowTime},
		client: client,
	}
}

func (b *BearerBroker) Dispatch(ctx context.Context, req Request) (*Response, error) {
	switch r := req.(type) {
	case *CreateSessionRequest:
		return b.createSession(ctx, r)
	case *DestroySessionRequest:
		return b.destroySession(r)
	case *ProxyRequest:
		return b.proxy(ctx, r)
	default:
		return nil, brokererrors.ErrInvalidAction
	}
}

// createSession validates the token against the identity endpoint and only
// then stores it.
func (b *BearerBroker) createSession(ctx context.Context, req *CreateSessionRequest) (*Response, error) {
	start := time.Now()
	result, err := b.client.Identity(ctx, req.Token)
	b.observeUpstream(statusOf(result), err, start)
	if err != nil {
		return nil, errors.Wrap(err, "[createSession] identity check failed")
	}
	if !result.OK() {
		log.Debug().Str("broker", b.name).Int("upstream_status", result.Status).Msg("token rejected by upstream")
		return nil, brokererrors.ErrInvalidToken
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "[createSession] request abandoned")
	}

	s, err := b.repo.Insert(sessions.Secrets{Token: req.Token, TokenType: req.TokenType})
	if err != nil {
		return nil, errors.Wrap(err, "[createSession] failed to store session")
	}
	log.Info().Str("broker", b.name).Str("session", sessions.Fingerprint(s.ID)).Msg("session created")

	return ok(CreateSessionResponse{
		SessionID: s.ID,
		User:      result.Data,
		TokenType: req.TokenType,
		ExpiresIn: b.remaining(s.CreatedAt),
	}), nil
}

// proxy calls the upstream with the session's token. A failing upstream
// status is mirrored as the outer status; the session is kept either way.
func (b *BearerBroker) proxy(ctx context.Context, req *ProxyRequest) (*Response, error) {
	s, found, err := b.repo.Get(req.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[proxy] session lookup failed")
	}
	if !found || s.Secrets.Token == "" {
		return nil, brokererrors.ErrSessionExpired
	}

	start := time.Now()
	result, err := b.client.Do(ctx, s.Secrets.Token, req.Method, req.Endpoint, req.Body)
	if brokererrors.Is(err, brokererrors.ErrForeignHost) {
		metrics.HostPinRejectionsTotal.WithLabelValues(b.name).Inc()
		log.Warn().Str("broker", b.name).Str("session", sessions.Fingerprint(s.ID)).Msg("proxy endpoint outside pinned upstream rejected")
		return nil, err
	}
	if brokererrors.Is(err, brokererrors.ErrValidation) {
		return nil, err
	}
	b.observeUpstream(statusOf(result), err, start)
	if err != nil {
		return nil, err
	}

	status := http.StatusOK
	if result.Status >= http.StatusBadRequest {
		status = result.Status
	}
	return &Response{
		Status: status,
		Body: ProxyResponse{
			Data:      result.Data,
			Status:    result.Status,
			RateLimit: result.RateLimit,
		},
	}, nil
}

func statusOf(result *upstream.Result) int {
	if result == nil {
		return 0
	}
	return result.Status
}
