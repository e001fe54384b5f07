package broker

import (
	"context"
	"time"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/providers"
	"github.com/jrsteele09/go-session-broker/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VaultBroker stores named provider keys per session. Apart from verify_key
// it never calls out.
type VaultBroker struct {
	core
	allowedProviders map[string]struct{}
	verifiers        *providers.Registry
}

var _ Dispatcher = (*VaultBroker)(nil)

// NewVaultBroker creates a vault broker. Sessions expire after
// DefaultVaultTTL unless WithTTL says otherwise.
func NewVaultBroker(name string, repo sessions.Repo, opts ...Option) *VaultBroker {
	o := newOptions(DefaultVaultTTL, opts)
	return &VaultBroker{
		core:             core{name: name, repo: repo, ttl: o.ttl, nowTime: o.nowTime},
		allowedProviders: o.allowedProviders,
		verifiers:        o.verifiers,
	}
}

func (v *VaultBroker) Dispatch(ctx context.Context, req Request) (*Response, error) {
	switch r := req.(type) {
	case *GetSessionRequest:
		return v.getSession(r)
	case *SetKeyRequest:
		return v.setKey(r)
	case *RemoveKeyRequest:
		return v.removeKey(r)
	case *CheckKeyRequest:
		return v.checkKey(r)
	case *VerifyKeyRequest:
		return v.verifyKey(ctx, r)
	case *DestroySessionRequest:
		return v.destroySession(r)
	default:
		return nil, brokererrors.ErrInvalidAction
	}
}

// getSession returns the live session for the id, or a new empty one.
func (v *VaultBroker) getSession(req *GetSessionRequest) (*Response, error) {
	s, err := v.repo.Create(req.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[getSession] failed to create session")
	}
	if s.ID != req.SessionID {
		log.Debug().Str("broker", v.name).Str("session", sessions.Fingerprint(s.ID)).Msg("session created")
	}
	return ok(SessionResponse{
		SessionID: s.ID,
		Providers: s.Secrets.Providers(),
		ExpiresIn: v.remaining(s.CreatedAt),
	}), nil
}

func (v *VaultBroker) setKey(req *SetKeyRequest) (*Response, error) {
	if !sessions.ValidID(req.SessionID) {
		return nil, brokererrors.Invalid("Invalid sessionId")
	}
	if err := v.checkProvider(req.Provider); err != nil {
		return nil, err
	}

	s, err := v.repo.MutateSecrets(req.SessionID, func(secrets *sessions.Secrets) {
		if secrets.Keys == nil {
			secrets.Keys = make(map[string]string)
		}
		secrets.Keys[req.Provider] = req.APIKey
	})
	if err != nil {
		return nil, errors.Wrap(err, "[setKey] failed to store key")
	}
	log.Debug().Str("broker", v.name).Str("session", sessions.Fingerprint(s.ID)).Str("provider", req.Provider).Msg("key stored")

	return ok(SetKeyResponse{
		Success:   true,
		SessionID: s.ID,
		Providers: s.Secrets.Providers(),
	}), nil
}

// removeKey never creates a session; an unknown session yields an empty list.
func (v *VaultBroker) removeKey(req *RemoveKeyRequest) (*Response, error) {
	s, found, err := v.repo.MutateSecretsIfPresent(req.SessionID, func(secrets *sessions.Secrets) {
		delete(secrets.Keys, req.Provider)
	})
	if err != nil {
		return nil, errors.Wrap(err, "[removeKey] failed to remove key")
	}
	if !found {
		return ok(RemoveKeyResponse{Success: true, Providers: []string{}}), nil
	}
	return ok(RemoveKeyResponse{Success: true, Providers: s.Secrets.Providers()}), nil
}

func (v *VaultBroker) checkKey(req *CheckKeyRequest) (*Response, error) {
	s, found, err := v.repo.Get(req.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[checkKey] session lookup failed")
	}
	return ok(CheckKeyResponse{HasKey: found && s.Secrets.HasKey(req.Provider)}), nil
}

// verifyKey asks the provider whether the stored key is accepted. No lock is
// held during the call; only a copy of the key is used.
func (v *VaultBroker) verifyKey(ctx context.Context, req *VerifyKeyRequest) (*Response, error) {
	var verifier providers.Verifier
	if v.verifiers != nil {
		verifier, _ = v.verifiers.Get(req.Provider)
	}
	if verifier == nil {
		return nil, brokererrors.Invalid("Provider does not support verification")
	}

	s, found, err := v.repo.Get(req.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[verifyKey] session lookup failed")
	}
	if !found || !s.Secrets.HasKey(req.Provider) {
		return ok(VerifyKeyResponse{Valid: false}), nil
	}

	start := time.Now()
	verdict, err := verifier.Verify(ctx, s.Secrets.Keys[req.Provider])
	v.observeUpstream(verdict.Status, err, start)
	if err != nil {
		return nil, err
	}
	return ok(VerifyKeyResponse{Valid: verdict.Valid, Status: verdict.Status}), nil
}

func (v *VaultBroker) checkProvider(provider string) error {
	if len(v.allowedProviders) == 0 {
		return nil
	}
	if _, ok := v.allowedProviders[provider]; !ok {
		return brokererrors.Invalid("Unsupported provider")
	}
	return nil
}
