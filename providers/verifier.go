// Package providers asks LLM providers whether a stored API key is accepted,
// using each provider's own SDK. Keys are only ever sent to the provider
// they belong to.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
)

const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
)

// Verdict is the outcome of a verification call. Status is the provider's
// HTTP status.
type Verdict struct {
	Valid  bool
	Status int
}

// Verifier checks an API key against its provider.
type Verifier interface {
	Verify(ctx context.Context, apiKey string) (Verdict, error)
}

type verifierConfig struct {
	baseURL    string
	httpClient *http.Client
}

// VerifierOption configures a provider verifier.
type VerifierOption func(*verifierConfig)

// WithBaseURL points the SDK at a different API root.
func WithBaseURL(baseURL string) VerifierOption {
	return func(c *verifierConfig) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client the SDK uses.
func WithHTTPClient(client *http.Client) VerifierOption {
	return func(c *verifierConfig) {
		c.httpClient = client
	}
}

func newVerifierConfig(options []VerifierOption) verifierConfig {
	var cfg verifierConfig
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// verdictFromStatus turns an SDK API error status into a verdict. A rate
// limited key has still been authenticated.
func verdictFromStatus(provider string, status int) (Verdict, error) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Verdict{Valid: false, Status: status}, nil
	case http.StatusTooManyRequests:
		return Verdict{Valid: true, Status: status}, nil
	default:
		return Verdict{}, fmt.Errorf("[%s Verify] unexpected status %d: %w", provider, status, brokererrors.ErrUpstream)
	}
}

// Registry maps provider names to verifiers.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// NewDefaultRegistry registers the OpenAI and Anthropic verifiers against
// their public endpoints. client may be nil.
func NewDefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()
	r.Register(OpenAI, NewOpenAIVerifier(WithHTTPClient(client)))
	r.Register(Anthropic, NewAnthropicVerifier(WithHTTPClient(client)))
	return r
}

func (r *Registry) Register(provider string, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[provider] = v
}

func (r *Registry) Get(provider string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[provider]
	return v, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
