package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
)

// AnthropicVerifier lists models with the key.
type AnthropicVerifier struct {
	cfg verifierConfig
}

var _ Verifier = (*AnthropicVerifier)(nil)

func NewAnthropicVerifier(options ...VerifierOption) *AnthropicVerifier {
	return &AnthropicVerifier{cfg: newVerifierConfig(options)}
}

func (v *AnthropicVerifier) Verify(ctx context.Context, apiKey string) (Verdict, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if v.cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(v.cfg.baseURL))
	}
	if v.cfg.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(v.cfg.httpClient))
	}

	client := anthropic.NewClient(opts...)
	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return verdictFromStatus(Anthropic, apiErr.StatusCode)
		}
		return Verdict{}, fmt.Errorf("[%s Verify] %w: %w", Anthropic, brokererrors.ErrUpstream, err)
	}
	return Verdict{Valid: true, Status: http.StatusOK}, nil
}
