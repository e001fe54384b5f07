package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIVerifier lists models with the key.
type OpenAIVerifier struct {
	cfg verifierConfig
}

var _ Verifier = (*OpenAIVerifier)(nil)

func NewOpenAIVerifier(options ...VerifierOption) *OpenAIVerifier {
	return &OpenAIVerifier{cfg: newVerifierConfig(options)}
}

func (v *OpenAIVerifier) Verify(ctx context.Context, apiKey string) (Verdict, error) {
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

	client := openai.NewClient(opts...)
	if _, err := client.Models.List(ctx); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return verdictFromStatus(OpenAI, apiErr.StatusCode)
		}
		return Verdict{}, fmt.Errorf("[%s Verify] %w: %w", OpenAI, brokererrors.ErrUpstream, err)
	}
	return Verdict{Valid: true, Status: http.StatusOK}, nil
}
