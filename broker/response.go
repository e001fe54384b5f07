package broker

import (
	"encoding/json"
	"net/http"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/upstream"
)

// Response is what the transport writes back: Body encoded as JSON with
// Status as the HTTP status.
type Response struct {
	Status int
	Body   any
}

func ok(body any) *Response {
	return &Response{Status: http.StatusOK, Body: body}
}

// ErrorBody is the {"error": ...} envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// ErrorResponse converts err into the error envelope.
func ErrorResponse(err error) *Response {
	return &Response{
		Status: brokererrors.StatusCode(err),
		Body:   ErrorBody{Error: brokererrors.PublicMessage(err)},
	}
}

type CreateSessionResponse struct {
	SessionID string          `json:"sessionId"`
	User      json.RawMessage `json:"user"`
	TokenType string          `json:"tokenType,omitempty"`
	ExpiresIn int64           `json:"expiresIn"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ProxyResponse struct {
	Data      json.RawMessage     `json:"data"`
	Status    int                 `json:"status"`
	RateLimit *upstream.RateLimit `json:"rateLimit"`
}

type SessionResponse struct {
	SessionID string   `json:"sessionId"`
	Providers []string `json:"providers"`
	ExpiresIn int64    `json:"expiresIn"`
}

type SetKeyResponse struct {
	Success   bool     `json:"success"`
	SessionID string   `json:"sessionId"`
	Providers []string `json:"providers"`
}

type RemoveKeyResponse struct {
	Success   bool     `json:"success"`
	Providers []string `json:"providers"`
}

type CheckKeyResponse struct {
	HasKey bool `json:"hasKey"`
}

type VerifyKeyResponse struct {
	Valid  bool `json:"valid"`
	Status int  `json:"status,omitempty"`
}
