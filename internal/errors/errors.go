package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common error types for the session broker
var (
	// Request errors
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAction = errors.New("Invalid action")
	ErrMalformedBody = errors.New("malformed request body")

	// Session / credential errors
	ErrSessionExpired = errors.New("Invalid or expired session")
	ErrInvalidToken   = errors.New("Invalid token")

	// Upstream errors
	ErrUpstream    = errors.New("Upstream request failed")
	ErrForeignHost = errors.New("endpoint host is not the configured upstream")

	// General errors
	ErrRateLimited = errors.New("Too many requests")
)

// RequestError carries the message shown to the caller alongside the
// category sentinel used to pick the status code.
type RequestError struct {
	Kind    error
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Kind }

// Validation reports the missing or empty required fields.
func Validation(fields ...string) error {
	return &RequestError{
		Kind:    ErrValidation,
		Message: "Missing required fields: " + strings.Join(fields, ", "),
	}
}

// Invalid reports a field that is present but unacceptable.
func Invalid(message string) error {
	return &RequestError{Kind: ErrValidation, Message: message}
}

// StatusCode maps an error onto the HTTP status of the response envelope.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrForeignHost):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text placed in the {"error": ...} envelope.
// Internal faults never expose their underlying cause.
func PublicMessage(err error) string {
	var reqErr *RequestError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &reqErr):
		return reqErr.Message
	case errors.Is(err, ErrInvalidAction):
		return ErrInvalidAction.Error()
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	case errors.Is(err, ErrInvalidToken):
		return ErrInvalidToken.Error()
	case errors.Is(err, ErrForeignHost):
		return "Endpoint must target the configured upstream host"
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, ErrUpstream):
		return ErrUpstream.Error()
	case errors.Is(err, ErrMalformedBody):
		return "Invalid request body"
	default:
		return "Unknown error"
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
