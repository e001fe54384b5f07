package broker

import (
	"encoding/json"
	"net/http"
	"strings"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Action is the request discriminant.
type Action string

const (
	ActionCreateSession  Action = "create_session"
	ActionDestroySession Action = "destroy_session"
	ActionProxy          Action = "proxy"
	ActionGetSession     Action = "get_session"
	ActionSetKey         Action = "set_key"
	ActionRemoveKey      Action = "remove_key"
	ActionCheckKey       Action = "check_key"
	ActionVerifyKey      Action = "verify_key"
)

// allowedMethods are the upstream methods a proxy request may use.
var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
	http.MethodHead:   {},
}

// Request is one decoded and validated action. The set of implementations is
// closed; see DecodeRequest.
type Request interface {
	Action() Action
	validate() error
}

type CreateSessionRequest struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType,omitempty"`
}

func (*CreateSessionRequest) Action() Action { return ActionCreateSession }

func (r *CreateSessionRequest) validate() error {
	return requireFields(field{"token", r.Token})
}

// DestroySessionRequest has no required fields; an empty id is a no-op.
type DestroySessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (*DestroySessionRequest) Action() Action { return ActionDestroySession }

func (*DestroySessionRequest) validate() error { return nil }

type ProxyRequest struct {
	SessionID string          `json:"sessionId"`
	Endpoint  string          `json:"endpoint"`
	Method    string          `json:"method,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

func (*ProxyRequest) Action() Action { return ActionProxy }

// validate also normalizes Method, defaulting to GET.
func (r *ProxyRequest) validate() error {
	if err := requireFields(field{"sessionId", r.SessionID}, field{"endpoint", r.Endpoint}); err != nil {
		return err
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if _, ok := allowedMethods[r.Method]; !ok {
		return brokererrors.Invalid("Unsupported method")
	}
	return nil
}

// GetSessionRequest may omit the id, in which case a new session is created.
type GetSessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (*GetSessionRequest) Action() Action { return ActionGetSession }

func (*GetSessionRequest) validate() error { return nil }

type SetKeyRequest struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
	APIKey    string `json:"apiKey"`
}

func (*SetKeyRequest) Action() Action { return ActionSetKey }

func (r *SetKeyRequest) validate() error {
	return requireFields(field{"sessionId", r.SessionID}, field{"provider", r.Provider}, field{"apiKey", r.APIKey})
}

type RemoveKeyRequest struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
}

func (*RemoveKeyRequest) Action() Action { return ActionRemoveKey }

func (r *RemoveKeyRequest) validate() error {
	return requireFields(field{"sessionId", r.SessionID}, field{"provider", r.Provider})
}

type CheckKeyRequest struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
}

func (*CheckKeyRequest) Action() Action { return ActionCheckKey }

func (r *CheckKeyRequest) validate() error {
	return requireFields(field{"sessionId", r.SessionID}, field{"provider", r.Provider})
}

type VerifyKeyRequest struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
}

func (*VerifyKeyRequest) Action() Action { return ActionVerifyKey }

func (r *VerifyKeyRequest) validate() error {
	return requireFields(field{"sessionId", r.SessionID}, field{"provider", r.Provider})
}

// DecodeRequest reads the action discriminant, decodes the payload into the
// matching variant and validates its required fields.
func DecodeRequest(payload []byte) (Request, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.Wrap(brokererrors.ErrMalformedBody, "[DecodeRequest] invalid JSON")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, errors.Wrap(brokererrors.ErrMalformedBody, "[DecodeRequest] payload is not an object")
	}

	action := root.Get("action")
	if action.Type != gjson.String {
		return nil, brokererrors.ErrInvalidAction
	}

	var req Request
	switch Action(action.Str) {
	case ActionCreateSession:
		req = &CreateSessionRequest{}
	case ActionDestroySession:
		req = &DestroySessionRequest{}
	case ActionProxy:
		req = &ProxyRequest{}
	case ActionGetSession:
		req = &GetSessionRequest{}
	case ActionSetKey:
		req = &SetKeyRequest{}
	case ActionRemoveKey:
		req = &RemoveKeyRequest{}
	case ActionCheckKey:
		req = &CheckKeyRequest{}
	case ActionVerifyKey:
		req = &VerifyKeyRequest{}
	default:
		return nil, brokererrors.ErrInvalidAction
	}

	if err := json.Unmarshal(payload, req); err != nil {
		return nil, errors.Wrapf(brokererrors.ErrMalformedBody, "[DecodeRequest] %s: %v", action.Str, err)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return brokererrors.Validation(missing...)
	}
	return nil
}
