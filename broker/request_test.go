package broker_test

import (
	"net/http"
	"testing"

	"github.com/jrsteele09/go-session-broker/broker"
	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest_Variants(t *testing.T) {
	tests := []struct {
		payload string
		want    broker.Request
	}{
		{`{"action":"create_session","token":"t","tokenType":"classic"}`, &broker.CreateSessionRequest{Token: "t", TokenType: "classic"}},
		{`{"action":"destroy_session"}`, &broker.DestroySessionRequest{}},
		{`{"action":"get_session"}`, &broker.GetSessionRequest{}},
		{`{"action":"set_key","sessionId":"s","provider":"openai","apiKey":"k"}`, &broker.SetKeyRequest{SessionID: "s", Provider: "openai", APIKey: "k"}},
		{`{"action":"remove_key","sessionId":"s","provider":"openai"}`, &broker.RemoveKeyRequest{SessionID: "s", Provider: "openai"}},
		{`{"action":"check_key","sessionId":"s","provider":"openai"}`, &broker.CheckKeyRequest{SessionID: "s", Provider: "openai"}},
		{`{"action":"verify_key","sessionId":"s","provider":"openai"}`, &broker.VerifyKeyRequest{SessionID: "s", Provider: "openai"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.want.Action()), func(t *testing.T) {
			got, err := broker.DecodeRequest([]byte(tt.payload))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequest_ProxyMethod(t *testing.T) {
	req, err := broker.DecodeRequest([]byte(`{"action":"proxy","sessionId":"s","endpoint":"/user"}`))
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, req.(*broker.ProxyRequest).Method)

	req, err = broker.DecodeRequest([]byte(`{"action":"proxy","sessionId":"s","endpoint":"/user/repos","method":"post","body":{"name":"r"}}`))
	require.NoError(t, err)
	proxy := req.(*broker.ProxyRequest)
	require.Equal(t, http.MethodPost, proxy.Method)
	require.JSONEq(t, `{"name":"r"}`, string(proxy.Body))

	_, err = broker.DecodeRequest([]byte(`{"action":"proxy","sessionId":"s","endpoint":"/user","method":"CONNECT"}`))
	require.ErrorIs(t, err, brokererrors.ErrValidation)
	require.Equal(t, "Unsupported method", brokererrors.PublicMessage(err))
}

func TestDecodeRequest_MissingFields(t *testing.T) {
	tests := []struct {
		payload string
		message string
	}{
		{`{"action":"create_session"}`, "Missing required fields: token"},
		{`{"action":"create_session","token":""}`, "Missing required fields: token"},
		{`{"action":"proxy"}`, "Missing required fields: sessionId, endpoint"},
		{`{"action":"proxy","sessionId":"s"}`, "Missing required fields: endpoint"},
		{`{"action":"set_key","sessionId":"s"}`, "Missing required fields: provider, apiKey"},
		{`{"action":"set_key"}`, "Missing required fields: sessionId, provider, apiKey"},
		{`{"action":"remove_key","provider":"openai"}`, "Missing required fields: sessionId"},
		{`{"action":"check_key","sessionId":"s"}`, "Missing required fields: provider"},
		{`{"action":"verify_key"}`, "Missing required fields: sessionId, provider"},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			_, err := broker.DecodeRequest([]byte(tt.payload))
			require.Error(t, err)
			require.Equal(t, http.StatusBadRequest, brokererrors.StatusCode(err))
			require.Equal(t, tt.message, brokererrors.PublicMessage(err))
		})
	}
}

func TestDecodeRequest_InvalidAction(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"action":"launch_missiles"}`,
		`{"action":42}`,
		`{"action":null}`,
		`{"action":"CREATE_SESSION","token":"t"}`,
	} {
		t.Run(payload, func(t *testing.T) {
			_, err := broker.DecodeRequest([]byte(payload))
			require.ErrorIs(t, err, brokererrors.ErrInvalidAction)
			require.Equal(t, http.StatusBadRequest, brokererrors.StatusCode(err))
			require.Equal(t, "Invalid action", brokererrors.PublicMessage(err))
		})
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	for _, payload := range []string{
		``,
		`{"action":`,
		`not json`,
		`["create_session"]`,
		`"create_session"`,
		`{"action":"create_session","token":123}`,
	} {
		t.Run(payload, func(t *testing.T) {
			_, err := broker.DecodeRequest([]byte(payload))
			require.ErrorIs(t, err, brokererrors.ErrMalformedBody)
			require.Equal(t, http.StatusInternalServerError, brokererrors.StatusCode(err))
		})
	}
}
