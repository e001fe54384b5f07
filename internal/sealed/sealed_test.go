package sealed_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-session-broker/internal/sealed"
	"github.com/stretchr/testify/require"
)

func TestSealers(t *testing.T) {
	for _, mode := range []string{sealed.ModeAge, sealed.ModeSecretbox} {
		t.Run(mode, func(t *testing.T) {
			s, err := sealed.New(mode)
			require.NoError(t, err)

			plaintext := []byte("ghp_exampletoken1234567890")
			ciphertext, err := s.Seal(plaintext)
			require.NoError(t, err)
			require.False(t, bytes.Contains(ciphertext, plaintext), "ciphertext must not contain the plaintext")

			opened, err := s.Open(ciphertext)
			require.NoError(t, err)
			require.Equal(t, plaintext, opened)
		})
	}
}

func TestSealersRejectForeignCiphertext(t *testing.T) {
	for _, mode := range []string{sealed.ModeAge, sealed.ModeSecretbox} {
		t.Run(mode, func(t *testing.T) {
			a, err := sealed.New(mode)
			require.NoError(t, err)
			b, err := sealed.New(mode)
			require.NoError(t, err)

			ciphertext, err := a.Seal([]byte("sk-live"))
			require.NoError(t, err)

			_, err = b.Open(ciphertext)
			require.Error(t, err)
		})
	}
}

func TestSecretboxShortCiphertext(t *testing.T) {
	s, err := sealed.NewSecretboxSealer()
	require.NoError(t, err)

	_, err = s.Open([]byte("short"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "too short")
}

func TestNewUnknownMode(t *testing.T) {
	_, err := sealed.New("rot13")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown seal mode")
}
