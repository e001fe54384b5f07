// Package sealed encrypts session secret bundles while they sit in the
// session table. Keys are generated per process and never leave it, so a
// sealed blob is only readable by the broker instance that produced it.
//
// Two modes are available. ModeAge wraps filippo.io/age with an ephemeral
// X25519 identity. ModeSecretbox uses NaCl secretbox with a random 32-byte
// key and is considerably cheaper per call.
package sealed

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	ModeAge       = "age"
	ModeSecretbox = "secretbox"

	nonceSize = 24
	keySize   = 32
)

// Sealer seals and opens opaque byte blobs.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// New returns the sealer for the configured mode.
func New(mode string) (Sealer, error) {
	switch mode {
	case "", ModeAge:
		return NewAgeSealer()
	case ModeSecretbox:
		return NewSecretboxSealer()
	default:
		return nil, fmt.Errorf("[sealed New] unknown seal mode %q", mode)
	}
}

// AgeSealer encrypts to its own ephemeral X25519 recipient.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer generates a fresh identity for the lifetime of the process.
func NewAgeSealer() (*AgeSealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}, nil
}

func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func (s *AgeSealer) Open(ciphertext []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

// SecretboxSealer prefixes every blob with its random nonce.
type SecretboxSealer struct {
	key [keySize]byte
}

// NewSecretboxSealer draws a fresh key from crypto/rand.
func NewSecretboxSealer() (*SecretboxSealer, error) {
	s := &SecretboxSealer{}
	if _, err := rand.Read(s.key[:]); err != nil {
		return nil, fmt.Errorf("generating secretbox key: %w", err)
	}
	return s, nil
}

func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *SecretboxSealer) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("secretbox authentication failed")
	}
	return plaintext, nil
}
