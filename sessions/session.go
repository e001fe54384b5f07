package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const (
	// IDBytes is the entropy of a generated session id (256 bits).
	IDBytes = 32
	// IDLength is the length of the hex-encoded id.
	IDLength = IDBytes * 2

	fingerprintBytes = 6
)

// Session binds an opaque identifier to secret material and a creation time.
// Sessions handed out by a Repo are copies; changing one has no effect on the
// stored entry.
type Session struct {
	ID        string    // Opaque client-visible identifier (64 hex chars)
	CreatedAt time.Time // Set once at creation, never refreshed
	Secrets   Secrets   // Never serialized into any response
}

// Secrets is the bundle held for a session. Single-bearer brokers use Token
// and TokenType; the vault broker uses Keys (provider name -> API key).
type Secrets struct {
	Token     string            `cbor:"1,keyasint,omitempty"`
	TokenType string            `cbor:"2,keyasint,omitempty"`
	Keys      map[string]string `cbor:"3,keyasint,omitempty"`
}

// Providers returns the sorted names of the providers holding a key.
func (s Secrets) Providers() []string {
	providers := make([]string, 0, len(s.Keys))
	for provider := range s.Keys {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers
}

// HasKey reports whether a key is stored for provider.
func (s Secrets) HasKey(provider string) bool {
	_, ok := s.Keys[provider]
	return ok
}

// Clone returns a deep copy.
func (s Secrets) Clone() Secrets {
	clone := Secrets{Token: s.Token, TokenType: s.TokenType}
	if s.Keys != nil {
		clone.Keys = make(map[string]string, len(s.Keys))
		for k, v := range s.Keys {
			clone.Keys[k] = v
		}
	}
	return clone
}

func encodeSecrets(s Secrets) ([]byte, error) {
	return cbor.Marshal(s)
}

func decodeSecrets(data []byte) (Secrets, error) {
	var s Secrets
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

// GenerateID returns 256 bits from crypto/rand, hex encoded.
func GenerateID() (string, error) {
	b := make([]byte, IDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[GenerateID] failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidID reports whether id has the shape of a generated session id.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Expired reports whether a session created at createdAt is past ttl at now.
// A session is still live at exactly createdAt+ttl.
func Expired(now, createdAt time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) > ttl
}

// RemainingSeconds is the whole number of seconds left before expiry.
func RemainingSeconds(now, createdAt time.Time, ttl time.Duration) int64 {
	remaining := ttl - now.Sub(createdAt)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// Fingerprint is a short digest of a session id for log fields.
func Fingerprint(id string) string {
	if id == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(id))
	return hex.EncodeToString(sum[:fingerprintBytes])
}
