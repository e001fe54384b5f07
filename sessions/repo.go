package sessions

import "time"

// Repo is the session store owned by a single broker. All methods are safe
// for concurrent use. Absence is reported through the found flag or an
// auto-create, never as an error; errors mean an internal fault.
type Repo interface {
	// GenerateID returns a fresh unpredictable session id
	GenerateID() (string, error)

	// Create returns the live session for sessionID, or a new empty session
	// under a freshly generated id when sessionID is empty or unknown
	Create(sessionID string) (*Session, error)

	// Insert creates a new session that already holds secrets
	Insert(secrets Secrets) (*Session, error)

	// Get looks a session up without touching its creation time
	Get(sessionID string) (*Session, bool, error)

	// MutateSecrets applies mutate to the session's secrets, creating the
	// session under sessionID first if it does not exist
	MutateSecrets(sessionID string, mutate func(*Secrets)) (*Session, error)

	// MutateSecretsIfPresent applies mutate only to a live session and never
	// creates one; found is false when the session is absent or expired
	MutateSecretsIfPresent(sessionID string, mutate func(*Secrets)) (*Session, bool, error)

	// Delete removes a session; deleting an unknown id is a no-op
	Delete(sessionID string)

	// Sweep evicts sessions older than ttl and returns how many were removed
	Sweep(ttl time.Duration) int

	// Len returns the number of entries in the table
	Len() int
}
