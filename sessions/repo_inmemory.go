package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-broker/internal/sealed"
)

var _ Repo = (*InMemoryRepo)(nil)

// entry is one row of the session table. createdAt is written before the
// entry is published and never changes; sealedSecrets and removed are
// guarded by mu.
type entry struct {
	mu            sync.Mutex
	createdAt     time.Time
	sealedSecrets []byte
	removed       bool
}

// InMemoryRepo is a process-lifetime session table. The map is guarded by a
// RWMutex; each entry has its own lock so sealing work for one session never
// holds up another.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	sealer   sealed.Sealer
	ttl      time.Duration
	nowTime  func() time.Time
}

// InMemoryRepoOption configures an InMemoryRepo.
type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// WithTTL makes lookups treat sessions older than ttl as absent even before
// a sweep has removed them. Zero disables the check.
func WithTTL(ttl time.Duration) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.ttl = ttl
	}
}

// WithSealer sets the sealer used for secrets at rest in the table.
func WithSealer(s sealed.Sealer) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.sealer = s
	}
}

// NewInMemoryRepo creates an empty session table. Without WithSealer an age
// sealer with a fresh identity is used.
func NewInMemoryRepo(options ...InMemoryRepoOption) (*InMemoryRepo, error) {
	r := &InMemoryRepo{
		sessions: make(map[string]*entry),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.sealer == nil {
		s, err := sealed.NewAgeSealer()
		if err != nil {
			return nil, fmt.Errorf("[NewInMemoryRepo] failed to create sealer: %w", err)
		}
		r.sealer = s
	}
	return r, nil
}

func (r *InMemoryRepo) GenerateID() (string, error) {
	return GenerateID()
}

func (r *InMemoryRepo) Create(sessionID string) (*Session, error) {
	if sessionID != "" {
		if s, found, err := r.Get(sessionID); err != nil || found {
			return s, err
		}
	}
	return r.Insert(Secrets{})
}

func (r *InMemoryRepo) Insert(secrets Secrets) (*Session, error) {
	blob, err := r.seal(secrets)
	if err != nil {
		return nil, fmt.Errorf("[Insert] %w", err)
	}

	for {
		id, err := r.GenerateID()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if _, exists := r.sessions[id]; exists {
			r.mu.Unlock()
			continue
		}
		e := &entry{createdAt: r.nowTime(), sealedSecrets: blob}
		r.sessions[id] = e
		r.mu.Unlock()

		return &Session{ID: id, CreatedAt: e.createdAt, Secrets: secrets.Clone()}, nil
	}
}

func (r *InMemoryRepo) Get(sessionID string) (*Session, bool, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok || r.expired(e) {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, false, nil
	}
	secrets, err := r.open(e.sealedSecrets)
	if err != nil {
		return nil, false, fmt.Errorf("[Get] %w", err)
	}
	return &Session{ID: sessionID, CreatedAt: e.createdAt, Secrets: secrets}, true, nil
}

func (r *InMemoryRepo) MutateSecrets(sessionID string, mutate func(*Secrets)) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("[MutateSecrets] sessionID is required")
	}

	for {
		e, err := r.getOrCreate(sessionID)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if e.removed {
			// Deleted or swept between lookup and lock; start again.
			e.mu.Unlock()
			continue
		}
		secrets, err := r.open(e.sealedSecrets)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("[MutateSecrets] %w", err)
		}
		mutate(&secrets)
		blob, err := r.seal(secrets)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("[MutateSecrets] %w", err)
		}
		e.sealedSecrets = blob
		e.mu.Unlock()

		return &Session{ID: sessionID, CreatedAt: e.createdAt, Secrets: secrets.Clone()}, nil
	}
}

func (r *InMemoryRepo) MutateSecretsIfPresent(sessionID string, mutate func(*Secrets)) (*Session, bool, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || r.expired(e) {
		return nil, false, nil
	}
	secrets, err := r.open(e.sealedSecrets)
	if err != nil {
		return nil, false, fmt.Errorf("[MutateSecretsIfPresent] %w", err)
	}
	mutate(&secrets)
	blob, err := r.seal(secrets)
	if err != nil {
		return nil, false, fmt.Errorf("[MutateSecretsIfPresent] %w", err)
	}
	e.sealedSecrets = blob
	return &Session{ID: sessionID, CreatedAt: e.createdAt, Secrets: secrets.Clone()}, true, nil
}

func (r *InMemoryRepo) Delete(sessionID string) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		markRemoved(e)
	}
}

func (r *InMemoryRepo) Sweep(ttl time.Duration) int {
	now := r.nowTime()
	var evicted []*entry

	r.mu.Lock()
	for id, e := range r.sessions {
		if Expired(now, e.createdAt, ttl) {
			delete(r.sessions, id)
			evicted = append(evicted, e)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		markRemoved(e)
	}
	return len(evicted)
}

func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// getOrCreate returns the live entry for sessionID, replacing an expired one.
func (r *InMemoryRepo) getOrCreate(sessionID string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok && !r.expired(e) {
		return e, nil
	}

	blob, err := r.seal(Secrets{})
	if err != nil {
		return nil, fmt.Errorf("[MutateSecrets] %w", err)
	}

	r.mu.Lock()
	current, ok := r.sessions[sessionID]
	if ok && !r.expired(current) {
		r.mu.Unlock()
		return current, nil
	}
	e = &entry{createdAt: r.nowTime(), sealedSecrets: blob}
	r.sessions[sessionID] = e
	r.mu.Unlock()

	if ok {
		markRemoved(current)
	}
	return e, nil
}

func (r *InMemoryRepo) expired(e *entry) bool {
	return r.ttl > 0 && Expired(r.nowTime(), e.createdAt, r.ttl)
}

func (r *InMemoryRepo) seal(secrets Secrets) ([]byte, error) {
	plaintext, err := encodeSecrets(secrets)
	if err != nil {
		return nil, fmt.Errorf("encoding secrets: %w", err)
	}
	blob, err := r.sealer.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealing secrets: %w", err)
	}
	return blob, nil
}

func (r *InMemoryRepo) open(blob []byte) (Secrets, error) {
	plaintext, err := r.sealer.Open(blob)
	if err != nil {
		return Secrets{}, fmt.Errorf("opening secrets: %w", err)
	}
	secrets, err := decodeSecrets(plaintext)
	if err != nil {
		return Secrets{}, fmt.Errorf("decoding secrets: %w", err)
	}
	return secrets, nil
}

func markRemoved(e *entry) {
	e.mu.Lock()
	e.removed = true
	e.sealedSecrets = nil
	e.mu.Unlock()
}
