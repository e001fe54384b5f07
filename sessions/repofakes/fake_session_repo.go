package fakesessionrepo

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-session-broker/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps plaintext sessions in a map. Setting Err makes every
// fallible method return it, which drives the internal-fault paths.
type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex

	Err     error
	NowTime func() time.Time

	// Swept records the ttl of every Sweep call.
	Swept []time.Duration
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
		NowTime:  time.Now,
	}
}

func (sr *FakeSessionRepo) GenerateID() (string, error) {
	if sr.Err != nil {
		return "", sr.Err
	}
	return sessions.GenerateID()
}

func (sr *FakeSessionRepo) Create(sessionID string) (*sessions.Session, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}

	sr.lock.RLock()
	session, ok := sr.sessions[sessionID]
	sr.lock.RUnlock()
	if ok {
		return copySession(session), nil
	}
	return sr.Insert(sessions.Secrets{})
}

func (sr *FakeSessionRepo) Insert(secrets sessions.Secrets) (*sessions.Session, error) {
	id, err := sr.GenerateID()
	if err != nil {
		return nil, err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	session := &sessions.Session{ID: id, CreatedAt: sr.NowTime(), Secrets: secrets.Clone()}
	sr.sessions[id] = session
	return copySession(session), nil
}

func (sr *FakeSessionRepo) Get(sessionID string) (*sessions.Session, bool, error) {
	if sr.Err != nil {
		return nil, false, sr.Err
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return copySession(session), true, nil
}

func (sr *FakeSessionRepo) MutateSecrets(sessionID string, mutate func(*sessions.Secrets)) (*sessions.Session, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		session = &sessions.Session{ID: sessionID, CreatedAt: sr.NowTime()}
		sr.sessions[sessionID] = session
	}
	mutate(&session.Secrets)
	return copySession(session), nil
}

func (sr *FakeSessionRepo) MutateSecretsIfPresent(sessionID string, mutate func(*sessions.Secrets)) (*sessions.Session, bool, error) {
	if sr.Err != nil {
		return nil, false, sr.Err
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	mutate(&session.Secrets)
	return copySession(session), true, nil
}

func (sr *FakeSessionRepo) Delete(sessionID string) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	delete(sr.sessions, sessionID)
}

func (sr *FakeSessionRepo) Sweep(ttl time.Duration) int {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.Swept = append(sr.Swept, ttl)
	now := sr.NowTime()
	evicted := 0
	for sessionID, session := range sr.sessions {
		if sessions.Expired(now, session.CreatedAt, ttl) {
			delete(sr.sessions, sessionID)
			evicted++
		}
	}
	return evicted
}

func (sr *FakeSessionRepo) Len() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return len(sr.sessions)
}

func copySession(s *sessions.Session) *sessions.Session {
	return &sessions.Session{ID: s.ID, CreatedAt: s.CreatedAt, Secrets: s.Secrets.Clone()}
}
