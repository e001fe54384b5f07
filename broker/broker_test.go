package broker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/broker"
	"github.com/jrsteele09/go-session-broker/internal/sealed"
	"github.com/jrsteele09/go-session-broker/sessions"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRepo(t *testing.T, clock *testClock, ttl time.Duration) *sessions.InMemoryRepo {
	t.Helper()
	sealer, err := sealed.NewSecretboxSealer()
	require.NoError(t, err)
	repo, err := sessions.NewInMemoryRepo(
		sessions.WithNowTime(clock.Now),
		sessions.WithTTL(ttl),
		sessions.WithSealer(sealer),
	)
	require.NoError(t, err)
	return repo
}

// result is one handled action with its body decoded generically and kept
// raw for secrecy checks.
type result struct {
	status int
	body   map[string]any
	raw    string
}

// recorder runs actions through broker.Handle and keeps every raw response.
type recorder struct {
	t         *testing.T
	d         broker.Dispatcher
	mu        sync.Mutex
	allBodies []string
}

func newRecorder(t *testing.T, d broker.Dispatcher) *recorder {
	return &recorder{t: t, d: d}
}

func (r *recorder) call(payload string) result {
	return r.callContext(context.Background(), payload)
}

func (r *recorder) callContext(ctx context.Context, payload string) result {
	resp := broker.Handle(ctx, r.d, []byte(payload))
	require.NotNil(r.t, resp)

	raw, err := json.Marshal(resp.Body)
	require.NoError(r.t, err)

	var body map[string]any
	require.NoError(r.t, json.Unmarshal(raw, &body))

	r.mu.Lock()
	r.allBodies = append(r.allBodies, string(raw))
	r.mu.Unlock()

	return result{status: resp.Status, body: body, raw: string(raw)}
}

// requireNeverLeaked asserts no recorded response contains secret.
func (r *recorder) requireNeverLeaked(secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(r.t, r.allBodies)
	for _, raw := range r.allBodies {
		require.NotContains(r.t, raw, secret)
	}
}

func payload(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(b)
}
