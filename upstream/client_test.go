package upstream_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	brokererrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/upstream"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	server *httptest.Server
	client *upstream.Client
}

func setupTestFixture(t *testing.T, handler http.HandlerFunc, options ...upstream.ClientOption) *testFixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := upstream.New(upstream.Config{
		Name:         "test-upstream",
		BaseURL:      server.URL + "/api/v1",
		IdentityPath: "/user",
		Headers:      map[string]string{"X-Api-Version": "2022-11-28"},
	}, options...)
	require.NoError(t, err)

	return &testFixture{server: server, client: client}
}

func TestNew_Validation(t *testing.T) {
	_, err := upstream.New(upstream.Config{BaseURL: "https://api.github.com"})
	require.Error(t, err)

	_, err = upstream.New(upstream.Config{Name: "x"})
	require.Error(t, err)

	_, err = upstream.New(upstream.Config{Name: "x", BaseURL: "ftp://files.example.com"})
	require.Error(t, err)

	c, err := upstream.New(upstream.Config{Name: "github", BaseURL: "https://api.github.com/"})
	require.NoError(t, err)
	require.Equal(t, "api.github.com", c.Host())
	require.Equal(t, "github", c.Name())
}

func TestResolve(t *testing.T) {
	github, err := upstream.New(upstream.Config{Name: "github", BaseURL: "https://api.github.com"})
	require.NoError(t, err)
	netlify, err := upstream.New(upstream.Config{Name: "netlify", BaseURL: "https://api.netlify.com/api/v1"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		client   *upstream.Client
		endpoint string
		want     string
	}{
		{"bare path", github, "/user/repos", "https://api.github.com/user/repos"},
		{"path without slash", github, "user/repos", "https://api.github.com/user/repos"},
		{"query kept", github, "/user/repos?per_page=100&page=2", "https://api.github.com/user/repos?per_page=100&page=2"},
		{"base path joined", netlify, "/sites", "https://api.netlify.com/api/v1/sites"},
		{"same host absolute", github, "https://api.github.com/repos/o/r", "https://api.github.com/repos/o/r"},
		{"host case insensitive", github, "https://API.github.com/rate_limit", "https://API.github.com/rate_limit"},
		{"escaped path kept", github, "/repos/o/r/contents/a%20b", "https://api.github.com/repos/o/r/contents/a%20b"},
		{"fragment dropped", github, "/user#frag", "https://api.github.com/user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.client.Resolve(tt.endpoint)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolve_ForeignHostRejected(t *testing.T) {
	github, err := upstream.New(upstream.Config{Name: "github", BaseURL: "https://api.github.com"})
	require.NoError(t, err)

	for _, endpoint := range []string{
		"https://evil.example/steal",
		"//evil.example/steal",
		"http://api.github.com/user",
		"https://api.github.com@evil.example/steal",
		"https://api.github.com.evil.example/steal",
		"https://api.github.com:8443/user",
		"mailto:someone@example.com",
	} {
		t.Run(endpoint, func(t *testing.T) {
			_, err := github.Resolve(endpoint)
			require.ErrorIs(t, err, brokererrors.ErrForeignHost)
			require.Equal(t, http.StatusBadRequest, brokererrors.StatusCode(err))
		})
	}
}

func TestDo_InjectsBearerAndBody(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer ghp_secret", r.Header.Get("Authorization"))
		require.Equal(t, "2022-11-28", r.Header.Get("X-Api-Version"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/repos/o/r/issues", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"title":"bug"}`, string(body))

		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":7}`))
	})

	result, err := f.client.Do(context.Background(), "ghp_secret", http.MethodPost, "/repos/o/r/issues", json.RawMessage(`{"title":"bug"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, result.Status)
	require.True(t, result.OK())
	require.JSONEq(t, `{"number":7}`, string(result.Data))

	require.NotNil(t, result.RateLimit)
	require.Equal(t, int64(5000), *result.RateLimit.Limit)
	require.Equal(t, int64(4999), *result.RateLimit.Remaining)
	require.Equal(t, int64(1700000000), *result.RateLimit.Reset)
	require.Nil(t, result.RateLimit.Used)
}

func TestDo_NoBodyNoContentType(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Content-Type"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[]`))
	})

	result, err := f.client.Do(context.Background(), "tok", http.MethodGet, "/sites", nil)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(result.Data))
	require.Nil(t, result.RateLimit)
}

func TestDo_ForeignHostNeverReceivesToken(t *testing.T) {
	var evilHits atomic.Int32
	evil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		evilHits.Add(1)
	}))
	defer evil.Close()

	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("pinned upstream should not be called for a foreign endpoint")
	})

	_, err := f.client.Do(context.Background(), "ghp_secret", http.MethodGet, evil.URL+"/steal", nil)
	require.ErrorIs(t, err, brokererrors.ErrForeignHost)
	require.Equal(t, int32(0), evilHits.Load())
}

func TestDo_RedirectNotFollowed(t *testing.T) {
	var evilAuth atomic.Value
	evilAuth.Store("")
	evil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		evilAuth.Store(r.Header.Get("Authorization"))
	}))
	defer evil.Close()

	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, evil.URL+"/steal", http.StatusFound)
	})

	result, err := f.client.Do(context.Background(), "ghp_secret", http.MethodGet, "/user", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, result.Status)
	require.Empty(t, evilAuth.Load())
}

func TestDo_FailurePassthrough(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	result, err := f.client.Do(context.Background(), "tok", http.MethodGet, "/repos/o/missing", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, result.Status)
	require.False(t, result.OK())

	var data struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &data))
	require.Equal(t, "Not Found", data.Message)
}

func TestDo_EmptyOrInvalidBodyBecomesEmptyObject(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no content", http.StatusNoContent, ""},
		{"whitespace", http.StatusOK, "  \n"},
		{"html error page", http.StatusBadGateway, "<html>bad gateway</html>"},
		{"truncated json", http.StatusOK, `{"a":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := f.client.Do(context.Background(), "tok", http.MethodDelete, "/sites/1", nil)
			require.NoError(t, err)
			require.Equal(t, tt.status, result.Status)
			require.JSONEq(t, `{}`, string(result.Data))
		})
	}
}

func TestDo_ResponseTooLarge(t *testing.T) {
	body := `{"padding":"0123456789012345678901234567890123456789"}`
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, upstream.WithMaxBodyBytes(16))

	result, err := f.client.Do(context.Background(), "tok", http.MethodGet, "/big", nil)
	require.Nil(t, result)
	require.ErrorIs(t, err, brokererrors.ErrUpstream)
	require.Equal(t, http.StatusBadGateway, brokererrors.StatusCode(err))
}

func TestDo_ResponseAtLimit(t *testing.T) {
	body := `{"padding":"0123456789012345678901234567890123456789"}`
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, upstream.WithMaxBodyBytes(int64(len(body))))

	result, err := f.client.Do(context.Background(), "tok", http.MethodGet, "/big", nil)
	require.NoError(t, err)
	require.JSONEq(t, body, string(result.Data))
}

func TestDo_Timeout(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, upstream.WithTimeout(50*time.Millisecond))

	_, err := f.client.Do(context.Background(), "tok", http.MethodGet, "/slow", nil)
	require.ErrorIs(t, err, brokererrors.ErrUpstream)
	require.Equal(t, http.StatusBadGateway, brokererrors.StatusCode(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.client.Do(ctx, "tok", http.MethodGet, "/slow", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, brokererrors.ErrUpstream)
}

func TestIdentity(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"login":"octocat","id":1}`))
	})

	result, err := f.client.Identity(context.Background(), "good")
	require.NoError(t, err)
	require.True(t, result.OK())
	require.JSONEq(t, `{"login":"octocat","id":1}`, string(result.Data))

	result, err = f.client.Identity(context.Background(), "bad")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, result.Status)
}
