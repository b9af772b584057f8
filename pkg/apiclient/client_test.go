package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenConnection struct {
	token string
}

func (c *staticTokenConnection) AuthorizeRequest(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return nil
}

func TestNew_LiveMode(t *testing.T) {
	client, err := New(Config{Host: "https://api.salesforce.com"})
	require.NoError(t, err)
	assert.Equal(t, "live", client.Mode())
}

func TestNew_MockMode(t *testing.T) {
	client, err := New(Config{Host: "https://api.salesforce.com", MockDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Mode())
}

func TestNew_MockDirDoesNotExist(t *testing.T) {
	_, err := New(Config{Host: "https://api.salesforce.com", MockDir: "/no/such/dir"})
	require.Error(t, err)

	var invalidErr *InvalidMockDirError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Error(), "does not exist")
}

func TestNew_MockDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "mocks")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	_, err := New(Config{Host: "https://api.salesforce.com", MockDir: file})
	require.Error(t, err)

	var invalidErr *InvalidMockDirError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Error(), "not a directory")
}

func TestDo_PostWithoutBody(t *testing.T) {
	client, err := New(Config{Host: "https://api.salesforce.com", MockDir: t.TempDir()})
	require.NoError(t, err)

	_, err = client.Post(context.Background(), "/einstein/ai-agent/v1/sessions", nil)
	assert.ErrorIs(t, err, ErrMissingBody)
}

func TestDo_LiveRequest(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte(`{"sessionId":"sess-1"}`))
	}))
	defer server.Close()

	client, err := New(Config{
		Host:       server.URL,
		Connection: &staticTokenConnection{token: "tok-123"},
	})
	require.NoError(t, err)

	body, err := client.Post(context.Background(), "/einstein/ai-agent/v1/sessions", []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"sess-1"}`, string(body))
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/einstein/ai-agent/v1/sessions", gotPath)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, err := New(Config{Host: server.URL, RetryCount: 3})
	require.NoError(t, err)

	body, err := client.Get(context.Background(), "/einstein/ai-agent/v1/sessions/abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer server.Close()

	client, err := New(Config{Host: server.URL, RetryCount: 3})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/einstein/ai-agent/v1/sessions/missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_DeleteWithHeaders(t *testing.T) {
	var gotReason string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReason = r.Header.Get("x-session-end-reason")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := New(Config{Host: server.URL})
	require.NoError(t, err)

	_, err = client.Delete(context.Background(), "/einstein/ai-agent/v1/sessions/abc", map[string]string{
		"x-session-end-reason": "UserRequest",
	})
	require.NoError(t, err)
	assert.Equal(t, "UserRequest", gotReason)
}

func TestMetricEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/einstein/ai-agent/v1/sessions", "/einstein/ai-agent/v1/sessions"},
		{"/einstein/ai-agent/v1/sessions/0d5a9d22-1c44-4f0e/messages", "/einstein/ai-agent/v1/sessions/{id}/messages"},
		{"/einstein/ai-evaluations/runs/4KBSM000000003F4AQ/results", "/einstein/ai-evaluations/runs/{id}/results"},
		{"/connect/ai-assist/create-agent?async=true", "/connect/ai-assist/create-agent"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, metricEndpoint(tt.path), tt.path)
	}
}
