package apiclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockClient(t *testing.T) (*Client, string) {
	t.Helper()
	mockDir := t.TempDir()
	client, err := New(Config{Host: "https://api.salesforce.com", MockDir: mockDir})
	require.NoError(t, err)
	return client, mockDir
}

func TestFixtureName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.salesforce.com/einstein/ai-agent/v1/sessions", "einstein_ai-agent_v1_sessions"},
		{"https://api.salesforce.com/connect/ai-assist/create-agent?async=true", "connect_ai-assist_create-agent"},
		{"/einstein/ai-evaluations/runs", "einstein_ai-evaluations_runs"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fixtureName(tt.url), tt.url)
	}
}

func TestMock_JSONFixture(t *testing.T) {
	client, mockDir := setupMockClient(t)

	fixture := filepath.Join(mockDir, "einstein_ai-agent_v1_sessions.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{"sessionId":"sess-1"}`), 0600))

	body, err := client.Post(context.Background(), "/einstein/ai-agent/v1/sessions", []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"sess-1"}`, string(body))
}

func TestMock_PlainFixture(t *testing.T) {
	client, mockDir := setupMockClient(t)

	fixture := filepath.Join(mockDir, "einstein_ai-agent_v1.1_authoring_compile")
	require.NoError(t, os.WriteFile(fixture, []byte("compiled ok"), 0600))

	body, err := client.Post(context.Background(), "/einstein/ai-agent/v1.1/authoring/compile", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "compiled ok", string(body))
}

func TestMock_JSONPreferredOverPlain(t *testing.T) {
	client, mockDir := setupMockClient(t)

	require.NoError(t, os.WriteFile(filepath.Join(mockDir, "path.json"), []byte(`{"from":"json"}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(mockDir, "path"), []byte("from plain"), 0600))

	body, err := client.Get(context.Background(), "/path")
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"json"}`, string(body))
}

func TestMock_DirectorySequence(t *testing.T) {
	client, mockDir := setupMockClient(t)

	seqDir := filepath.Join(mockDir, "einstein_ai-evaluations_runs_run-1")
	require.NoError(t, os.MkdirAll(seqDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(seqDir, "01.json"), []byte(`{"status":"IN_PROGRESS"}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(seqDir, "02.json"), []byte(`{"status":"COMPLETED"}`), 0600))

	body, err := client.Get(context.Background(), "/einstein/ai-evaluations/runs/run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"IN_PROGRESS"}`, string(body))

	body, err = client.Get(context.Background(), "/einstein/ai-evaluations/runs/run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(body))

	// A third call runs off the end of the sequence.
	_, err = client.Get(context.Background(), "/einstein/ai-evaluations/runs/run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestMock_MissingFixtureNamesCandidates(t *testing.T) {
	client, mockDir := setupMockClient(t)

	_, err := client.Get(context.Background(), "/einstein/ai-agent/v1/sessions/abc")
	require.Error(t, err)

	var missingErr *MissingMockFileError
	require.ErrorAs(t, err, &missingErr)
	assert.Contains(t, missingErr.Error(), filepath.Join(mockDir, "einstein_ai-agent_v1_sessions_abc.json"))
	assert.Contains(t, missingErr.Error(), filepath.Join(mockDir, "einstein_ai-agent_v1_sessions_abc"))
}

func TestMock_Deterministic(t *testing.T) {
	mockDir := t.TempDir()
	fixture := filepath.Join(mockDir, "connect_ai-assist_draft-agent-topics.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{"topics":["billing"]}`), 0600))

	// Two independent clients over the same root resolve identically.
	for i := 0; i < 2; i++ {
		client, err := New(Config{Host: "https://api.salesforce.com", MockDir: mockDir})
		require.NoError(t, err)

		body, err := client.Post(context.Background(), "/connect/ai-assist/draft-agent-topics?query=x", []byte(`{}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"topics":["billing"]}`, string(body))
	}
}
