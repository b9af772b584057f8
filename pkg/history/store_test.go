package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func userEntry(agentID, sessionID, text string) TranscriptEntry {
	return TranscriptEntry{
		AgentID:   agentID,
		SessionID: sessionID,
		Role:      RoleUser,
		Text:      text,
	}
}

func TestCreateSessionDir(t *testing.T) {
	store := setupStore(t)

	dir, err := store.CreateSessionDir(context.Background(), "agent-1", "sess-1")
	require.NoError(t, err)

	assert.DirExists(t, dir)
	assert.DirExists(t, filepath.Join(dir, "traces"))
	assert.Contains(t, dir, filepath.Join(".sfdx", "agents", "agent-1", "sessions", "sess-1"))

	// Idempotent.
	again, err := store.CreateSessionDir(context.Background(), "agent-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestCreateSessionDir_RejectsTraversal(t *testing.T) {
	store := setupStore(t)

	_, err := store.CreateSessionDir(context.Background(), "../evil", "sess-1")
	assert.Error(t, err)

	_, err = store.CreateSessionDir(context.Background(), "agent-1", "a/b")
	assert.Error(t, err)

	_, err = store.CreateSessionDir(context.Background(), "", "sess-1")
	assert.Error(t, err)
}

func TestAppendTranscript_OneLinePerAppend(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		entry := userEntry("agent-1", "sess-1", fmt.Sprintf("message %d", i))
		require.NoError(t, store.AppendTranscript(ctx, entry))
	}

	data, err := os.ReadFile(filepath.Join(store.SessionDir("agent-1", "sess-1"), "transcript.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, n)

	for i, line := range lines {
		var entry TranscriptEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line %d must be valid JSON", i)
		assert.Equal(t, fmt.Sprintf("message %d", i), entry.Text)
	}
}

func TestAppendTranscript_CreatesDirOnDemand(t *testing.T) {
	store := setupStore(t)

	entry := userEntry("agent-1", "sess-1", "hello")
	require.NoError(t, store.AppendTranscript(context.Background(), entry))

	assert.FileExists(t, filepath.Join(store.SessionDir("agent-1", "sess-1"), "transcript.jsonl"))
}

func TestAppendTranscript_InvalidRole(t *testing.T) {
	store := setupStore(t)

	entry := userEntry("agent-1", "sess-1", "hello")
	entry.Role = "system"
	err := store.AppendTranscript(context.Background(), entry)
	assert.ErrorContains(t, err, "invalid transcript role")
}

func TestAppendTranscript_ConcurrentWritersLoseNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				entry := userEntry("agent-1", "sess-1", fmt.Sprintf("w%d-m%d", w, i))
				assert.NoError(t, store.AppendTranscript(ctx, entry))
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.readTranscript("agent-1", "sess-1", store.logger)
	require.NoError(t, err)
	assert.Len(t, entries, writers*perWriter)
}

func TestWriteTrace_WriteOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteTrace(ctx, "agent-1", "sess-1", "plan-1", []byte(`{"steps":1}`)))

	// Second write for the same plan is ignored.
	require.NoError(t, store.WriteTrace(ctx, "agent-1", "sess-1", "plan-1", []byte(`{"steps":99}`)))

	data, err := os.ReadFile(filepath.Join(store.SessionDir("agent-1", "sess-1"), "traces", "plan-1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps":1}`, string(data))
}

func TestMetadata_RoundTripAndFinalize(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	meta := Metadata{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		StartTime: start,
		PlanIDs:   []string{"plan-1", "plan-1", "plan-2"},
	}
	require.NoError(t, store.WriteMetadata(ctx, meta))

	end := start.Add(time.Minute)
	require.NoError(t, store.FinalizeMetadata(ctx, "agent-1", "sess-1", end, []string{"plan-2", "plan-3"}))

	got, err := store.readMetadata("agent-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"plan-1", "plan-2", "plan-3"}, got.PlanIDs)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(end))
	assert.True(t, got.StartTime.Equal(start))
}

func TestReadAll(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteMetadata(ctx, Metadata{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		StartTime: time.Now(),
		PlanIDs:   []string{"plan-1"},
	}))
	require.NoError(t, store.AppendTranscript(ctx, userEntry("agent-1", "sess-1", "hi")))
	require.NoError(t, store.AppendTranscript(ctx, TranscriptEntry{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Role:      RoleAgent,
		Response:  json.RawMessage(`{"message":"hello"}`),
	}))
	require.NoError(t, store.WriteTrace(ctx, "agent-1", "sess-1", "plan-1", []byte(`{"steps":2}`)))

	history, err := store.ReadAll(ctx, "agent-1", "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "agent-1", history.Metadata.AgentID)
	require.Len(t, history.Transcript, 2)
	assert.Equal(t, RoleUser, history.Transcript[0].Role)
	assert.Equal(t, RoleAgent, history.Transcript[1].Role)
	require.Len(t, history.Traces, 1)
	assert.Equal(t, "plan-1", history.Traces[0].PlanID)
}

func TestReadAll_SkipsCorruptLines(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteMetadata(ctx, Metadata{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		StartTime: time.Now(),
	}))
	require.NoError(t, store.AppendTranscript(ctx, userEntry("agent-1", "sess-1", "first")))

	// Simulate a torn write.
	path := filepath.Join(store.SessionDir("agent-1", "sess-1"), "transcript.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2026-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	history, err := store.ReadAll(ctx, "agent-1", "sess-1")
	require.NoError(t, err)
	require.Len(t, history.Transcript, 1)
	assert.Equal(t, "first", history.Transcript[0].Text)
}

func TestReadAgentHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, sessionID := range []string{"sess-1", "sess-2"} {
		require.NoError(t, store.WriteMetadata(ctx, Metadata{
			AgentID:   "agent-1",
			SessionID: sessionID,
			StartTime: time.Now(),
		}))
	}

	histories, err := store.ReadAgentHistory(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, histories, 2)
}

func TestListSessions_EmptyForUnknownAgent(t *testing.T) {
	store := setupStore(t)

	sessions, err := store.ListSessions("nobody")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCopyTo(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteMetadata(ctx, Metadata{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		StartTime: time.Now(),
	}))
	require.NoError(t, store.AppendTranscript(ctx, userEntry("agent-1", "sess-1", "hi")))
	require.NoError(t, store.WriteTrace(ctx, "agent-1", "sess-1", "plan-1", []byte(`{}`)))

	out := filepath.Join(t.TempDir(), "export")
	require.NoError(t, store.CopyTo(ctx, "agent-1", "sess-1", out))

	assert.FileExists(t, filepath.Join(out, "metadata.json"))
	assert.FileExists(t, filepath.Join(out, "transcript.jsonl"))
	assert.FileExists(t, filepath.Join(out, "traces", "plan-1.json"))

	// Source untouched.
	assert.FileExists(t, filepath.Join(store.SessionDir("agent-1", "sess-1"), "transcript.jsonl"))
}

func TestCopyTo_UnknownSession(t *testing.T) {
	store := setupStore(t)

	err := store.CopyTo(context.Background(), "agent-1", "missing", t.TempDir())
	assert.ErrorContains(t, err, "no recorded history")
}

func TestDedupePlanIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupePlanIDs([]string{"a", "b", "a", "", "c", "b"}))
	assert.Empty(t, dedupePlanIDs(nil))
}
