package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEndedSession(t *testing.T, store *Store, agentID, sessionID string, endedAgo time.Duration) {
	t.Helper()
	end := time.Now().Add(-endedAgo)
	require.NoError(t, store.WriteMetadata(context.Background(), Metadata{
		AgentID:   agentID,
		SessionID: sessionID,
		StartTime: end.Add(-time.Minute),
		EndTime:   &end,
	}))
}

func TestSweepNow_RemovesExpiredEndedSessions(t *testing.T) {
	store := setupStore(t)

	writeEndedSession(t, store, "agent-1", "old", 48*time.Hour)
	writeEndedSession(t, store, "agent-1", "recent", time.Hour)

	retention := NewRetention(store, "0 3 * * *", 24*time.Hour)
	removed, err := retention.SweepNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	sessions, err := store.ListSessions("agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, sessions)
}

func TestSweepNow_KeepsUnendedSessions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteMetadata(ctx, Metadata{
		AgentID:   "agent-1",
		SessionID: "live",
		StartTime: time.Now().Add(-72 * time.Hour),
	}))

	retention := NewRetention(store, "0 3 * * *", 24*time.Hour)
	removed, err := retention.SweepNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	sessions, err := store.ListSessions("agent-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, sessions)
}

func TestStart_DisabledWithoutMaxAge(t *testing.T) {
	store := setupStore(t)

	retention := NewRetention(store, "0 3 * * *", 0)
	require.NoError(t, retention.Start())
	assert.Nil(t, retention.cron)
	retention.Stop()
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	store := setupStore(t)

	retention := NewRetention(store, "not a schedule", 24*time.Hour)
	assert.Error(t, retention.Start())
}
