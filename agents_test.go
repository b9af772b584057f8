package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a minimal config file pointing all state at
// temporary directories.
func writeConfig(t *testing.T, mockDir string) string {
	t.Helper()

	dataDir := t.TempDir()
	cfg := map[string]interface{}{
		"mock_dir":    mockDir,
		"project_dir": t.TempDir(),
		"data_dir":    dataDir,
		"logging": map[string]interface{}{
			"level": "debug",
			"file":  filepath.Join(dataDir, "agents.log"),
		},
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestNew_MockMode(t *testing.T) {
	mockDir := t.TempDir()
	sdk, err := New(Options{ConfigPath: writeConfig(t, mockDir)})
	require.NoError(t, err)
	defer sdk.Close()

	assert.Equal(t, "mock", sdk.Client.Mode())
	assert.NotNil(t, sdk.History)
	assert.NotNil(t, sdk.Authoring)
	assert.Nil(t, sdk.Retention)
}

func TestNew_MissingMockDirFailsFast(t *testing.T) {
	_, err := New(Options{ConfigPath: writeConfig(t, "/no/such/dir")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSDK_TesterAndPreviewsShareClient(t *testing.T) {
	mockDir := t.TempDir()
	sdk, err := New(Options{ConfigPath: writeConfig(t, mockDir)})
	require.NoError(t, err)
	defer sdk.Close()

	tester := sdk.Tester()
	require.NotNil(t, tester)

	pv := sdk.ProductionPreview("bot-1", nil)
	require.NotNil(t, pv)
	assert.Empty(t, pv.SessionID())
}

func TestSDK_FullFlowThroughFixtures(t *testing.T) {
	mockDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(mockDir, "einstein_ai-agent_v1_sessions.json"),
		[]byte(`{"sessionId":"sess-1"}`), 0600))
	require.NoError(t, os.WriteFile(
		filepath.Join(mockDir, "einstein_ai-agent_v1_sessions_sess-1.json"),
		[]byte(`{}`), 0600))

	sdk, err := New(Options{ConfigPath: writeConfig(t, mockDir)})
	require.NoError(t, err)
	defer sdk.Close()

	pv := sdk.ProductionPreview("bot-1", nil)
	ctx := context.Background()

	sessionID, err := pv.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, pv.End(ctx, "UserRequest"))

	h, err := sdk.History.ReadAll(ctx, "bot-1", sessionID)
	require.NoError(t, err)
	assert.NotNil(t, h.Metadata.EndTime)
}

func TestPollContext(t *testing.T) {
	sdk, err := New(Options{ConfigPath: writeConfig(t, t.TempDir())})
	require.NoError(t, err)
	defer sdk.Close()

	ctx, cancel := sdk.PollContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.False(t, deadline.IsZero())
}
