package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithAgentID(ctx, "my_agent")
	ctx = WithSessionID(ctx, "sess-42")
	ctx = WithPlanID(ctx, "plan-7")
	ctx = WithRequestID(ctx, "req-9")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "my_agent", GetAgentID(ctx))
	assert.Equal(t, "sess-42", GetSessionID(ctx))
	assert.Equal(t, "plan-7", GetPlanID(ctx))
	assert.Equal(t, "req-9", GetRequestID(ctx))
}

func TestContext_EmptyValues(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetAgentID(ctx))
	assert.Empty(t, GetSessionID(ctx))
	assert.Empty(t, GetPlanID(ctx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSessionID(ctx, "sess-42")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "sess-42", tc.SessionID)
	assert.Empty(t, tc.AgentID)
}

func TestNewContext(t *testing.T) {
	tc := &TraceContext{
		TraceID:   "trace-1",
		AgentID:   "my_agent",
		SessionID: "sess-42",
	}

	ctx := NewContext(context.Background(), tc)
	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "my_agent", GetAgentID(ctx))
	assert.Equal(t, "sess-42", GetSessionID(ctx))
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	require.NotEmpty(t, GetTraceID(ctx))
	require.NotEmpty(t, GetRequestID(ctx))

	// An existing trace ID is preserved; only the request ID rotates.
	ctx2 := NewRequestContext(ctx)
	assert.Equal(t, GetTraceID(ctx), GetTraceID(ctx2))
	assert.NotEqual(t, GetRequestID(ctx), GetRequestID(ctx2))
}

func TestNewSessionContext(t *testing.T) {
	ctx := NewSessionContext(context.Background(), "my_agent", "sess-42")
	assert.Equal(t, "my_agent", GetAgentID(ctx))
	assert.Equal(t, "sess-42", GetSessionID(ctx))
}

func TestNewTraceID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTraceID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate trace ID generated")
		seen[id] = true
	}
}
