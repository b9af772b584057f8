package preview

import (
	"context"
	"encoding/json"
)

// EndReason explains why a session ended, forwarded to the platform
// in the x-session-end-reason header.
type EndReason string

const (
	EndReasonUserRequest EndReason = "UserRequest"
	EndReasonTranscript  EndReason = "Transcript"
	EndReasonError       EndReason = "Error"
)

// Message is one agent reply.
type Message struct {
	Text   string          `json:"text"`
	PlanID string          `json:"planId,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Preview is one interactive session lifecycle. Implementations are
// not safe for concurrent sends; callers issue Send sequentially.
type Preview interface {
	// Start opens the remote session and returns its ID.
	Start(ctx context.Context) (string, error)

	// Send delivers one user utterance and returns the agent reply.
	Send(ctx context.Context, text string) (*Message, error)

	// End closes the session and finalizes its recorded history.
	End(ctx context.Context, reason EndReason) error

	// SessionID returns the active session ID, empty before Start.
	SessionID() string
}
