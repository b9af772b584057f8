package preview

import (
	"context"
	"time"

	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/forcekit/agents/pkg/history"
	"github.com/rs/zerolog"
)

// recorder persists one session to the history store and mirrors
// events to an optional broadcaster. Both preview variants share it.
type recorder struct {
	store       *history.Store
	broadcaster *Broadcaster
	client      *apiclient.Client
	tracePath   func(sessionID, planID string) string
	logger      zerolog.Logger

	agentID   string
	sessionID string
	planIDs   []string
	startTime time.Time
}

func (r *recorder) begin(ctx context.Context, sessionID string) error {
	r.sessionID = sessionID
	r.startTime = time.Now()

	if r.store == nil {
		return nil
	}

	if _, err := r.store.CreateSessionDir(ctx, r.agentID, sessionID); err != nil {
		return err
	}

	if err := r.store.WriteMetadata(ctx, history.Metadata{
		AgentID:   r.agentID,
		SessionID: sessionID,
		StartTime: r.startTime,
		PlanIDs:   []string{},
	}); err != nil {
		return err
	}

	observability.RecordSessionAudit(ctx, "start", sessionID, "success", map[string]interface{}{
		"agent_id": r.agentID,
	})
	r.emit("session_started", "", "")

	return nil
}

func (r *recorder) recordUser(ctx context.Context, text string) error {
	if r.store != nil {
		err := r.store.AppendTranscript(ctx, history.TranscriptEntry{
			Timestamp: time.Now(),
			AgentID:   r.agentID,
			SessionID: r.sessionID,
			Role:      history.RoleUser,
			Text:      text,
		})
		if err != nil {
			return err
		}
	}

	r.emit("user_message", text, "")
	return nil
}

func (r *recorder) recordAgent(ctx context.Context, msg *Message) error {
	if msg.PlanID != "" {
		r.planIDs = append(r.planIDs, msg.PlanID)
	}

	if r.store != nil {
		err := r.store.AppendTranscript(ctx, history.TranscriptEntry{
			Timestamp: time.Now(),
			AgentID:   r.agentID,
			SessionID: r.sessionID,
			Role:      history.RoleAgent,
			Text:      msg.Text,
			Response:  msg.Raw,
		})
		if err != nil {
			return err
		}

		r.fetchTrace(ctx, msg.PlanID)
	}

	r.emit("agent_message", msg.Text, msg.PlanID)
	return nil
}

// fetchTrace pulls and persists the plan trace. Trace loss is
// non-fatal to the conversation; failures are logged and dropped.
func (r *recorder) fetchTrace(ctx context.Context, planID string) {
	if planID == "" || r.client == nil || r.tracePath == nil {
		return
	}

	trace, err := r.client.Get(ctx, r.tracePath(r.sessionID, planID))
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("plan_id", planID).
			Msg("Failed to fetch plan trace, continuing")
		return
	}

	if err := r.store.WriteTrace(ctx, r.agentID, r.sessionID, planID, trace); err != nil {
		r.logger.Warn().
			Err(err).
			Str("plan_id", planID).
			Msg("Failed to persist plan trace, continuing")
	}
}

func (r *recorder) finish(ctx context.Context, reason EndReason) error {
	r.emit("session_ended", string(reason), "")

	if r.store == nil {
		return nil
	}

	if err := r.store.AppendTranscript(ctx, history.TranscriptEntry{
		Timestamp: time.Now(),
		AgentID:   r.agentID,
		SessionID: r.sessionID,
		Role:      history.RoleAgent,
		EndReason: string(reason),
	}); err != nil {
		return err
	}

	if err := r.store.FinalizeMetadata(ctx, r.agentID, r.sessionID, time.Now(), r.planIDs); err != nil {
		return err
	}

	observability.RecordSessionAudit(ctx, "end", r.sessionID, "success", map[string]interface{}{
		"agent_id": r.agentID,
		"reason":   string(reason),
	})

	return nil
}

func (r *recorder) emit(event, text, planID string) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(Event{
		Event:     event,
		AgentID:   r.agentID,
		SessionID: r.sessionID,
		Text:      text,
		PlanID:    planID,
	})
}
