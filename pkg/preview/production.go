package preview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forcekit/agents/internal/tracing"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/forcekit/agents/pkg/history"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const productionBase = "/einstein/ai-agent/v1"

// Config wires a preview's collaborators. Store and Broadcaster are
// optional; a nil Store runs the session without local recording.
type Config struct {
	Client      *apiclient.Client
	Store       *history.Store
	Broadcaster *Broadcaster
	Logger      *zerolog.Logger
}

// ProductionPreview converses with an already-published agent over
// the v1 session surface.
type ProductionPreview struct {
	client *apiclient.Client
	logger zerolog.Logger
	botID  string
	rec    *recorder
	seq    int
}

// NewProductionPreview creates a preview for the published agent
// identified by botID.
func NewProductionPreview(cfg Config, botID string) *ProductionPreview {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "production-preview").Logger()

	return &ProductionPreview{
		client: cfg.Client,
		logger: logger,
		botID:  botID,
		rec: &recorder{
			store:       cfg.Store,
			broadcaster: cfg.Broadcaster,
			client:      cfg.Client,
			logger:      logger,
			agentID:     botID,
			tracePath: func(sessionID, planID string) string {
				return fmt.Sprintf("%s/sessions/%s/plans/%s", productionBase, sessionID, planID)
			},
		},
	}
}

// SessionID returns the active session ID, empty before Start.
func (p *ProductionPreview) SessionID() string {
	return p.rec.sessionID
}

// Start opens a remote session and initializes its local history.
func (p *ProductionPreview) Start(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.start",
		attribute.String("agent_id", p.botID),
	)
	defer span.End()

	payload := map[string]interface{}{
		"externalSessionKey": uuid.NewString(),
		"agentId":            p.botID,
		"streamingCapabilities": map[string]interface{}{
			"chunkTypes": []string{"Text"},
		},
		"bypassUser": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	resp, err := p.client.Post(ctx, productionBase+"/sessions", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	sessionID := gjson.GetBytes(resp, "sessionId").String()
	if sessionID == "" {
		span.RecordError(apiclient.ErrNoSessionID)
		span.SetStatus(codes.Error, apiclient.ErrNoSessionID.Error())
		return "", apiclient.ErrNoSessionID
	}

	if err := p.rec.begin(ctx, sessionID); err != nil {
		return "", fmt.Errorf("failed to initialize session history: %w", err)
	}

	p.logger.Info().
		Str("session_id", sessionID).
		Str("agent_id", p.botID).
		Msg("Preview session started")

	return sessionID, nil
}

// Send delivers one user utterance and records both sides of the turn.
func (p *ProductionPreview) Send(ctx context.Context, text string) (*Message, error) {
	if p.rec.sessionID == "" {
		return nil, apiclient.ErrNoSessionID
	}

	ctx = tracing.NewSessionContext(ctx, p.botID, p.rec.sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.send",
		attribute.String("session_id", p.rec.sessionID),
	)
	defer span.End()

	if err := p.rec.recordUser(ctx, text); err != nil {
		return nil, err
	}

	p.seq++
	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"sequenceId": p.seq,
			"type":       "Text",
			"text":       text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := p.client.Post(ctx, fmt.Sprintf("%s/sessions/%s/messages", productionBase, p.rec.sessionID), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	msg := parseAgentMessage(resp)

	if err := p.rec.recordAgent(ctx, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// End closes the remote session and finalizes the recorded history.
func (p *ProductionPreview) End(ctx context.Context, reason EndReason) error {
	if p.rec.sessionID == "" {
		return apiclient.ErrNoSessionID
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.end",
		attribute.String("session_id", p.rec.sessionID),
		attribute.String("reason", string(reason)),
	)
	defer span.End()

	_, err := p.client.Delete(ctx, fmt.Sprintf("%s/sessions/%s", productionBase, p.rec.sessionID), map[string]string{
		"x-session-end-reason": string(reason),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to end session: %w", err)
	}

	if err := p.rec.finish(ctx, reason); err != nil {
		return err
	}

	p.logger.Info().
		Str("session_id", p.rec.sessionID).
		Str("reason", string(reason)).
		Msg("Preview session ended")

	return nil
}

// parseAgentMessage extracts the reply text and plan ID from the
// opaque messages payload, keeping the raw body alongside.
func parseAgentMessage(resp []byte) *Message {
	first := gjson.GetBytes(resp, "messages.0")
	text := first.Get("message").String()
	if text == "" {
		text = first.Get("text").String()
	}
	return &Message{
		Text:   text,
		PlanID: first.Get("planId").String(),
		Raw:    json.RawMessage(resp),
	}
}
