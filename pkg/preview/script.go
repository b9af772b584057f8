package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/forcekit/agents/internal/tracing"
	"github.com/forcekit/agents/pkg/agent"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const authoringBase = "/einstein/ai-agent/v1.1/authoring"

// ScriptPreview converses with a script-defined agent bundle over the
// v1.1 authoring surface. The bundle compiles before every Start, so
// source edits between sessions take effect without a publish.
type ScriptPreview struct {
	client    *apiclient.Client
	authoring *agent.Authoring
	bundle    *agent.Bundle
	logger    zerolog.Logger
	rec       *recorder
	seq       int

	// compileMu guards compilationID and bundle source against the
	// watcher recompiling while a session call reads them.
	compileMu     sync.Mutex
	compilationID string
}

// NewScriptPreview creates a preview over a local bundle.
func NewScriptPreview(cfg Config, bundle *agent.Bundle) *ScriptPreview {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "script-preview").Logger()

	return &ScriptPreview{
		client:    cfg.Client,
		authoring: agent.NewAuthoring(cfg.Client, &logger),
		bundle:    bundle,
		logger:    logger,
		rec: &recorder{
			store:       cfg.Store,
			broadcaster: cfg.Broadcaster,
			client:      cfg.Client,
			logger:      logger,
			agentID:     bundle.Name,
			tracePath: func(sessionID, planID string) string {
				return fmt.Sprintf("%s/sessions/%s/plans/%s", authoringBase, sessionID, planID)
			},
		},
	}
}

// SessionID returns the active session ID, empty before Start.
func (p *ScriptPreview) SessionID() string {
	return p.rec.sessionID
}

// Start compiles the bundle, then opens an authoring session against
// the compiled artifact.
func (p *ScriptPreview) Start(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.script_start",
		attribute.String("bundle", p.bundle.Name),
	)
	defer span.End()

	p.compileMu.Lock()
	compiled, err := p.authoring.Compile(ctx, p.bundle)
	if err != nil {
		p.compileMu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	p.compilationID = compiled.CompilationID
	compilationID := p.compilationID
	p.compileMu.Unlock()

	payload := map[string]interface{}{
		"externalSessionKey": uuid.NewString(),
		"compilationId":      compilationID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	resp, err := p.client.Post(ctx, authoringBase+"/sessions", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to start authoring session: %w", err)
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
		Str("bundle", p.bundle.Name).
		Str("compilation_id", p.compilationID).
		Msg("Script preview session started")

	return sessionID, nil
}

// Send delivers one user utterance and records both sides of the turn.
func (p *ScriptPreview) Send(ctx context.Context, text string) (*Message, error) {
	if p.rec.sessionID == "" {
		return nil, apiclient.ErrNoSessionID
	}

	ctx = tracing.NewSessionContext(ctx, p.bundle.Name, p.rec.sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.script_send",
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

	resp, err := p.client.Post(ctx, fmt.Sprintf("%s/sessions/%s/messages", authoringBase, p.rec.sessionID), body)
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

// End closes the authoring session and finalizes recorded history.
func (p *ScriptPreview) End(ctx context.Context, reason EndReason) error {
	if p.rec.sessionID == "" {
		return apiclient.ErrNoSessionID
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"agents.preview",
		"preview.script_end",
		attribute.String("session_id", p.rec.sessionID),
		attribute.String("reason", string(reason)),
	)
	defer span.End()

	_, err := p.client.Delete(ctx, fmt.Sprintf("%s/sessions/%s", authoringBase, p.rec.sessionID), map[string]string{
		"x-session-end-reason": string(reason),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to end authoring session: %w", err)
	}

	if err := p.rec.finish(ctx, reason); err != nil {
		return err
	}

	p.logger.Info().
		Str("session_id", p.rec.sessionID).
		Str("reason", string(reason)).
		Msg("Script preview session ended")

	return nil
}

// Recompile recompiles the bundle from its current on-disk source.
// The watcher calls this when the source changes.
func (p *ScriptPreview) Recompile(ctx context.Context) error {
	p.compileMu.Lock()
	defer p.compileMu.Unlock()

	if err := p.bundle.Reload(); err != nil {
		return err
	}

	compiled, err := p.authoring.Compile(ctx, p.bundle)
	if err != nil {
		return err
	}

	p.compilationID = compiled.CompilationID
	p.logger.Info().
		Str("bundle", p.bundle.Name).
		Str("compilation_id", p.compilationID).
		Msg("Bundle recompiled")

	return nil
}

// CompilationID reports the most recent compile's artifact ID.
func (p *ScriptPreview) CompilationID() string {
	p.compileMu.Lock()
	defer p.compileMu.Unlock()
	return p.compilationID
}
