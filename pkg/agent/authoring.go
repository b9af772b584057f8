package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/internal/tracing"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	draftTopicsPath = "/connect/ai-assist/draft-agent-topics"
	createAgentPath = "/connect/ai-assist/create-agent"
	compilePath     = "/einstein/ai-agent/v1.1/authoring/compile"
	publishPath     = "/einstein/ai-agent/v1.1/authoring/publish"
)

// Authoring wraps the authoring API surface behind one client.
type Authoring struct {
	client *apiclient.Client
	logger zerolog.Logger
}

// NewAuthoring creates an Authoring service over the given client.
func NewAuthoring(client *apiclient.Client, logger *zerolog.Logger) *Authoring {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Authoring{
		client: client,
		logger: l.With().Str("component", "authoring").Logger(),
	}
}

// CreateSpec generates topic drafts from a role and company
// description and returns them as a Spec ready to save.
func (a *Authoring) CreateSpec(ctx context.Context, req SpecRequest) (*Spec, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.authoring",
		"authoring.create_spec",
		attribute.String("agent_type", string(req.AgentType)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	if req.AgentType != TypeCustomer && req.AgentType != TypeInternal {
		err := fmt.Errorf("invalid agent type %q", req.AgentType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Role == "" || req.CompanyName == "" || req.CompanyDescription == "" {
		err := fmt.Errorf("role, company name and company description are required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spec request: %w", err)
	}

	resp, err := a.client.Post(ctx, draftTopicsPath, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to draft agent topics: %w", err)
	}

	spec := &Spec{
		AgentType:          req.AgentType,
		Role:               req.Role,
		CompanyName:        req.CompanyName,
		CompanyDescription: req.CompanyDescription,
		CompanyWebsite:     req.CompanyWebsite,
	}

	gjson.GetBytes(resp, "topicDrafts").ForEach(func(_, draft gjson.Result) bool {
		spec.Topics = append(spec.Topics, Topic{
			Name:        draft.Get("name").String(),
			Description: draft.Get("description").String(),
		})
		return true
	})

	logger.Info().Int("topics", len(spec.Topics)).Msg("Agent spec generated")

	return spec, nil
}

// Create creates an agent from a validated config. Schema violations
// surface as *ConfigValidationError without any network call.
func (a *Authoring) Create(ctx context.Context, cfg CreateConfig) (*CreateResult, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.authoring",
		"authoring.create",
		attribute.String("agent_name", cfg.AgentSettings.AgentName),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create config: %w", err)
	}

	if err := validateCreateConfig(body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := a.client.Post(ctx, createAgentPath, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	if !gjson.GetBytes(resp, "isSuccess").Bool() {
		var messages []string
		gjson.GetBytes(resp, "errorMessages").ForEach(func(_, msg gjson.Result) bool {
			messages = append(messages, msg.String())
			return true
		})
		err := fmt.Errorf("agent creation rejected: %v", messages)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &CreateResult{
		IsSuccess:    true,
		BotID:        gjson.GetBytes(resp, "agentId.botId").String(),
		BotVersionID: gjson.GetBytes(resp, "agentId.botVersionId").String(),
		Raw:          json.RawMessage(resp),
	}

	observability.RecordAuthoringAudit(ctx, "create", result.BotID, "success", map[string]interface{}{
		"agent_name": cfg.AgentSettings.AgentName,
	})
	logger.Info().
		Str("bot_id", result.BotID).
		Str("agent_name", cfg.AgentSettings.AgentName).
		Msg("Agent created")

	return result, nil
}

// Compile compiles a bundle's source. Platform compile failures are
// concatenated into a *CompileError.
func (a *Authoring) Compile(ctx context.Context, bundle *Bundle) (*CompileResult, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.authoring",
		"authoring.compile",
		attribute.String("bundle", bundle.Name),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	payload := map[string]string{
		"name":   bundle.Name,
		"source": bundle.Source,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compile request: %w", err)
	}

	resp, err := a.client.Post(ctx, compilePath, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to compile agent %s: %w", bundle.Name, err)
	}

	if failures := compileFailures(resp); len(failures) > 0 {
		err := &CompileError{Failures: failures}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &CompileResult{
		CompilationID: gjson.GetBytes(resp, "compilationId").String(),
		Raw:           json.RawMessage(resp),
	}

	logger.Info().
		Str("bundle", bundle.Name).
		Str("compilation_id", result.CompilationID).
		Msg("Agent compiled")

	return result, nil
}

// compileFailures pulls the platform's failure messages out of a
// compile response, whichever of the known shapes it arrives in.
func compileFailures(resp []byte) []string {
	var failures []string
	for _, field := range []string{"failures", "errors", "compilationErrors"} {
		gjson.GetBytes(resp, field).ForEach(func(_, failure gjson.Result) bool {
			if msg := failure.Get("message"); msg.Exists() {
				failures = append(failures, msg.String())
			} else {
				failures = append(failures, failure.String())
			}
			return true
		})
	}
	return failures
}

// Publish publishes a compiled bundle and returns the new version.
func (a *Authoring) Publish(ctx context.Context, bundle *Bundle) (*PublishResult, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.authoring",
		"authoring.publish",
		attribute.String("bundle", bundle.Name),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	payload := map[string]string{
		"name":   bundle.Name,
		"source": bundle.Source,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal publish request: %w", err)
	}

	resp, err := a.client.Post(ctx, publishPath, body)
	if err != nil {
		observability.RecordPublish(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to publish agent %s: %w", bundle.Name, err)
	}

	result := &PublishResult{
		AgentID:   gjson.GetBytes(resp, "agentId").String(),
		VersionID: gjson.GetBytes(resp, "versionId").String(),
		Status:    gjson.GetBytes(resp, "status").String(),
		Raw:       json.RawMessage(resp),
	}

	observability.RecordPublish(true)
	observability.RecordAuthoringAudit(ctx, "publish", result.AgentID, "success", map[string]interface{}{
		"bundle": bundle.Name,
	})
	logger.Info().
		Str("bundle", bundle.Name).
		Str("agent_id", result.AgentID).
		Str("status", result.Status).
		Msg("Agent published")

	return result, nil
}
