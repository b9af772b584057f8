package agenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/internal/tracing"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const runsPath = "/einstein/ai-evaluations/runs"

// Terminal run statuses. Anything else means the run is still going.
const (
	StatusNew        = "NEW"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusError      = "ERROR"
	StatusTerminated = "TERMINATED"
)

func isTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusError, StatusTerminated:
		return true
	}
	return false
}

// Tester drives evaluation runs against the remote platform.
type Tester struct {
	client       *apiclient.Client
	logger       zerolog.Logger
	pollInterval time.Duration
}

// TesterConfig wires a Tester. PollInterval defaults to 2s.
type TesterConfig struct {
	Client       *apiclient.Client
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

// NewTester creates a Tester.
func NewTester(cfg TesterConfig) *Tester {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 2 * time.Second
	}

	return &Tester{
		client:       cfg.Client,
		logger:       logger.With().Str("component", "tester").Logger(),
		pollInterval: interval,
	}
}

// Start launches a run for a named evaluation definition already
// deployed to the org. Returns the run ID.
func (t *Tester) Start(ctx context.Context, definitionName string) (string, error) {
	payload := map[string]string{"aiEvaluationDefinitionName": definitionName}
	return t.startRun(ctx, payload, definitionName)
}

// StartFromSpec launches a run directly from a local test spec.
func (t *Tester) StartFromSpec(ctx context.Context, spec *TestSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	cases := make([]map[string]interface{}, 0, len(spec.TestCases))
	for _, tc := range spec.TestCases {
		cases = append(cases, map[string]interface{}{
			"utterance":       tc.Utterance,
			"expectedTopic":   tc.ExpectedTopic,
			"expectedActions": tc.ExpectedActions,
			"expectedOutcome": tc.ExpectedOutcome,
		})
	}

	payload := map[string]interface{}{
		"subjectType": spec.SubjectType,
		"subjectName": spec.SubjectName,
		"testCases":   cases,
	}

	return t.startRun(ctx, payload, spec.SubjectName)
}

func (t *Tester) startRun(ctx context.Context, payload interface{}, subject string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.agenttest",
		"agenttest.start",
		attribute.String("subject", subject),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, t.logger)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run request: %w", err)
	}

	resp, err := t.client.Post(ctx, runsPath, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to start evaluation run: %w", err)
	}

	runID := gjson.GetBytes(resp, "runId").String()
	if runID == "" {
		err := fmt.Errorf("evaluation run response carried no run id")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	observability.RecordEvalAudit(ctx, "start", runID, "success", map[string]interface{}{
		"subject": subject,
	})
	logger.Info().Str("run_id", runID).Str("subject", subject).Msg("Evaluation run started")

	return runID, nil
}

// Status fetches the run's current status once.
func (t *Tester) Status(ctx context.Context, runID string) (string, error) {
	resp, err := t.client.Get(ctx, fmt.Sprintf("%s/%s", runsPath, runID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch run status: %w", err)
	}
	return gjson.GetBytes(resp, "status").String(), nil
}

// Poll waits until the run reaches a terminal status or ctx is done,
// checking at the configured interval. Returns the final status.
func (t *Tester) Poll(ctx context.Context, runID string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.agenttest",
		"agenttest.poll",
		attribute.String("run_id", runID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, t.logger)
	start := time.Now()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		status, err := t.Status(ctx, runID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		if isTerminal(status) {
			observability.RecordEvalRun(status, time.Since(start))
			span.SetAttributes(attribute.String("status", status))
			logger.Info().
				Str("run_id", runID).
				Str("status", status).
				Dur("elapsed", time.Since(start)).
				Msg("Evaluation run finished")
			return status, nil
		}

		logger.Debug().Str("run_id", runID).Str("status", status).Msg("Evaluation run pending")

		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, ctx.Err().Error())
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Results fetches the full results document for a finished run.
func (t *Tester) Results(ctx context.Context, runID string) (*TestResults, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.agenttest",
		"agenttest.results",
		attribute.String("run_id", runID),
	)
	defer span.End()

	resp, err := t.client.Get(ctx, fmt.Sprintf("%s/%s/results", runsPath, runID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch run results: %w", err)
	}

	var results TestResults
	if err := json.Unmarshal(resp, &results); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse run results: %w", err)
	}

	return &results, nil
}

// Run is the full lifecycle: start from a spec, poll to completion,
// fetch results.
func (t *Tester) Run(ctx context.Context, spec *TestSpec) (*TestResults, error) {
	runID, err := t.StartFromSpec(ctx, spec)
	if err != nil {
		return nil, err
	}

	status, err := t.Poll(ctx, runID)
	if err != nil {
		return nil, err
	}
	if status != StatusCompleted {
		return nil, fmt.Errorf("evaluation run %s ended with status %s", runID, status)
	}

	return t.Results(ctx, runID)
}

// Cancel terminates an in-progress run.
func (t *Tester) Cancel(ctx context.Context, runID string) error {
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.agenttest",
		"agenttest.cancel",
		attribute.String("run_id", runID),
	)
	defer span.End()

	_, err := t.client.Delete(ctx, fmt.Sprintf("%s/%s", runsPath, runID), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to cancel evaluation run: %w", err)
	}

	observability.RecordEvalAudit(ctx, "cancel", runID, "success", nil)
	t.logger.Info().Str("run_id", runID).Msg("Evaluation run cancelled")

	return nil
}
