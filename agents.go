// Package agents is the top-level entry point: it loads configuration,
// installs logging and tracing, and hands out the SDK's services
// (API client, history store, authoring, previews, tester) wired to
// one another.
package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/forcekit/agents/internal/config"
	"github.com/forcekit/agents/internal/logger"
	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/internal/tracing"
	"github.com/forcekit/agents/pkg/agent"
	"github.com/forcekit/agents/pkg/agenttest"
	"github.com/forcekit/agents/pkg/apiclient"
	"github.com/forcekit/agents/pkg/history"
	"github.com/forcekit/agents/pkg/preview"
	"github.com/rs/zerolog"
)

// Options tunes SDK construction. Zero values fall back to the loaded
// configuration.
type Options struct {
	// ConfigPath overrides the default ~/.agents/agents.json location.
	ConfigPath string

	// Connection authorizes live API requests. Required unless the
	// configuration enables mock dispatch.
	Connection apiclient.Connection

	// Console enables pretty console logging alongside the log file.
	Console bool

	// Tracing installs the OpenTelemetry provider when true.
	Tracing bool
}

// SDK bundles the module's services behind one configuration.
type SDK struct {
	Config    *config.Config
	Client    *apiclient.Client
	History   *history.Store
	Authoring *agent.Authoring
	Retention *history.Retention

	logger *logger.Logger
	zl     zerolog.Logger
}

// New loads configuration, installs the logger, and constructs the
// SDK's services.
func New(opts Options) (*SDK, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   opts.Console,
		Pretty:    opts.Console,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := lg.GetZerolog()

	if opts.Tracing {
		if err := tracing.InitOpenTelemetry("agents-sdk"); err != nil {
			lg.Close()
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.jsonl")); err != nil {
		zl.Warn().Err(err).Msg("Audit log unavailable, falling back to stderr")
	}

	client, err := apiclient.New(apiclient.Config{
		Host:       cfg.API.Host(),
		Connection: opts.Connection,
		MockDir:    cfg.MockDir,
		RetryCount: cfg.API.RetryCount,
		Timeout:    time.Duration(cfg.API.Timeout) * time.Second,
		Logger:     &zl,
	})
	if err != nil {
		lg.Close()
		return nil, err
	}

	store, err := history.New(cfg.ProjectDir, &zl)
	if err != nil {
		lg.Close()
		return nil, err
	}

	sdk := &SDK{
		Config:    cfg,
		Client:    client,
		History:   store,
		Authoring: agent.NewAuthoring(client, &zl),
		logger:    lg,
		zl:        zl,
	}

	if cfg.Retention.Enabled {
		sdk.Retention = history.NewRetention(
			store,
			cfg.Retention.Schedule,
			time.Duration(cfg.Retention.MaxAge)*24*time.Hour,
		)
		if err := sdk.Retention.Start(); err != nil {
			lg.Close()
			return nil, fmt.Errorf("failed to start history retention: %w", err)
		}
	}

	return sdk, nil
}

// Tester creates an evaluation tester using the configured poll
// interval.
func (s *SDK) Tester() *agenttest.Tester {
	return agenttest.NewTester(agenttest.TesterConfig{
		Client:       s.Client,
		PollInterval: time.Duration(s.Config.Test.PollInterval) * time.Second,
		Logger:       &s.zl,
	})
}

// PollContext derives a context bounded by the configured poll
// timeout, for use around Tester.Poll.
func (s *SDK) PollContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.Config.Test.PollTimeout)*time.Second)
}

// ProductionPreview creates a preview session against a published
// agent, recording to the SDK's history store.
func (s *SDK) ProductionPreview(botID string, broadcaster *preview.Broadcaster) *preview.ProductionPreview {
	return preview.NewProductionPreview(preview.Config{
		Client:      s.Client,
		Store:       s.History,
		Broadcaster: broadcaster,
		Logger:      &s.zl,
	}, botID)
}

// ScriptPreview creates a preview session over a local bundle,
// recording to the SDK's history store.
func (s *SDK) ScriptPreview(bundle *agent.Bundle, broadcaster *preview.Broadcaster) *preview.ScriptPreview {
	return preview.NewScriptPreview(preview.Config{
		Client:      s.Client,
		Store:       s.History,
		Broadcaster: broadcaster,
		Logger:      &s.zl,
	}, bundle)
}

// Close stops background work and releases the log file.
func (s *SDK) Close() error {
	if s.Retention != nil {
		s.Retention.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		s.zl.Warn().Err(err).Msg("Tracing shutdown failed")
	}

	return s.logger.Close()
}
