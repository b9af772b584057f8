package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	stateDirName   = ".sfdx"
	agentsDirName  = "agents"
	sessionsDir    = "sessions"
	transcriptFile = "transcript.jsonl"
	metadataFile   = "metadata.json"
	tracesDirName  = "traces"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TranscriptEntry is one conversation turn. Entries are appended in
// chronological order; append order is the only ordering guarantee.
type TranscriptEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agentId"`
	SessionID string          `json:"sessionId"`
	Role      Role            `json:"role"`
	Text      string          `json:"text,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	EndReason string          `json:"endReason,omitempty"`
}

// Metadata summarizes one session. It is written at session start and
// overwritten once at finalize; EndTime stays nil for sessions the
// caller never ended.
type Metadata struct {
	AgentID   string     `json:"agentId"`
	SessionID string     `json:"sessionId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	PlanIDs   []string   `json:"planIds"`
	Debug     bool       `json:"debug,omitempty"`
}

// Trace is a per-plan document fetched from the platform and persisted
// verbatim.
type Trace struct {
	PlanID   string          `json:"planId"`
	Document json.RawMessage `json:"document"`
}

// History is a full session read back from disk.
type History struct {
	Metadata   Metadata          `json:"metadata"`
	Transcript []TranscriptEntry `json:"transcript"`
	Traces     []Trace           `json:"traces"`
}

// Store manages session persistence under <projectDir>/.sfdx/agents/.
type Store struct {
	projectDir string
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// New creates a Store rooted at projectDir.
func New(projectDir string, logger *zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		projectDir = wd
	}

	l := log.Logger
	if logger != nil {
		l = *logger
	}

	s := &Store{
		projectDir: projectDir,
		logger:     l,
		writeLocks: make(map[string]*sync.Mutex),
	}

	l.Info().Str("dir", s.agentsRoot()).Msg("History store initialized")

	return s, nil
}

func (s *Store) agentsRoot() string {
	return filepath.Join(s.projectDir, stateDirName, agentsDirName)
}

// SessionDir returns the deterministic directory for one session.
func (s *Store) SessionDir(agentID, sessionID string) string {
	return filepath.Join(s.agentsRoot(), agentID, sessionsDir, sessionID)
}

// validateID guards IDs that become path components.
func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%s cannot contain '..'", kind)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%s cannot contain path separators", kind)
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("%s cannot contain null bytes", kind)
	}
	return nil
}

func validateSessionIDs(agentID, sessionID string) error {
	if err := validateID("agent id", agentID); err != nil {
		return err
	}
	return validateID("session id", sessionID)
}

func (s *Store) getWriteLock(agentID, sessionID string) *sync.Mutex {
	key := agentID + "/" + sessionID

	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[key] = lock
	return lock
}

// CreateSessionDir creates the session directory tree. Idempotent.
func (s *Store) CreateSessionDir(ctx context.Context, agentID, sessionID string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewSessionContext(ctx, agentID, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.create_session_dir",
		attribute.String("agent_id", agentID),
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateSessionIDs(agentID, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	dir := s.SessionDir(agentID, sessionID)
	if err := os.MkdirAll(filepath.Join(dir, tracesDirName), 0700); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	s.updateActiveSessionsMetric(agentID)
	logger.Info().Str("dir", dir).Msg("Session directory created")

	return dir, nil
}

func (s *Store) updateActiveSessionsMetric(agentID string) {
	sessions, err := s.ListSessions(agentID)
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(sessions))
}

// AppendTranscript appends one entry as a line of newline-delimited
// JSON. Prior lines are never rewritten.
func (s *Store) AppendTranscript(ctx context.Context, entry TranscriptEntry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewSessionContext(ctx, entry.AgentID, entry.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.append_transcript",
		attribute.String("session_id", entry.SessionID),
		attribute.String("role", string(entry.Role)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordTranscriptAppend(time.Since(start))
	}()

	if err := validateSessionIDs(entry.AgentID, entry.SessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if entry.Role != RoleUser && entry.Role != RoleAgent {
		return fmt.Errorf("invalid transcript role %q", entry.Role)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	lock := s.getWriteLock(entry.AgentID, entry.SessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.SessionDir(entry.AgentID, entry.SessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := s.CreateSessionDir(ctx, entry.AgentID, entry.SessionID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	file, err := os.OpenFile(filepath.Join(dir, transcriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal transcript entry: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write transcript entry: %w", err)
	}

	if err := file.Sync(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to sync transcript: %w", err)
	}

	logger.Debug().Str("role", string(entry.Role)).Msg("Transcript entry appended")

	return nil
}

// WriteTrace persists a plan trace verbatim. A trace is written once;
// a second write for the same plan ID is a no-op.
func (s *Store) WriteTrace(ctx context.Context, agentID, sessionID, planID string, document []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.write_trace",
		attribute.String("session_id", sessionID),
		attribute.String("plan_id", planID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateSessionIDs(agentID, sessionID); err != nil {
		observability.RecordTraceWrite(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := validateID("plan id", planID); err != nil {
		observability.RecordTraceWrite(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tracesDir := filepath.Join(s.SessionDir(agentID, sessionID), tracesDirName)
	if err := os.MkdirAll(tracesDir, 0700); err != nil {
		observability.RecordTraceWrite(false)
		return fmt.Errorf("failed to create traces directory: %w", err)
	}

	path := filepath.Join(tracesDir, planID+".json")
	if _, err := os.Stat(path); err == nil {
		logger.Debug().Str("plan_id", planID).Msg("Trace already written")
		return nil
	}

	if err := os.WriteFile(path, document, 0600); err != nil {
		observability.RecordTraceWrite(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write trace: %w", err)
	}

	observability.RecordTraceWrite(true)
	logger.Debug().Str("plan_id", planID).Msg("Trace written")

	return nil
}

// WriteMetadata writes metadata.json, overwriting any prior version.
// Plan IDs are deduplicated, first occurrence wins.
func (s *Store) WriteMetadata(ctx context.Context, meta Metadata) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.write_metadata",
		attribute.String("session_id", meta.SessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateSessionIDs(meta.AgentID, meta.SessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	meta.PlanIDs = dedupePlanIDs(meta.PlanIDs)

	dir := s.SessionDir(meta.AgentID, meta.SessionID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0600); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	logger.Debug().Int("plan_ids", len(meta.PlanIDs)).Msg("Metadata written")

	return nil
}

// FinalizeMetadata stamps the end time and merges the final plan ID
// set into the existing metadata document.
func (s *Store) FinalizeMetadata(ctx context.Context, agentID, sessionID string, endTime time.Time, planIDs []string) error {
	meta, err := s.readMetadata(agentID, sessionID)
	if err != nil {
		return err
	}

	meta.EndTime = &endTime
	meta.PlanIDs = dedupePlanIDs(append(meta.PlanIDs, planIDs...))

	return s.WriteMetadata(ctx, *meta)
}

func (s *Store) readMetadata(agentID, sessionID string) (*Metadata, error) {
	if err := validateSessionIDs(agentID, sessionID); err != nil {
		return nil, err
	}

	path := filepath.Join(s.SessionDir(agentID, sessionID), metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

// ReadAll reconstructs one session from its on-disk artifacts.
func (s *Store) ReadAll(ctx context.Context, agentID, sessionID string) (*History, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.read_all",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		observability.RecordHistoryLoad(time.Since(start))
	}()

	meta, err := s.readMetadata(agentID, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	transcript, err := s.readTranscript(agentID, sessionID, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	traces, err := s.readTraces(agentID, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Debug().
		Int("entries", len(transcript)).
		Int("traces", len(traces)).
		Msg("Session history loaded")

	return &History{
		Metadata:   *meta,
		Transcript: transcript,
		Traces:     traces,
	}, nil
}

// ReadAgentHistory reads every session recorded for an agent.
func (s *Store) ReadAgentHistory(ctx context.Context, agentID string) ([]*History, error) {
	sessions, err := s.ListSessions(agentID)
	if err != nil {
		return nil, err
	}

	var histories []*History
	for _, sessionID := range sessions {
		h, err := s.ReadAll(ctx, agentID, sessionID)
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}

	return histories, nil
}

func (s *Store) readTranscript(agentID, sessionID string, logger zerolog.Logger) ([]TranscriptEntry, error) {
	path := filepath.Join(s.SessionDir(agentID, sessionID), transcriptFile)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []TranscriptEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var entries []TranscriptEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if line == "" {
			continue
		}

		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn().
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse transcript line, skipping")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return entries, nil
}

func (s *Store) readTraces(agentID, sessionID string) ([]Trace, error) {
	dir := filepath.Join(s.SessionDir(agentID, sessionID), tracesDirName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Trace{}, nil
		}
		return nil, fmt.Errorf("failed to read traces directory: %w", err)
	}

	var traces []Trace
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read trace %s: %w", name, err)
		}

		traces = append(traces, Trace{
			PlanID:   strings.TrimSuffix(name, ".json"),
			Document: data,
		})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].PlanID < traces[j].PlanID
	})

	return traces, nil
}

// ListSessions lists session IDs recorded for an agent.
func (s *Store) ListSessions(agentID string) ([]string, error) {
	if err := validateID("agent id", agentID); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.agentsRoot(), agentID, sessionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			sessions = append(sessions, entry.Name())
		}
	}

	return sessions, nil
}

// ListAgents lists agent IDs with recorded history.
func (s *Store) ListAgents() ([]string, error) {
	entries, err := os.ReadDir(s.agentsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	var agents []string
	for _, entry := range entries {
		if entry.IsDir() {
			agents = append(agents, entry.Name())
		}
	}

	return agents, nil
}

// dedupePlanIDs removes duplicates, first occurrence wins.
func dedupePlanIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
