package history

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/forcekit/agents/internal/tracing"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Retention deletes ended sessions past a maximum age on a cron
// schedule. Sessions without an end time are never swept; an
// interrupted preview keeps its partial history.
type Retention struct {
	store    *Store
	schedule string
	maxAge   time.Duration
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewRetention creates a sweeper. schedule is standard cron syntax,
// e.g. "0 3 * * *" for 3 AM daily.
func NewRetention(store *Store, schedule string, maxAge time.Duration) *Retention {
	return &Retention{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   store.logger,
	}
}

// Start schedules the sweep. No-op when maxAge is zero.
func (r *Retention) Start() error {
	if r.maxAge <= 0 {
		r.logger.Debug().Msg("History retention disabled")
		return nil
	}

	r.cron = cron.New()
	id, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.SweepNow(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("History retention sweep failed")
		}
	})
	if err != nil {
		return err
	}

	r.entryID = id
	r.cron.Start()

	r.logger.Info().
		Str("schedule", r.schedule).
		Dur("max_age", r.maxAge).
		Msg("History retention started")

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron = nil
}

// SweepNow runs one sweep immediately and reports how many sessions
// were removed.
func (r *Retention) SweepNow(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "agents.history", "history.retention_sweep")
	defer span.End()

	cutoff := time.Now().Add(-r.maxAge)
	removed := 0

	agents, err := r.store.ListAgents()
	if err != nil {
		return 0, err
	}

	for _, agentID := range agents {
		sessions, err := r.store.ListSessions(agentID)
		if err != nil {
			r.logger.Warn().Err(err).Str("agent_id", agentID).Msg("Failed to list sessions during sweep")
			continue
		}

		for _, sessionID := range sessions {
			meta, err := r.store.readMetadata(agentID, sessionID)
			if err != nil {
				// Unreadable metadata: fall back to directory age so
				// orphaned session dirs do not accumulate forever.
				if r.dirOlderThan(agentID, sessionID, cutoff) {
					removed += r.remove(agentID, sessionID)
				}
				continue
			}

			if meta.EndTime == nil || meta.EndTime.After(cutoff) {
				continue
			}

			removed += r.remove(agentID, sessionID)
		}
	}

	span.SetAttributes(attribute.Int("sessions_removed", removed))
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("History retention sweep completed")
	}

	return removed, nil
}

func (r *Retention) dirOlderThan(agentID, sessionID string, cutoff time.Time) bool {
	info, err := os.Stat(r.store.SessionDir(agentID, sessionID))
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

func (r *Retention) remove(agentID, sessionID string) int {
	dir := r.store.SessionDir(agentID, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove expired session")
		return 0
	}

	// Drop the empty sessions/ and agent dirs when nothing remains.
	sessionsParent := filepath.Dir(dir)
	if entries, err := os.ReadDir(sessionsParent); err == nil && len(entries) == 0 {
		os.Remove(sessionsParent)
		os.Remove(filepath.Dir(sessionsParent))
	}

	r.logger.Debug().
		Str("agent_id", agentID).
		Str("session_id", sessionID).
		Msg("Expired session removed")

	return 1
}
