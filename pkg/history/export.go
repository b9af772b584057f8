package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forcekit/agents/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CopyTo copies one session's artifacts into outputDir, preserving the
// transcript, metadata and traces layout. The source is left untouched.
func (s *Store) CopyTo(ctx context.Context, agentID, sessionID, outputDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.history",
		"history.copy_to",
		attribute.String("session_id", sessionID),
		attribute.String("output_dir", outputDir),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateSessionIDs(agentID, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	src := s.SessionDir(agentID, sessionID)
	if _, err := os.Stat(src); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("session %s/%s has no recorded history: %w", agentID, sessionID, err)
	}

	if err := copyDir(src, outputDir); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Info().
		Str("src", src).
		Str("dst", outputDir).
		Msg("Session history exported")

	return nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return out.Sync()
}
