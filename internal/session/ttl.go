// Package session provides background maintenance for chat sessions.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/eroshenko/chatdesk/internal/convctx"
	"github.com/eroshenko/chatdesk/internal/store"
)

const sweepInterval = 5 * time.Minute

// StartIdleSweeper runs a background goroutine that periodically ends
// ACTIVE sessions with no conversation activity inside the idle TTL.
// Session rows are never deleted; ending a session also clears its
// ephemeral context blob.
func StartIdleSweeper(ctx context.Context, repo store.Repository, contexts *convctx.Store, idleTTL time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle session sweeper started", "interval", sweepInterval, "idle_ttl", idleTTL)

		for {
			select {
			case <-ticker.C:
				sweepIdleSessions(ctx, repo, contexts, idleTTL)
			case <-ctx.Done():
				slog.Info("Idle session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepIdleSessions(ctx context.Context, repo store.Repository, contexts *convctx.Store, idleTTL time.Duration) {
	ended, err := repo.EndIdleSessions(ctx, idleTTL)
	if err != nil {
		slog.Error("Idle sweep failed", "error", err)
		return
	}
	if len(ended) == 0 {
		return
	}

	for _, id := range ended {
		if err := contexts.Clear(ctx, id); err != nil {
			slog.Warn("Failed to clear context for ended session", "session_id", id, "error", err)
		}
	}
	slog.Info("Idle sessions ended", "count", len(ended))
}
