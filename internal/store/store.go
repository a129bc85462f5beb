// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/eroshenko/chatdesk/internal/domain"
)

// Repository defines the interface for persisting chat data.
type Repository interface {
	// GetSessionByKey retrieves a session by its opaque key.
	// Returns (nil, nil) when no session exists for the key.
	GetSessionByKey(ctx context.Context, key string) (*domain.Session, error)

	// CreateSession inserts a new session row and fills in its ID.
	// Fails if the session key is already taken.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetOrCreateSession resolves a session by key, creating an ACTIVE one
	// when the key is unseen. Concurrent first messages for the same key
	// are serialized by the unique key constraint: exactly one row wins and
	// all callers observe it.
	GetOrCreateSession(ctx context.Context, key, platform string) (*domain.Session, error)

	// EndSession sets the ended timestamp and flips the session to ENDED.
	// Idempotent: ending an already-ended session is a no-op.
	EndSession(ctx context.Context, key string) error

	// EndIdleSessions ends ACTIVE sessions with no conversation activity
	// since the threshold and returns the IDs of the sessions ended.
	EndIdleSessions(ctx context.Context, idleFor time.Duration) ([]int64, error)

	// AppendMessage appends a conversation turn and fills in its ID.
	// Turns are append-only and never updated.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns the most recent turns for a session in
	// chronological order, up to limit (0 means no limit).
	ListMessages(ctx context.Context, sessionID int64, limit int) ([]*domain.Message, error)

	// AssignedEscalation returns the session's escalation with status
	// assigned, or (nil, nil) when there is none.
	AssignedEscalation(ctx context.Context, sessionID int64) (*domain.Escalation, error)

	// CreateEscalation inserts an escalation row, including any assignment
	// decided by the caller, as a single atomic write, and fills in its ID.
	CreateEscalation(ctx context.Context, esc *domain.Escalation) error

	// CountAssignedEscalations returns the agent's current load: the number
	// of escalations assigned to them and not yet resolved.
	CountAssignedEscalations(ctx context.Context, agentID int64) (int, error)

	// ResolveEscalation transitions an assigned escalation to resolved.
	ResolveEscalation(ctx context.Context, id int64, notes string) error

	// CreateFeedback appends a feedback row and fills in its ID.
	CreateFeedback(ctx context.Context, fb *domain.Feedback) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
