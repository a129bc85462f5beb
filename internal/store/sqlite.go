package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eroshenko/chatdesk/internal/domain"
	"github.com/eroshenko/chatdesk/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key TEXT NOT NULL UNIQUE,
		user_id INTEGER,
		platform TEXT NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status) WHERE status = 'ACTIVE';

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		message_text TEXT NOT NULL,
		intent_detected TEXT,
		confidence_score REAL,
		entities TEXT,
		language TEXT NOT NULL DEFAULT 'en',
		is_fallback INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, created_at);

	CREATE TABLE IF NOT EXISTS escalations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		conversation_id INTEGER,
		reason TEXT,
		priority TEXT,
		status TEXT NOT NULL,
		assigned_to INTEGER,
		assigned_at INTEGER,
		resolved_at INTEGER,
		resolution_notes TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_session ON escalations(session_id, status);
	CREATE INDEX IF NOT EXISTS idx_escalations_assigned ON escalations(assigned_to) WHERE status = 'assigned';

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		conversation_id INTEGER,
		rating INTEGER,
		feedback_type TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `id, session_key, user_id, platform, ip_address, user_agent,
	started_at, ended_at, status, metadata`

func scanSession(row *sql.Row) (*domain.Session, error) {
	var sess domain.Session
	var userID sql.NullInt64
	var ipAddress, userAgent, metadata sql.NullString
	var startedAt int64
	var endedAt sql.NullInt64

	err := row.Scan(
		&sess.ID, &sess.SessionKey, &userID, &sess.Platform,
		&ipAddress, &userAgent, &startedAt, &endedAt, &sess.Status, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if userID.Valid {
		sess.UserID = &userID.Int64
	}
	sess.IPAddress = ipAddress.String
	sess.UserAgent = userAgent.String
	sess.Metadata = metadata.String
	sess.StartedAt = time.Unix(startedAt, 0)
	if endedAt.Valid {
		ended := time.Unix(endedAt.Int64, 0)
		sess.EndedAt = &ended
	}
	return &sess, nil
}

// GetSessionByKey retrieves a session by its opaque key.
func (s *SQLiteStore) GetSessionByKey(ctx context.Context, key string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_key = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, key))
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.Status == "" {
		session.Status = domain.SessionActive
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	query := `
	INSERT INTO sessions (session_key, user_id, platform, ip_address, user_agent, started_at, status, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var userID interface{}
	if session.UserID != nil {
		userID = *session.UserID
	}

	result, err := s.db.ExecContext(ctx, query,
		session.SessionKey, userID, session.Platform,
		nullable(session.IPAddress), nullable(session.UserAgent),
		session.StartedAt.Unix(), session.Status, nullable(session.Metadata),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("session insert id: %w", err)
	}
	session.ID = id
	return nil
}

// GetOrCreateSession resolves a session by key, creating it when unseen.
// INSERT OR IGNORE plus re-select makes concurrent first messages for the
// same key converge on a single row.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, key, platform string) (*domain.Session, error) {
	sess, err := s.GetSessionByKey(ctx, key)
	if err != nil || sess != nil {
		return sess, err
	}

	query := `
	INSERT OR IGNORE INTO sessions (session_key, platform, started_at, status)
	VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key, platform, time.Now().Unix(), domain.SessionActive); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	sess, err = s.GetSessionByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %q missing after insert", key)
	}
	return sess, nil
}

// EndSession sets the ended timestamp and flips the session to ENDED.
func (s *SQLiteStore) EndSession(ctx context.Context, key string) error {
	query := `UPDATE sessions SET status = ?, ended_at = ? WHERE session_key = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, domain.SessionEnded, time.Now().Unix(), key, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		slog.Debug("EndSession affected 0 rows", "session_key", key)
	}
	return nil
}

// EndIdleSessions ends ACTIVE sessions with no recent conversation activity.
func (s *SQLiteStore) EndIdleSessions(ctx context.Context, idleFor time.Duration) ([]int64, error) {
	threshold := time.Now().Add(-idleFor).Unix()
	query := `
	SELECT id FROM sessions
	WHERE status = ? AND started_at < ?
	  AND id NOT IN (SELECT session_id FROM conversations WHERE created_at >= ?)`

	rows, err := s.db.QueryContext(ctx, query, domain.SessionActive, threshold, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle session rows", "error", closeErr)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan idle session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			domain.SessionEnded, now, id, domain.SessionActive,
		); err != nil {
			return nil, fmt.Errorf("end idle session %d: %w", id, err)
		}
	}
	return ids, nil
}

// AppendMessage appends a conversation turn.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Language == "" {
		msg.Language = "en"
	}

	var entities interface{}
	if len(msg.Entities) > 0 {
		data, err := json.Marshal(msg.Entities)
		if err != nil {
			return fmt.Errorf("encode message entities: %w", err)
		}
		entities = string(data)
	}

	query := `
	INSERT INTO conversations (session_id, sender, message_text, intent_detected,
		confidence_score, entities, language, is_fallback, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err := shared.RetrySQLite(ctx, 3, 100*time.Millisecond, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			msg.SessionID, msg.Sender, msg.Text, nullable(msg.Intent),
			msg.Confidence, entities, msg.Language, msg.IsFallback, msg.CreatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("message insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListMessages returns a session's turns in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64, limit int) ([]*domain.Message, error) {
	query := `
	SELECT id, session_id, sender, message_text, intent_detected,
	       confidence_score, entities, language, is_fallback, created_at
	FROM conversations WHERE session_id = ? ORDER BY created_at ASC, id ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var intent, entities sql.NullString
		var confidence sql.NullFloat64
		var createdAt int64

		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Sender, &msg.Text, &intent,
			&confidence, &entities, &msg.Language, &msg.IsFallback, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.Intent = intent.String
		msg.Confidence = confidence.Float64
		msg.CreatedAt = time.Unix(createdAt, 0)
		if entities.Valid && entities.String != "" {
			if err := json.Unmarshal([]byte(entities.String), &msg.Entities); err != nil {
				return nil, fmt.Errorf("decode message entities: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// AssignedEscalation returns a session's live assigned escalation, if any.
func (s *SQLiteStore) AssignedEscalation(ctx context.Context, sessionID int64) (*domain.Escalation, error) {
	query := `
	SELECT id, session_id, conversation_id, reason, priority, status,
	       assigned_to, assigned_at, resolved_at, resolution_notes, created_at
	FROM escalations WHERE session_id = ? AND status = ?
	ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, sessionID, domain.EscalationAssigned)
	return scanEscalation(row)
}

func scanEscalation(row *sql.Row) (*domain.Escalation, error) {
	var esc domain.Escalation
	var conversationID, assignedTo, assignedAt, resolvedAt sql.NullInt64
	var reason, priority, notes sql.NullString
	var createdAt int64

	err := row.Scan(
		&esc.ID, &esc.SessionID, &conversationID, &reason, &priority, &esc.Status,
		&assignedTo, &assignedAt, &resolvedAt, &notes, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan escalation row: %w", err)
	}

	esc.ConversationID = conversationID.Int64
	esc.Reason = reason.String
	esc.Priority = priority.String
	esc.ResolutionNotes = notes.String
	esc.CreatedAt = time.Unix(createdAt, 0)
	if assignedTo.Valid {
		esc.AssignedTo = &assignedTo.Int64
	}
	if assignedAt.Valid {
		at := time.Unix(assignedAt.Int64, 0)
		esc.AssignedAt = &at
	}
	if resolvedAt.Valid {
		at := time.Unix(resolvedAt.Int64, 0)
		esc.ResolvedAt = &at
	}
	return &esc, nil
}

// CreateEscalation inserts an escalation row as one atomic write. The
// assignment decided by the caller lands in the same insert, so an
// assignment is never visible without its escalation row.
func (s *SQLiteStore) CreateEscalation(ctx context.Context, esc *domain.Escalation) error {
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now()
	}

	var assignedTo, assignedAt interface{}
	if esc.AssignedTo != nil {
		assignedTo = *esc.AssignedTo
	}
	if esc.AssignedAt != nil {
		assignedAt = esc.AssignedAt.Unix()
	}

	query := `
	INSERT INTO escalations (session_id, conversation_id, reason, priority,
		status, assigned_to, assigned_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err := shared.RetrySQLite(ctx, 3, 100*time.Millisecond, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			esc.SessionID, esc.ConversationID, esc.Reason, esc.Priority,
			esc.Status, assignedTo, assignedAt, esc.CreatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("escalation insert id: %w", err)
	}
	esc.ID = id
	return nil
}

// CountAssignedEscalations returns an agent's current assignment load.
func (s *SQLiteStore) CountAssignedEscalations(ctx context.Context, agentID int64) (int, error) {
	query := `SELECT COUNT(*) FROM escalations WHERE assigned_to = ? AND status = ?`
	var count int
	if err := s.db.QueryRowContext(ctx, query, agentID, domain.EscalationAssigned).Scan(&count); err != nil {
		return 0, fmt.Errorf("count assigned escalations: %w", err)
	}
	return count, nil
}

// ResolveEscalation transitions an assigned escalation to resolved.
func (s *SQLiteStore) ResolveEscalation(ctx context.Context, id int64, notes string) error {
	query := `
	UPDATE escalations SET status = ?, resolved_at = ?, resolution_notes = ?
	WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query,
		domain.EscalationResolved, time.Now().Unix(), nullable(notes), id, domain.EscalationAssigned)
	if err != nil {
		return fmt.Errorf("resolve escalation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("escalation %d is not assigned", id)
	}
	return nil
}

// CreateFeedback appends a feedback row.
func (s *SQLiteStore) CreateFeedback(ctx context.Context, fb *domain.Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	var conversationID interface{}
	if fb.ConversationID != nil {
		conversationID = *fb.ConversationID
	}

	query := `
	INSERT INTO feedback (session_id, conversation_id, rating, feedback_type, comment, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		fb.SessionID, conversationID, fb.Rating, nullable(fb.FeedbackType),
		nullable(fb.Comment), fb.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("feedback insert id: %w", err)
	}
	fb.ID = id
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
