// Package domain contains core domain types for the ChatDesk platform.
package domain

import (
	"time"
)

// Session statuses.
const (
	SessionActive = "ACTIVE"
	SessionEnded  = "ENDED"
)

// Session represents one visitor conversation, identified by an opaque
// session key. Sessions are never physically deleted; closing a session
// sets EndedAt and flips the status to ENDED.
type Session struct {
	ID         int64      `json:"id"`
	SessionKey string     `json:"session_key"`
	UserID     *int64     `json:"user_id,omitempty"`
	Platform   string     `json:"platform"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Status     string     `json:"status"`
	Metadata   string     `json:"metadata,omitempty"`
}

// IsActive returns true if the session has not been ended.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}
