package domain

import (
	"time"
)

// Escalation statuses. Lifecycle is pending -> assigned -> resolved.
const (
	EscalationPending  = "pending"
	EscalationAssigned = "assigned"
	EscalationResolved = "resolved"
)

// Escalation tracks a request for human-agent involvement in a session.
// AssignedTo is set at most once on the pending->assigned transition.
type Escalation struct {
	ID              int64      `json:"id"`
	SessionID       int64      `json:"session_id"`
	ConversationID  int64      `json:"conversation_id"`
	Reason          string     `json:"reason"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	AssignedTo      *int64     `json:"assigned_to,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Agent is a human support agent from the external roster.
type Agent struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
