package domain

import (
	"time"
)

// Message senders.
const (
	SenderUser  = "user"
	SenderBot   = "bot"
	SenderAgent = "agent"
)

// Message is a single conversation turn. Rows are append-only: one per
// inbound and outbound message, never updated after creation.
type Message struct {
	ID         int64             `json:"id"`
	SessionID  int64             `json:"session_id"`
	Sender     string            `json:"sender"`
	Text       string            `json:"message_text"`
	Intent     string            `json:"intent_detected,omitempty"`
	Confidence float64           `json:"confidence_score"`
	Entities   map[string]string `json:"entities,omitempty"`
	Language   string            `json:"language"`
	IsFallback bool              `json:"is_fallback"`
	CreatedAt  time.Time         `json:"created_at"`
}
