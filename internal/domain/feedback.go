package domain

import (
	"time"
)

// Feedback is a visitor rating for a session or a specific turn.
type Feedback struct {
	ID             int64     `json:"id"`
	SessionID      int64     `json:"session_id"`
	ConversationID *int64    `json:"conversation_id,omitempty"`
	Rating         int       `json:"rating"`
	FeedbackType   string    `json:"feedback_type,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
