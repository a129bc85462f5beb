package domain

// Bot response kinds. Exactly one is produced per processed message, even
// under full classification-service outage.
const (
	ResponseBot      = "BOT"
	ResponseClarify  = "CLARIFY"
	ResponseSuggest  = "SUGGEST"
	ResponseEscalate = "ESCALATE"
	ResponseAgent    = "AGENT"
)

// BotResponse is the user-visible reply constructed by the pipeline.
// Options is only populated for SUGGEST responses.
type BotResponse struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Options []string `json:"options,omitempty"`
}
