package domain

// Routes derived from classification confidence. The route governs the
// shape of the bot response and whether an escalation is opened.
const (
	RouteNormal   = "NORMAL"
	RouteClarify  = "CLARIFY"
	RouteFallback = "FALLBACK"
	RouteEscalate = "ESCALATE"
)

// Synthetic intents substituted when the classification service cannot be
// reached or the circuit breaker is open.
const (
	IntentSystemError       = "system_error"
	IntentSystemUnavailable = "system_unavailable"
)

// Classification is the structured result of one classification call.
type Classification struct {
	Intent              string            `json:"intent"`
	Confidence          float64           `json:"confidence"`
	Entities            map[string]string `json:"entities"`
	Route               string            `json:"route"`
	HandoffDetected     bool              `json:"handoff_detected"`
	FallbackSuggestions []string          `json:"fallback_suggestions"`
}
