package domain

// DefaultConfidenceThreshold is substituted when the admin origin cannot be
// reached. The value is a percentage.
const DefaultConfidenceThreshold = 60

// AISettings holds tenant-level routing thresholds from the admin service.
type AISettings struct {
	ConfidenceThreshold int `json:"confidence_threshold"`
}

// DefaultAISettings returns the documented fallback settings.
func DefaultAISettings() AISettings {
	return AISettings{ConfidenceThreshold: DefaultConfidenceThreshold}
}
