package pipeline

import (
	"fmt"

	"github.com/eroshenko/chatdesk/internal/domain"
)

// User-visible reply texts.
const (
	msgConnectingAgent = "Connecting you to a human agent."
	msgAgentConnected  = "You are now connected to a human agent."
	msgClarify         = "Can you please clarify your request?"
	msgSuggest         = "Did you mean one of these?"
	msgNotUnderstood   = "I'm sorry, I didn't understand that."
)

// buildResponse derives the user-visible reply from a classification result
// and the (possibly handoff-overridden) route. It is a pure function; rule
// order matters: the handoff check precedes all route checks.
func buildResponse(result *domain.Classification, route string) domain.BotResponse {
	switch {
	case result.HandoffDetected:
		return domain.BotResponse{Type: domain.ResponseEscalate, Message: msgConnectingAgent}
	case route == domain.RouteNormal:
		return domain.BotResponse{
			Type:    domain.ResponseBot,
			Message: fmt.Sprintf("Handling intent: %s", result.Intent),
		}
	case route == domain.RouteClarify:
		return domain.BotResponse{Type: domain.ResponseClarify, Message: msgClarify}
	case route == domain.RouteFallback && len(result.FallbackSuggestions) > 0:
		return domain.BotResponse{
			Type:    domain.ResponseSuggest,
			Message: msgSuggest,
			Options: result.FallbackSuggestions,
		}
	default:
		return domain.BotResponse{Type: domain.ResponseBot, Message: msgNotUnderstood}
	}
}

// agentConnectedResponse is the short-circuit reply once a live human
// handoff is active for the session.
func agentConnectedResponse() domain.BotResponse {
	return domain.BotResponse{Type: domain.ResponseAgent, Message: msgAgentConnected}
}
