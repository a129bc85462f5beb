// Package pipeline implements the per-message chat orchestration flow:
// session resolution, config resolution, turn persistence, classification
// behind the circuit breaker, escalation, and response construction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eroshenko/chatdesk/internal/analytics"
	"github.com/eroshenko/chatdesk/internal/balancer"
	"github.com/eroshenko/chatdesk/internal/domain"
	"github.com/eroshenko/chatdesk/internal/nlp"
	"github.com/eroshenko/chatdesk/internal/store"
)

// ErrInvalidInput is returned for messages missing a session key or text.
// No side effects are performed in that case.
var ErrInvalidInput = errors.New("session key and text are required")

// Classifier is the outbound classification dependency.
type Classifier interface {
	Parse(ctx context.Context, text string, settings domain.AISettings, keywords []string, phrases map[string][]string) (*domain.Classification, error)
}

// ConfigSource resolves tenant configuration and the live agent roster.
// Config getters degrade to documented defaults internally; only the roster
// fetch surfaces errors.
type ConfigSource interface {
	AISettings(ctx context.Context) domain.AISettings
	EscalationKeywords(ctx context.Context) []string
	IntentPhrases(ctx context.Context) map[string][]string
	AvailableAgents(ctx context.Context) ([]domain.Agent, error)
}

// Breaker gates calls to the classification dependency.
type Breaker interface {
	Allow(ctx context.Context, dependency string) bool
	RecordFailure(ctx context.Context, dependency string)
	RecordSuccess(ctx context.Context, dependency string)
}

// ContextStore is the ephemeral per-session context side-channel.
type ContextStore interface {
	Update(ctx context.Context, sessionID int64, updates map[string]any) error
}

// EventSink receives analytics events.
type EventSink interface {
	Emit(event analytics.Event)
}

// Summary is the classification digest returned alongside the response.
type Summary struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Route      string  `json:"route"`
}

// Result is the structured outcome of one processed message.
type Result struct {
	SessionID     int64              `json:"session_id"`
	UserMessageID int64              `json:"user_message_id"`
	BotMessageID  int64              `json:"bot_message_id"`
	Response      domain.BotResponse `json:"response"`
	NLP           Summary            `json:"nlp"`
}

// Pipeline drives the message-processing state machine.
type Pipeline struct {
	repo       store.Repository
	config     ConfigSource
	classifier Classifier
	breaker    Breaker
	contexts   ContextStore
	balancer   *balancer.Balancer
	events     EventSink
}

// New wires a pipeline from its collaborators.
func New(repo store.Repository, config ConfigSource, classifier Classifier, brk Breaker, contexts ContextStore, lb *balancer.Balancer, events EventSink) *Pipeline {
	return &Pipeline{
		repo:       repo,
		config:     config,
		classifier: classifier,
		breaker:    brk,
		contexts:   contexts,
		balancer:   lb,
		events:     events,
	}
}

// Process runs one inbound message through the full pipeline. Database
// write failures on session or turn persistence abort the message;
// classification and configuration failures degrade to synthetic results
// and defaults so the user always receives a defined response.
func (p *Pipeline) Process(ctx context.Context, sessionKey, text, platform string) (*Result, error) {
	if sessionKey == "" || text == "" {
		return nil, ErrInvalidInput
	}
	if platform == "" {
		platform = "web"
	}

	sess, err := p.repo.GetOrCreateSession(ctx, sessionKey, platform)
	if err != nil {
		return nil, fmt.Errorf("resolve session %q: %w", sessionKey, err)
	}

	settings := p.config.AISettings(ctx)
	keywords := p.config.EscalationKeywords(ctx)
	phrases := p.config.IntentPhrases(ctx)

	userMsg := &domain.Message{
		SessionID: sess.ID,
		Sender:    domain.SenderUser,
		Text:      text,
	}
	if err := p.repo.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// Once a human agent holds the session, classification never runs.
	assigned, err := p.repo.AssignedEscalation(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("check active handoff: %w", err)
	}
	if assigned != nil {
		return p.finish(ctx, sess.ID, userMsg.ID, agentConnectedResponse(), nil, "")
	}

	result := p.classify(ctx, text, settings, keywords, phrases)

	// Handoff intent always wins over confidence-based routing.
	route := result.Route
	if result.HandoffDetected {
		route = domain.RouteEscalate
	}

	if err := p.contexts.Update(ctx, sess.ID, map[string]any{
		"last_intent": result.Intent,
		"confidence":  result.Confidence,
		"route":       route,
	}); err != nil {
		slog.Warn("Context update failed", "session_id", sess.ID, "error", err)
	}
	p.events.Emit(analytics.Event{
		Name:       "nlp_processed",
		SessionID:  sess.ID,
		Intent:     result.Intent,
		Confidence: result.Confidence,
		Route:      route,
	})

	if route == domain.RouteFallback || route == domain.RouteEscalate {
		p.escalate(ctx, sess.ID, userMsg.ID)
	}

	return p.finish(ctx, sess.ID, userMsg.ID, buildResponse(result, route), result, route)
}

// classify runs the classification call behind the circuit breaker,
// substituting synthetic results so dependency failures never propagate to
// the end user.
func (p *Pipeline) classify(ctx context.Context, text string, settings domain.AISettings, keywords []string, phrases map[string][]string) *domain.Classification {
	if !p.breaker.Allow(ctx, nlp.Dependency) {
		slog.Warn("Classification skipped, breaker open", "dependency", nlp.Dependency)
		return nlp.SystemUnavailableResult()
	}

	result, err := p.classifier.Parse(ctx, text, settings, keywords, phrases)
	if err != nil {
		p.breaker.RecordFailure(ctx, nlp.Dependency)
		slog.Warn("Classification failed", "dependency", nlp.Dependency, "error", err)
		return nlp.SystemErrorResult()
	}

	p.breaker.RecordSuccess(ctx, nlp.Dependency)
	return result
}

// escalate opens an escalation for the triggering turn and attempts agent
// assignment. The assignment decision happens before the single insert, so
// the escalation row and its assignment are one atomic write. A roster or
// balancer failure leaves the escalation pending, never fails the message.
func (p *Pipeline) escalate(ctx context.Context, sessionID, conversationID int64) {
	esc := &domain.Escalation{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Reason:         "Low confidence or user requested human",
		Priority:       "medium",
		Status:         domain.EscalationPending,
	}

	agents, err := p.config.AvailableAgents(ctx)
	if err != nil {
		slog.Warn("Agent roster fetch failed, leaving escalation unassigned", "session_id", sessionID, "error", err)
		agents = nil
	}
	if len(agents) > 0 {
		agent, err := p.balancer.Select(ctx, agents)
		if err != nil {
			slog.Warn("Agent selection failed, leaving escalation unassigned", "session_id", sessionID, "error", err)
		} else if agent != nil {
			now := time.Now()
			esc.Status = domain.EscalationAssigned
			esc.AssignedTo = &agent.ID
			esc.AssignedAt = &now
		}
	}

	if err := p.repo.CreateEscalation(ctx, esc); err != nil {
		slog.Error("Escalation persist failed", "session_id", sessionID, "error", err)
		return
	}
	slog.Info("Escalation created",
		"session_id", sessionID,
		"escalation_id", esc.ID,
		"status", esc.Status)
}

// finish persists the outbound turn and assembles the pipeline result.
func (p *Pipeline) finish(ctx context.Context, sessionID, userMessageID int64, resp domain.BotResponse, result *domain.Classification, route string) (*Result, error) {
	botMsg := &domain.Message{
		SessionID:  sessionID,
		Sender:     domain.SenderBot,
		Text:       resp.Message,
		IsFallback: route == domain.RouteFallback,
	}
	summary := Summary{}
	if result != nil {
		botMsg.Intent = result.Intent
		botMsg.Confidence = result.Confidence
		botMsg.Entities = result.Entities
		summary = Summary{Intent: result.Intent, Confidence: result.Confidence, Route: route}
	}
	if err := p.repo.AppendMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("persist bot message: %w", err)
	}

	return &Result{
		SessionID:     sessionID,
		UserMessageID: userMessageID,
		BotMessageID:  botMsg.ID,
		Response:      resp,
		NLP:           summary,
	}, nil
}
