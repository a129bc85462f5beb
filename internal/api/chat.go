package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eroshenko/chatdesk/internal/domain"
	"github.com/eroshenko/chatdesk/internal/pipeline"
	"github.com/eroshenko/chatdesk/internal/store"
	"github.com/eroshenko/chatdesk/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ChatHandler serves the synchronous chat endpoints.
type ChatHandler struct {
	repo   store.Repository
	pipe   *pipeline.Pipeline
	tokens *token.Manager
}

// NewChatHandler creates a chat handler.
func NewChatHandler(repo store.Repository, pipe *pipeline.Pipeline, tokens *token.Manager) *ChatHandler {
	return &ChatHandler{repo: repo, pipe: pipe, tokens: tokens}
}

// RegisterRoutes registers all chat endpoints.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/message", h.Message)
	r.Post("/session", h.CreateSession)
	r.Post("/session/{key}/end", h.EndSession)
	r.Get("/session/{key}/history", h.History)
	r.Post("/escalations/{id}/resolve", h.ResolveEscalation)
	r.Post("/feedback", h.CreateFeedback)
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Message runs one message through the pipeline for non-realtime clients.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Text == "" {
		Error(w, http.StatusBadRequest, "session_id and text required")
		return
	}

	result, err := h.pipe.Process(r.Context(), req.SessionID, req.Text, "web")
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidInput) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Message processing failed", "session_key", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	JSON(w, http.StatusOK, result)
}

type createSessionRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Platform string `json:"platform"`
}

// CreateSession bootstraps a fresh session: generates an opaque key,
// persists visitor metadata, and returns a signed token for later
// authentication.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Platform == "" {
		req.Platform = "web"
	}

	metadata, err := json.Marshal(map[string]string{"name": req.Name, "email": req.Email})
	if err != nil {
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	sess := &domain.Session{
		SessionKey: uuid.NewString(),
		Platform:   req.Platform,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Metadata:   string(metadata),
	}
	if err := h.repo.CreateSession(r.Context(), sess); err != nil {
		slog.Error("Session bootstrap failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	signed, err := h.tokens.Issue(sess.ID, sess.SessionKey)
	if err != nil {
		slog.Error("Session token issue failed", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"session_key": sess.SessionKey,
		"session_id":  sess.ID,
		"token":       signed,
	})
}

// EndSession closes a session. Idempotent.
func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		Error(w, http.StatusBadRequest, "session key required")
		return
	}

	if err := h.repo.EndSession(r.Context(), key); err != nil {
		slog.Error("Session end failed", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// History returns a session's conversation turns in order.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sess, err := h.repo.GetSessionByKey(r.Context(), key)
	if err != nil {
		slog.Error("Session lookup failed", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.repo.ListMessages(r.Context(), sess.ID, limit)
	if err != nil {
		slog.Error("History fetch failed", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sess.ID,
		"messages":   messages,
	})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// ResolveEscalation transitions an assigned escalation to resolved.
func (h *ChatHandler) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid escalation id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.ResolveEscalation(r.Context(), id, req.Notes); err != nil {
		slog.Warn("Escalation resolve failed", "escalation_id", id, "error", err)
		Error(w, http.StatusConflict, "escalation is not assigned")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": domain.EscalationResolved})
}

type feedbackRequest struct {
	SessionID      int64  `json:"session_id"`
	ConversationID *int64 `json:"conversation_id"`
	Rating         int    `json:"rating"`
	FeedbackType   string `json:"feedback_type"`
	Comment        string `json:"comment"`
}

// CreateFeedback records a visitor rating.
func (h *ChatHandler) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == 0 {
		Error(w, http.StatusBadRequest, "session_id required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		Error(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	fb := &domain.Feedback{
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Rating:         req.Rating,
		FeedbackType:   req.FeedbackType,
		Comment:        req.Comment,
	}
	if err := h.repo.CreateFeedback(r.Context(), fb); err != nil {
		slog.Error("Feedback persist failed", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusCreated, map[string]int64{"id": fb.ID})
}
