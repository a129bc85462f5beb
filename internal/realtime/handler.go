package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/eroshenko/chatdesk/internal/admin"
	"github.com/eroshenko/chatdesk/internal/pipeline"
	"github.com/eroshenko/chatdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

// Handler serves the user and agent WebSocket endpoints.
type Handler struct {
	repo           store.Repository
	pipe           *pipeline.Pipeline
	roster         *admin.Client
	registry       *Registry
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a realtime handler.
func NewHandler(repo store.Repository, pipe *pipeline.Pipeline, roster *admin.Client, registry *Registry, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		repo:           repo,
		pipe:           pipe,
		roster:         roster,
		registry:       registry,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// RegisterRoutes registers the WebSocket endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{session_key}", h.ServeUser)
	r.Get("/ws/agent/{agent_id}", h.ServeAgent)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, false
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "path", r.URL.Path)
		return nil, false
	}
	return ws, true
}

func writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}

func writeError(ws *websocket.Conn, message string) {
	if err := writeJSON(ws, map[string]string{"error": message}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}
