package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const pipelineTimeout = 30 * time.Second

// userFrame is one inbound frame on a user channel.
type userFrame struct {
	Text string `json:"text"`
}

// ServeUser handles the user-facing chat channel. Frames are processed
// strictly in arrival order; each text frame runs the full message pipeline
// and the structured result is written back on the same channel.
func (h *Handler) ServeUser(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "session_key")
	if sessionKey == "" {
		http.Error(w, "session_key required", http.StatusBadRequest)
		return
	}
	slog.Info("User channel connecting", "session_key", sessionKey, "ip", r.RemoteAddr)

	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close user websocket", "error", closeErr, "session_key", sessionKey)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if _, err := h.repo.GetOrCreateSession(ctx, sessionKey, "web"); err != nil {
		slog.Error("Failed to resolve session on connect", "session_key", sessionKey, "error", err)
		writeError(ws, "session_unavailable")
		return
	}

	key := UserKey(sessionKey)
	h.registry.Register(key, ws)
	defer h.registry.Unregister(key, ws)

	h.userLoop(ctx, ws, sessionKey)
	slog.Info("User channel closed", "session_key", sessionKey)
}

func (h *Handler) userLoop(ctx context.Context, ws *websocket.Conn, sessionKey string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("User channel closed by client", "session_key", sessionKey)
			} else {
				slog.Warn("User channel read error", "session_key", sessionKey, "error", err)
			}
			return
		}

		var frame userFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Text == "" {
			writeError(ws, "text required")
			continue
		}

		// In-flight runs complete even if the channel closes mid-message:
		// their writes must not be lost to a client disconnect.
		msgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pipelineTimeout)
		result, err := h.pipe.Process(msgCtx, sessionKey, frame.Text, "web")
		cancel()
		if err != nil {
			slog.Error("Pipeline failed", "session_key", sessionKey, "error", err)
			writeError(ws, "internal_error")
			continue
		}

		if err := writeJSON(ws, result); err != nil {
			slog.Debug("Failed to deliver pipeline result", "session_key", sessionKey, "error", err)
			return
		}
	}
}
