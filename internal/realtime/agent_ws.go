package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/eroshenko/chatdesk/internal/admin"
	"github.com/eroshenko/chatdesk/internal/domain"
	"github.com/go-chi/chi/v5"
)

const rosterTimeout = 10 * time.Second

// agentFrame is one inbound frame on an agent channel.
type agentFrame struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// agentDelivery is the payload forwarded to the user channel.
type agentDelivery struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ServeAgent handles the agent-facing channel. The agent is marked busy in
// the roster for the lifetime of the connection; cleanup runs on every exit
// path, clean disconnect or not.
func (h *Handler) ServeAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agent_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent_id", http.StatusBadRequest)
		return
	}
	slog.Info("Agent channel connecting", "agent_id", agentID, "ip", r.RemoteAddr)

	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "agent disconnected"); closeErr != nil {
			slog.Debug("Failed to close agent websocket", "error", closeErr, "agent_id", agentID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.setAgentStatus(ctx, agentID, admin.AgentBusy)
	defer func() {
		// The request context is dying by the time cleanup runs.
		releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), rosterTimeout)
		defer releaseCancel()
		h.setAgentStatus(releaseCtx, agentID, admin.AgentAvailable)
	}()

	key := AgentKey(agentID)
	h.registry.Register(key, ws)
	defer h.registry.Unregister(key, ws)

	h.agentLoop(ctx, ws, agentID)
	slog.Info("Agent channel closed", "agent_id", agentID)
}

func (h *Handler) setAgentStatus(ctx context.Context, agentID int64, status string) {
	if err := h.roster.SetAgentStatus(ctx, agentID, status); err != nil {
		slog.Warn("Failed to update agent roster status", "agent_id", agentID, "status", status, "error", err)
	}
}

func (h *Handler) agentLoop(ctx context.Context, ws *websocket.Conn, agentID int64) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Agent channel closed by client", "agent_id", agentID)
			} else {
				slog.Warn("Agent channel read error", "agent_id", agentID, "error", err)
			}
			return
		}

		var frame agentFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.SessionID == "" || frame.Message == "" {
			writeError(ws, "session_id and message required")
			continue
		}

		msgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pipelineTimeout)
		err = h.deliverAgentMessage(msgCtx, agentID, frame)
		cancel()
		if err != nil {
			slog.Error("Agent message delivery failed", "agent_id", agentID, "session_key", frame.SessionID, "error", err)
			writeError(ws, "internal_error")
		}
	}
}

// deliverAgentMessage persists the agent's turn and forwards it to the
// session's user channel when one is registered. With no user channel the
// message stays persisted and is silently not delivered.
func (h *Handler) deliverAgentMessage(ctx context.Context, agentID int64, frame agentFrame) error {
	sess, err := h.repo.GetSessionByKey(ctx, frame.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("unknown session %q", frame.SessionID)
	}

	msg := &domain.Message{
		SessionID: sess.ID,
		Sender:    domain.SenderAgent,
		Text:      frame.Message,
	}
	if err := h.repo.AppendMessage(ctx, msg); err != nil {
		return err
	}

	userConn := h.registry.Get(UserKey(frame.SessionID))
	if userConn == nil {
		slog.Debug("No user channel for agent message", "session_key", frame.SessionID, "agent_id", agentID)
		return nil
	}
	if err := writeJSON(userConn, agentDelivery{
		Sender:    domain.SenderAgent,
		Message:   frame.Message,
		SessionID: frame.SessionID,
	}); err != nil {
		slog.Debug("Failed to forward agent message", "session_key", frame.SessionID, "error", err)
	}
	return nil
}
