package chatws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/nutribot/internal/dialogue"
	"github.com/ashureev/nutribot/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const maxFrameBytes = 4 << 10

// Conversation is the part of the dialogue core a channel talks to.
type Conversation interface {
	HandleText(ctx context.Context, userID, text string) []dialogue.OutboundMessage
	HandleCommand(ctx context.Context, userID, command string) []dialogue.OutboundMessage
}

// Limiter admits or rejects a request for a key.
type Limiter interface {
	Allow(key string) bool
}

// ClientFrame is one inbound frame. Command, when set, wins over Text.
type ClientFrame struct {
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
}

// ErrorFrame reports a rejected frame to the sender only.
type ErrorFrame struct {
	Error string `json:"error"`
}

// Handler serves GET /ws/chat.
type Handler struct {
	bot           Conversation
	sm            *SessionManager
	limiter       Limiter
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler. limiter may be nil.
func NewHandler(bot Conversation, sm *SessionManager, limiter Limiter, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		bot:           bot,
		sm:            sm,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(maxFrameBytes)

	connID := uuid.NewString()
	h.sm.Register(userID, connID, ws)
	defer h.sm.Unregister(userID, connID, ws)

	h.readLoop(r.Context(), ws, userID)
	slog.Info("Chat session ended", "user_id", userID, "conn_id", connID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	ctx = dialogue.WithChannel(ctx, "websocket")
	for {
		var frame ClientFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if h.limiter != nil && !h.limiter.Allow(userID) {
			if err := wsjson.Write(ctx, ws, ErrorFrame{Error: "rate_limited"}); err != nil {
				return
			}
			continue
		}

		var out []dialogue.OutboundMessage
		switch {
		case strings.TrimSpace(frame.Command) != "":
			out = h.bot.HandleCommand(ctx, userID, frame.Command)
		case strings.TrimSpace(frame.Text) != "":
			out = h.bot.HandleText(ctx, userID, frame.Text)
		default:
			if err := wsjson.Write(ctx, ws, ErrorFrame{Error: "empty_message"}); err != nil {
				return
			}
			continue
		}

		for _, msg := range out {
			h.sm.Broadcast(ctx, userID, msg)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
