package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/nutribot/internal/dialogue"
	"github.com/ashureev/nutribot/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxMessageBytes bounds a chat request body.
const maxMessageBytes = 4 << 10

// Conversation is the part of the dialogue core a channel talks to.
type Conversation interface {
	HandleText(ctx context.Context, userID, text string) []dialogue.OutboundMessage
	HandleCommand(ctx context.Context, userID, command string) []dialogue.OutboundMessage
}

var _ Conversation = (*dialogue.Bot)(nil)

// MessageRequest is the body of POST /api/chat/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessagesResponse carries the replies for one turn.
type MessagesResponse struct {
	Messages []dialogue.OutboundMessage `json:"messages"`
}

// ChatHandler exposes the conversation over plain HTTP.
type ChatHandler struct {
	bot     Conversation
	limiter *RateLimiter
}

// NewChatHandler creates a chat handler. A nil limiter disables rate limiting.
func NewChatHandler(bot Conversation, limiter *RateLimiter) *ChatHandler {
	return &ChatHandler{bot: bot, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/messages", h.PostMessage)
		r.Post("/commands/{command}", h.PostCommand)
	})
}

// PostMessage handles one free-text message.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.admit(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	slog.Info("Chat message",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Text),
	)

	ctx := dialogue.WithChannel(r.Context(), "http")
	JSON(w, http.StatusOK, MessagesResponse{Messages: h.bot.HandleText(ctx, userID, req.Text)})
}

// PostCommand handles one command named in the path.
func (h *ChatHandler) PostCommand(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.admit(w, r)
	if !ok {
		return
	}

	command := chi.URLParam(r, "command")
	if command == "" {
		Error(w, http.StatusBadRequest, "command is required")
		return
	}

	ctx := dialogue.WithChannel(r.Context(), "http")
	JSON(w, http.StatusOK, MessagesResponse{Messages: h.bot.HandleCommand(ctx, userID, command)})
}

func (h *ChatHandler) admit(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return "", false
	}
	return userID, true
}
