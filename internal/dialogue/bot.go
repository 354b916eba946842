// Package dialogue routes user text to the profile and food dialogues and
// answers the reporting commands.
package dialogue

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/nutribot/internal/convlog"
	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/estimator"
	"github.com/ashureev/nutribot/internal/nutrition"
	"github.com/ashureev/nutribot/internal/store"
	"github.com/google/uuid"
)

// OutboundMessage is one reply to the user. QuickReplies, when present, are
// offered as tappable answers.
type OutboundMessage struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies,omitempty"`
}

// Commands understood by HandleCommand.
const (
	CommandStart   = "start"
	CommandHelp    = "help"
	CommandProfile = "profile"
	CommandTarget  = "target"
	CommandDay     = "day"
	CommandMeals   = "meals"
	CommandCancel  = "cancel"
)

// minFoodLength is the shortest text analysed as food, in runes.
const minFoodLength = 2

// Bot is the conversation core shared by every channel.
type Bot struct {
	repo      store.Repository
	estimator estimator.Estimator
	extractor nutrition.Extractor
	sessions  *SessionManager
	log       convlog.Logger
	now       func() time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithClock sets the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithExtractor replaces the regex extractor.
func WithExtractor(e nutrition.Extractor) Option {
	return func(b *Bot) { b.extractor = e }
}

// WithConversationLog records every turn.
func WithConversationLog(l convlog.Logger) Option {
	return func(b *Bot) { b.log = l }
}

// NewBot creates a Bot. A nil estimator behaves like estimator.Disabled.
func NewBot(repo store.Repository, est estimator.Estimator, sessions *SessionManager, opts ...Option) *Bot {
	if est == nil {
		est = estimator.Disabled{}
	}
	b := &Bot{
		repo:      repo,
		estimator: est,
		extractor: nutrition.NewExtractor(),
		sessions:  sessions,
		log:       convlog.Noop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sessions == nil {
		b.sessions = NewSessionManager(b.now)
	}
	return b
}

// Sessions exposes the session manager for the sweeper.
func (b *Bot) Sessions() *SessionManager {
	return b.sessions
}

type channelKey struct{}

// WithChannel tags ctx with the name of the channel a message arrived on.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

func channelFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(channelKey{}).(string); ok {
		return v
	}
	return ""
}

// HandleText processes one free-text message. Text starting with "/" is
// treated as a command; otherwise an active dialogue takes it, and with no
// active dialogue it is analysed as food.
func (b *Bot) HandleText(ctx context.Context, userID, text string) []OutboundMessage {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		return b.HandleCommand(ctx, userID, parseCommand(text))
	}

	return b.turn(ctx, userID, "text", text, func(s *domain.DialogueSession) []OutboundMessage {
		switch {
		case s.State.IsProfileState():
			return b.handleProfileInput(ctx, s, text)
		case s.State == domain.StateWaitClarification:
			return b.handleClarification(ctx, s, text)
		default:
			return b.analyzeFood(ctx, s, text)
		}
	})
}

// HandleCommand processes one command by name, without the leading "/".
func (b *Bot) HandleCommand(ctx context.Context, userID, command string) []OutboundMessage {
	command = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/"))

	return b.turn(ctx, userID, "command", "/"+command, func(s *domain.DialogueSession) []OutboundMessage {
		switch command {
		case CommandStart, CommandHelp:
			return []OutboundMessage{text(msgWelcome)}
		case CommandProfile:
			return b.startProfile(ctx, s)
		case CommandTarget:
			return b.showTarget(ctx, s.UserID)
		case CommandDay:
			return b.showDailySummary(ctx, s.UserID)
		case CommandMeals:
			return b.showMeals(ctx, s.UserID)
		case CommandCancel:
			if !s.Active() {
				return []OutboundMessage{text(msgNothingToCancel)}
			}
			s.Reset()
			return []OutboundMessage{text(msgCancelled)}
		default:
			return []OutboundMessage{text(msgUnknownCommand)}
		}
	})
}

// turn runs fn with exclusive access to the user's session. A panic inside
// fn resets the session and becomes the generic apology.
func (b *Bot) turn(ctx context.Context, userID, kind, input string, fn func(*domain.DialogueSession) []OutboundMessage) (out []OutboundMessage) {
	s, release := b.sessions.Acquire(userID)
	defer release()

	requestID := uuid.NewString()
	channel := channelFromContext(ctx)
	b.log.Log(convlog.Event{
		RequestID:  requestID,
		UserID:     userID,
		Channel:    channel,
		Direction:  convlog.Inbound,
		EventType:  kind,
		State:      string(s.State),
		ContentRaw: input,
	})

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dialogue turn panicked",
				"user_id", userID,
				"state", string(s.State),
				"panic", r,
				"stack", string(debug.Stack()))
			s.Reset()
			out = []OutboundMessage{text(msgInternalError)}
		}
		for _, msg := range out {
			b.log.Log(convlog.Event{
				RequestID:  requestID,
				UserID:     userID,
				Channel:    channel,
				Direction:  convlog.Outbound,
				EventType:  "reply",
				State:      string(s.State),
				ContentRaw: msg.Text,
			})
		}
	}()

	return fn(s)
}

func (b *Bot) today() string {
	return b.now().Format(domain.DateLayout)
}

// parseCommand extracts the command name from "/name@bot args".
func parseCommand(text string) string {
	name := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

func isFoodText(text string) bool {
	return utf8.RuneCountInString(text) >= minFoodLength
}
