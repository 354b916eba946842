// Package telegram runs the conversation over the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/dialogue"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	userQueueSize  = 16
	workerIdleTime = time.Minute
)

const msgBusy = "Слишком много сообщений подряд. Дождитесь ответа на предыдущие и повторите."

// Conversation is the part of the dialogue core a channel talks to.
type Conversation interface {
	HandleText(ctx context.Context, userID, text string) []dialogue.OutboundMessage
	HandleCommand(ctx context.Context, userID, command string) []dialogue.OutboundMessage
}

// API is the subset of *tgbotapi.BotAPI the channel uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Channel delivers Telegram messages to the conversation. Messages from one
// user are handled in arrival order by that user's worker; different users
// are handled concurrently.
type Channel struct {
	api         API
	bot         Conversation
	pollTimeout int
	idleTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	workers map[int64]chan *tgbotapi.Message
	wg      sync.WaitGroup
}

// NewBotAPI connects to Telegram with the given token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return api, nil
}

// NewChannel creates a Telegram channel.
func NewChannel(api API, bot Conversation, pollTimeout int, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	return &Channel{
		api:         api,
		bot:         bot,
		pollTimeout: pollTimeout,
		idleTimeout: workerIdleTime,
		logger:      logger,
		workers:     make(map[int64]chan *tgbotapi.Message),
	}
}

// Run polls for updates until ctx is done, then waits for in-flight turns.
func (c *Channel) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	updates := c.api.GetUpdatesChan(u)

	c.logger.Info("Telegram channel started", "poll_timeout", c.pollTimeout)
	defer func() {
		c.api.StopReceivingUpdates()
		c.wg.Wait()
		c.logger.Info("Telegram channel stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.From == nil {
				continue
			}
			c.dispatch(ctx, update.Message)
		}
	}
}

// dispatch hands msg to its user's worker without blocking the poll loop.
// A user whose queue is full gets a busy notice; nobody else waits.
func (c *Channel) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	userKey := msg.From.ID

	c.mu.Lock()
	queue, ok := c.workers[userKey]
	if !ok {
		queue = make(chan *tgbotapi.Message, userQueueSize)
		c.workers[userKey] = queue
		c.wg.Add(1)
		go c.worker(ctx, userKey, queue)
	}
	var queued bool
	select {
	case queue <- msg:
		queued = true
	default:
	}
	c.mu.Unlock()

	if queued {
		return
	}

	c.logger.Warn("Telegram user queue full, dropping message", "user_id", userKey)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.api.Send(tgbotapi.NewMessage(msg.Chat.ID, msgBusy)); err != nil {
			c.logger.Error("Failed to send busy notice", "error", err, "user_id", userKey)
		}
	}()
}

func (c *Channel) worker(ctx context.Context, userKey int64, queue chan *tgbotapi.Message) {
	defer c.wg.Done()

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-queue:
			c.handle(ctx, msg)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)
		case <-idle.C:
			// dispatch enqueues under mu, so an empty queue here stays empty.
			c.mu.Lock()
			if len(queue) == 0 {
				delete(c.workers, userKey)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			idle.Reset(c.idleTimeout)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) handle(ctx context.Context, msg *tgbotapi.Message) {
	userID := "tg:" + strconv.FormatInt(msg.From.ID, 10)
	ctx = dialogue.WithChannel(ctx, "telegram")

	var out []dialogue.OutboundMessage
	if msg.IsCommand() {
		out = c.bot.HandleCommand(ctx, userID, msg.Command())
	} else {
		out = c.bot.HandleText(ctx, userID, msg.Text)
	}

	for _, reply := range out {
		if _, err := c.api.Send(render(msg.Chat.ID, reply)); err != nil {
			c.logger.Error("Failed to send telegram message", "error", err, "user_id", userID)
			return
		}
	}
}

// render turns quick replies into a one-time reply keyboard; a message
// without quick replies removes any keyboard left on screen.
func render(chatID int64, reply dialogue.OutboundMessage) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.QuickReplies) == 0 {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
		return msg
	}

	buttons := make([]tgbotapi.KeyboardButton, 0, len(reply.QuickReplies))
	for _, label := range reply.QuickReplies {
		buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
	}
	keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(buttons...))
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	msg.ReplyMarkup = keyboard
	return msg
}
