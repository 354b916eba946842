package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/nutribot/internal/dialogue"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	updates chan tgbotapi.Update

	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 32)}
}

func (a *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return a.updates
}

func (a *fakeAPI) StopReceivingUpdates() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		a.sent = append(a.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (a *fakeAPI) sentMessages() []tgbotapi.MessageConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), a.sent...)
}

type recordingConversation struct {
	mu    sync.Mutex
	calls []string
	delay time.Duration
}

func (c *recordingConversation) record(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, entry)
}

func (c *recordingConversation) HandleText(_ context.Context, userID, text string) []dialogue.OutboundMessage {
	time.Sleep(c.delay)
	c.record(userID + " text " + text)
	return []dialogue.OutboundMessage{{Text: "ok " + text, QuickReplies: []string{"Мужской", "Женский"}}}
}

func (c *recordingConversation) HandleCommand(_ context.Context, userID, command string) []dialogue.OutboundMessage {
	c.record(userID + " command " + command)
	return []dialogue.OutboundMessage{{Text: "cmd " + command}}
}

func (c *recordingConversation) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func textUpdate(fromID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: fromID * 10},
		From: &tgbotapi.User{ID: fromID},
	}}
}

func commandUpdate(fromID int64, command string) tgbotapi.Update {
	u := textUpdate(fromID, "/"+command)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return u
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startChannel(t *testing.T, api *fakeAPI, bot Conversation) (*Channel, context.CancelFunc, chan struct{}) {
	t.Helper()
	ch := NewChannel(api, bot, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ch, cancel, done
}

func TestChannelRoutesCommandsAndText(t *testing.T) {
	api := newFakeAPI()
	bot := &recordingConversation{}
	startChannel(t, api, bot)

	api.updates <- commandUpdate(7, "day")
	waitFor(t, func() bool { return len(api.sentMessages()) == 1 })
	api.updates <- textUpdate(7, "борщ")
	waitFor(t, func() bool { return len(api.sentMessages()) == 2 })

	calls := bot.snapshot()
	if calls[0] != "tg:7 command day" || calls[1] != "tg:7 text борщ" {
		t.Fatalf("unexpected calls %v", calls)
	}

	sent := api.sentMessages()
	if sent[0].ChatID != 70 || sent[0].Text != "cmd day" {
		t.Fatalf("unexpected first reply %+v", sent[0])
	}
	if _, ok := sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Fatalf("expected keyboard removal, got %T", sent[0].ReplyMarkup)
	}
	kb, ok := sent[1].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("expected reply keyboard, got %T", sent[1].ReplyMarkup)
	}
	if !kb.OneTimeKeyboard || len(kb.Keyboard) != 1 || len(kb.Keyboard[0]) != 2 || kb.Keyboard[0][0].Text != "Мужской" {
		t.Fatalf("unexpected keyboard %+v", kb)
	}
}

func TestChannelKeepsPerUserOrder(t *testing.T) {
	api := newFakeAPI()
	bot := &recordingConversation{delay: 5 * time.Millisecond}
	startChannel(t, api, bot)

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		api.updates <- textUpdate(1, text)
		api.updates <- textUpdate(2, text)
	}
	waitFor(t, func() bool { return len(bot.snapshot()) == 10 })

	var u1, u2 []string
	for _, c := range bot.snapshot() {
		switch c[:4] {
		case "tg:1":
			u1 = append(u1, c)
		case "tg:2":
			u2 = append(u2, c)
		}
	}
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		if u1[i] != "tg:1 text "+want || u2[i] != "tg:2 text "+want {
			t.Fatalf("out of order: %v / %v", u1, u2)
		}
	}
}

func TestChannelSkipsNonMessageUpdates(t *testing.T) {
	api := newFakeAPI()
	bot := &recordingConversation{}
	startChannel(t, api, bot)

	api.updates <- tgbotapi.Update{}
	api.updates <- textUpdate(3, "каша")
	waitFor(t, func() bool { return len(bot.snapshot()) == 1 })
}

func TestChannelStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	_, cancel, done := startChannel(t, api, &recordingConversation{})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if !api.stopped {
		t.Fatal("updates not stopped")
	}
}

func TestIdleWorkersExit(t *testing.T) {
	api := newFakeAPI()
	bot := &recordingConversation{}
	ch := NewChannel(api, bot, 0, nil)
	ch.idleTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	api.updates <- textUpdate(9, "яблоко")
	waitFor(t, func() bool { return len(bot.snapshot()) == 1 })
	waitFor(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.workers) == 0
	})
}

// gatedConversation holds user tg:1's turns until release is closed.
type gatedConversation struct {
	recordingConversation
	release chan struct{}
}

func (c *gatedConversation) HandleText(ctx context.Context, userID, text string) []dialogue.OutboundMessage {
	if userID == "tg:1" {
		select {
		case <-c.release:
		case <-ctx.Done():
		}
	}
	c.record(userID + " text " + text)
	return []dialogue.OutboundMessage{{Text: "ok " + text}}
}

func TestSlowUserDoesNotBlockOthers(t *testing.T) {
	api := newFakeAPI()
	bot := &gatedConversation{release: make(chan struct{})}
	_, cancel, done := startChannel(t, api, bot)

	// One turn in flight plus a full queue, then overflow.
	for i := 0; i < userQueueSize+4; i++ {
		api.updates <- textUpdate(1, "еда")
	}
	api.updates <- textUpdate(2, "яблоко")

	waitFor(t, func() bool {
		for _, c := range bot.snapshot() {
			if c == "tg:2 text яблоко" {
				return true
			}
		}
		return false
	})

	waitFor(t, func() bool {
		for _, m := range api.sentMessages() {
			if m.ChatID == 10 && m.Text == msgBusy {
				return true
			}
		}
		return false
	})
	for _, m := range api.sentMessages() {
		if m.ChatID == 20 && m.Text == msgBusy {
			t.Fatal("busy notice sent to the wrong user")
		}
	}

	close(bot.release)
	cancel()
	<-done
}
