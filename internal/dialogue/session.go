package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
)

const sweepInterval = 5 * time.Minute

// SessionManager owns the in-memory dialogue sessions. Acquire gives the
// caller exclusive use of one user's session until release is called, so a
// user's turns are processed one at a time while other users proceed.
type SessionManager struct {
	mu    sync.Mutex
	slots map[string]*sessionSlot
	now   func() time.Time
}

type sessionSlot struct {
	turn sync.Mutex
	// refs counts callers holding or waiting for turn. Guarded by
	// SessionManager.mu.
	refs    int
	session domain.DialogueSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		slots: make(map[string]*sessionSlot),
		now:   now,
	}
}

// Acquire blocks until the user's session is free and returns it with a
// release func. The session must not be used after release.
func (m *SessionManager) Acquire(userID string) (*domain.DialogueSession, func()) {
	m.mu.Lock()
	slot, ok := m.slots[userID]
	if !ok {
		slot = &sessionSlot{session: domain.DialogueSession{UserID: userID}}
		m.slots[userID] = slot
	}
	slot.refs++
	m.mu.Unlock()

	slot.turn.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			slot.session.UpdatedAt = m.now()
			slot.turn.Unlock()

			m.mu.Lock()
			defer m.mu.Unlock()
			slot.refs--
			if slot.refs == 0 && !slot.session.Active() {
				delete(m.slots, userID)
			}
		})
	}
	return &slot.session, release
}

// Snapshot returns a copy of the user's current session.
func (m *SessionManager) Snapshot(userID string) domain.DialogueSession {
	s, release := m.Acquire(userID)
	defer release()
	return *s
}

// Len returns the number of tracked sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Sweep evicts sessions idle for longer than ttl. Sessions with a turn in
// flight are skipped.
func (m *SessionManager) Sweep(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	evicted := 0
	for userID, slot := range m.slots {
		if slot.refs > 0 {
			continue
		}
		if !slot.session.Active() || slot.session.UpdatedAt.Before(cutoff) {
			slog.Debug("Dialogue session evicted",
				"user_id", userID,
				"state", string(slot.session.State))
			delete(m.slots, userID)
			evicted++
		}
	}
	return evicted
}

// StartSweeper periodically evicts abandoned sessions until ctx is done.
// A non-positive ttl disables it.
func (m *SessionManager) StartSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		slog.Info("Session sweeper disabled")
		return
	}

	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(ttl); n > 0 {
					slog.Info("Session sweeper evicted sessions", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
