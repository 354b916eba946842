package dialogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
)

var errFakeStorage = errors.New("fake storage failure")

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	meals    map[string][]domain.Meal
	now      func() time.Time

	saves   int
	records int
	failAll bool
}

func newFakeRepo(now func() time.Time) *fakeRepo {
	return &fakeRepo{
		profiles: make(map[string]domain.Profile),
		meals:    make(map[string][]domain.Meal),
		now:      now,
	}
}

func (r *fakeRepo) ProfileExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, errFakeStorage
	}
	_, ok := r.profiles[userID]
	return ok, nil
}

func (r *fakeRepo) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errFakeStorage
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeRepo) SaveProfile(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errFakeStorage
	}
	r.saves++
	r.profiles[p.UserID] = *p
	return nil
}

func (r *fakeRepo) RecordMeal(_ context.Context, userID, description string, macros domain.Macros, at time.Time) (*domain.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errFakeStorage
	}
	r.records++
	if at.IsZero() {
		at = r.now()
	}
	m := domain.Meal{
		UserID:      userID,
		Description: description,
		Macros:      macros,
		Date:        at.Format(domain.DateLayout),
		CreatedAt:   at,
	}
	r.meals[userID] = append(r.meals[userID], m)
	return &m, nil
}

func (r *fakeRepo) GetDailySummary(_ context.Context, userID, date string) (*domain.DailyAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errFakeStorage
	}
	agg := &domain.DailyAggregate{UserID: userID, Date: date}
	for _, m := range r.meals[userID] {
		if m.Date == date {
			agg.Macros = agg.Macros.Add(m.Macros)
			agg.Meals++
		}
	}
	return agg, nil
}

func (r *fakeRepo) GetMeals(_ context.Context, userID, date string) ([]domain.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errFakeStorage
	}
	var out []domain.Meal
	for _, m := range r.meals[userID] {
		if m.Date == date {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }
func (r *fakeRepo) Close() error               { return nil }

func (r *fakeRepo) mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves + r.records
}

// fakeEstimator answers from a queue of canned responses.
type fakeEstimator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	block     chan struct{}
	entered   chan struct{}
}

func (e *fakeEstimator) Estimate(ctx context.Context, prompt string) (string, error) {
	if e.entered != nil {
		select {
		case e.entered <- struct{}{}:
		default:
		}
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, prompt)
	i := len(e.prompts) - 1
	if i < len(e.errs) && e.errs[i] != nil {
		return "", e.errs[i]
	}
	if i < len(e.responses) {
		return e.responses[i], nil
	}
	return "", nil
}

func (e *fakeEstimator) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prompts)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	bot   *Bot
	repo  *fakeRepo
	est   *fakeEstimator
	clock *testClock
}

func newHarness() *harness {
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)}
	repo := newFakeRepo(clock.Now)
	est := &fakeEstimator{}
	bot := NewBot(repo, est, NewSessionManager(clock.Now), WithClock(clock.Now))
	return &harness{bot: bot, repo: repo, est: est, clock: clock}
}

func (h *harness) say(userID, text string) []OutboundMessage {
	return h.bot.HandleText(context.Background(), userID, text)
}

func (h *harness) state(userID string) domain.DialogueState {
	return h.bot.Sessions().Snapshot(userID).State
}

// seedProfile stores a complete profile directly.
func (h *harness) seedProfile(userID string) {
	h.repo.profiles[userID] = domain.Profile{
		UserID:   userID,
		Gender:   domain.GenderMale,
		Age:      30,
		HeightCM: 180,
		WeightKG: 80,
		Activity: domain.ActivityMedium,
		Goal:     "поддержание",
	}
}
