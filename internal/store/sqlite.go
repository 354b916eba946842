package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	now   func() time.Time
	retry shared.RetryPolicy

	// mealLocks serializes meal recording per user so the aggregate
	// read-modify-write never interleaves for the same (user, date).
	mealLocks sync.Map
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return NewSQLiteWithClock(dbPath, time.Now)
}

// NewSQLiteWithClock creates a SQLite store that takes "today" from now.
func NewSQLiteWithClock(dbPath string, now func() time.Time) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if now == nil {
		now = time.Now
	}

	// WAL + busy timeout on every pooled connection; writers take the lock
	// up front so concurrent meal transactions queue instead of failing.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: now, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		gender TEXT NOT NULL,
		age INTEGER NOT NULL,
		height INTEGER NOT NULL,
		weight INTEGER NOT NULL,
		activity TEXT NOT NULL,
		goal TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		description TEXT NOT NULL,
		calories INTEGER NOT NULL DEFAULT 0,
		proteins INTEGER NOT NULL DEFAULT 0,
		fats INTEGER NOT NULL DEFAULT 0,
		carbs INTEGER NOT NULL DEFAULT 0,
		date TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meals_user_date ON meals(user_id, date, created_at);

	CREATE TABLE IF NOT EXISTS daily_summaries (
		user_id TEXT NOT NULL REFERENCES users(user_id),
		date TEXT NOT NULL,
		total_calories INTEGER NOT NULL DEFAULT 0,
		total_proteins INTEGER NOT NULL DEFAULT 0,
		total_fats INTEGER NOT NULL DEFAULT 0,
		total_carbs INTEGER NOT NULL DEFAULT 0,
		meals_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, date)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// ProfileExists reports whether the user has a stored profile.
func (s *SQLiteStore) ProfileExists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check profile: %w", err)
	}
	return true, nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, gender, age, height, weight, activity, goal, created_at
		FROM users WHERE user_id = ?`

	var p domain.Profile
	var gender, activity string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &gender, &p.Age, &p.HeightCM, &p.WeightKG, &activity, &p.Goal, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.Gender = domain.Gender(gender)
	p.Activity = domain.Activity(activity)
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// SaveProfile creates or replaces a profile. No history is kept.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *domain.Profile) error {
	if p == nil || p.UserID == "" || p.Gender == "" || p.Activity == "" || p.Goal == "" {
		return ErrProfileIncomplete
	}

	query := `
	INSERT INTO users (user_id, gender, age, height, weight, activity, goal, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		gender = excluded.gender,
		age = excluded.age,
		height = excluded.height,
		weight = excluded.weight,
		activity = excluded.activity,
		goal = excluded.goal,
		updated_at = excluded.updated_at`

	now := s.now().Unix()
	return shared.RetryOnConflict(ctx, s.retry, "save_profile", func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.UserID, string(p.Gender), p.Age, p.HeightCM, p.WeightKG,
			string(p.Activity), p.Goal, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) mealLock(userID string) *sync.Mutex {
	lock, _ := s.mealLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// RecordMeal appends a meal and folds it into the aggregate of the day at
// falls on, atomically.
func (s *SQLiteStore) RecordMeal(ctx context.Context, userID, description string, macros domain.Macros, at time.Time) (*domain.Meal, error) {
	mu := s.mealLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if at.IsZero() {
		at = s.now()
	}
	meal := &domain.Meal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Macros:      macros,
		Date:        at.Format(domain.DateLayout),
		CreatedAt:   at,
	}

	err := shared.RetryOnConflict(ctx, s.retry, "record_meal", func() error {
		return s.recordMealOnce(ctx, meal)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Meal recorded", "user_id", userID, "date", meal.Date, "calories", macros.Calories)
	return meal, nil
}

func (s *SQLiteStore) recordMealOnce(ctx context.Context, meal *domain.Meal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin meal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meals (id, user_id, description, calories, proteins, fats, carbs, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meal.ID, meal.UserID, meal.Description,
		meal.Macros.Calories, meal.Macros.Proteins, meal.Macros.Fats, meal.Macros.Carbs,
		meal.Date, meal.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert meal: %w", err)
	}

	ts := meal.CreatedAt.Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_summaries (
			user_id, date, total_calories, total_proteins, total_fats, total_carbs,
			meals_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			total_calories = daily_summaries.total_calories + excluded.total_calories,
			total_proteins = daily_summaries.total_proteins + excluded.total_proteins,
			total_fats = daily_summaries.total_fats + excluded.total_fats,
			total_carbs = daily_summaries.total_carbs + excluded.total_carbs,
			meals_count = daily_summaries.meals_count + 1,
			updated_at = excluded.updated_at`,
		meal.UserID, meal.Date,
		meal.Macros.Calories, meal.Macros.Proteins, meal.Macros.Fats, meal.Macros.Carbs,
		ts, ts,
	)
	if err != nil {
		return fmt.Errorf("update daily summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit meal transaction: %w", err)
	}
	return nil
}

// GetDailySummary returns the stored aggregate. When no aggregate row exists
// the totals are recomputed from meals, which only matters for databases
// written before daily_summaries existed.
func (s *SQLiteStore) GetDailySummary(ctx context.Context, userID, date string) (*domain.DailyAggregate, error) {
	agg := &domain.DailyAggregate{UserID: userID, Date: date}

	err := s.db.QueryRowContext(ctx, `
		SELECT total_calories, total_proteins, total_fats, total_carbs, meals_count
		FROM daily_summaries WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&agg.Calories, &agg.Proteins, &agg.Fats, &agg.Carbs, &agg.Meals)
	if err == nil {
		return agg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan daily summary: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(calories), 0), COALESCE(SUM(proteins), 0),
		       COALESCE(SUM(fats), 0), COALESCE(SUM(carbs), 0), COUNT(*)
		FROM meals WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&agg.Calories, &agg.Proteins, &agg.Fats, &agg.Carbs, &agg.Meals)
	if err != nil {
		return nil, fmt.Errorf("recompute daily summary: %w", err)
	}
	if agg.Meals > 0 {
		slog.Warn("Daily summary missing, recomputed from meals", "user_id", userID, "date", date)
	}
	return agg, nil
}

// GetMeals returns the day's meals in creation order.
func (s *SQLiteStore) GetMeals(ctx context.Context, userID, date string) ([]domain.Meal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, description, calories, proteins, fats, carbs, date, created_at
		FROM meals WHERE user_id = ? AND date = ?
		ORDER BY created_at, rowid`,
		userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query meals: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close meal rows", "error", closeErr)
		}
	}()

	var meals []domain.Meal
	for rows.Next() {
		var m domain.Meal
		var createdAt int64
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.Description,
			&m.Macros.Calories, &m.Macros.Proteins, &m.Macros.Fats, &m.Macros.Carbs,
			&m.Date, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan meal row: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt)
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meals: %w", err)
	}

	return meals, nil
}
