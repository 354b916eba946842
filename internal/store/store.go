// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
)

// ErrProfileIncomplete is returned when a profile is missing required fields.
var ErrProfileIncomplete = errors.New("profile is incomplete")

// Repository defines the persistence operations the dialogue layer needs.
type Repository interface {
	// ProfileExists reports whether the user has a stored profile.
	ProfileExists(ctx context.Context, userID string) (bool, error)

	// GetProfile returns the stored profile, or nil if there is none.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// SaveProfile creates or replaces the user's profile.
	SaveProfile(ctx context.Context, profile *domain.Profile) error

	// RecordMeal appends a meal logged at the given time and adds its macros
	// to that day's aggregate in the same transaction. A zero time means now.
	RecordMeal(ctx context.Context, userID, description string, macros domain.Macros, at time.Time) (*domain.Meal, error)

	// GetDailySummary returns the aggregate for a day; a day without meals
	// yields an all-zero aggregate.
	GetDailySummary(ctx context.Context, userID, date string) (*domain.DailyAggregate, error)

	// GetMeals returns the day's meals ordered by creation time.
	GetMeals(ctx context.Context, userID, date string) ([]domain.Meal, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
