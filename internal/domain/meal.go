package domain

import "time"

// DateLayout is the calendar-day key used for meals and daily aggregates.
const DateLayout = "2006-01-02"

// Macros holds the four tracked quantities (KBJU).
type Macros struct {
	Calories int `json:"calories"`
	Proteins int `json:"proteins"`
	Fats     int `json:"fats"`
	Carbs    int `json:"carbs"`
}

// Add returns the field-wise sum of m and o.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Proteins: m.Proteins + o.Proteins,
		Fats:     m.Fats + o.Fats,
		Carbs:    m.Carbs + o.Carbs,
	}
}

// Meal is one recorded food entry. Meals are never modified after insert.
type Meal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Macros      Macros    `json:"macros"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// DailyAggregate is the running total for one user on one calendar day.
type DailyAggregate struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Macros
	Meals int `json:"meals"`
}

// TargetResult is derived from a Profile on demand and never persisted.
type TargetResult struct {
	Macros
	BMR         int    `json:"bmr"`
	TDEE        int    `json:"tdee"`
	Explanation string `json:"explanation"`
}
