// Package domain contains core domain types for the nutrition assistant.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Gender is one of the two labels offered during profile setup.
type Gender string

const (
	GenderMale   Gender = "Мужской"
	GenderFemale Gender = "Женский"
)

// Activity is the self-reported activity level.
type Activity string

const (
	ActivityLow    Activity = "Низкий"
	ActivityMedium Activity = "Средний"
	ActivityHigh   Activity = "Высокий"
)

// Accepted ranges for numeric profile fields (inclusive).
const (
	MinAge        = 10
	MaxAge        = 100
	MinHeightCM   = 100
	MaxHeightCM   = 250
	MinWeightKG   = 30
	MaxWeightKG   = 300
	MinGoalLength = 3
)

// GenderLabels lists the gender replies in display order.
var GenderLabels = []string{string(GenderMale), string(GenderFemale)}

// ActivityLabels lists the activity replies in display order.
var ActivityLabels = []string{string(ActivityLow), string(ActivityMedium), string(ActivityHigh)}

// Profile is the biometric profile of a single user.
type Profile struct {
	UserID    string    `json:"user_id"`
	Gender    Gender    `json:"gender"`
	Age       int       `json:"age"`
	HeightCM  int       `json:"height_cm"`
	WeightKG  int       `json:"weight_kg"`
	Activity  Activity  `json:"activity"`
	Goal      string    `json:"goal"`
	CreatedAt time.Time `json:"created_at"`
}

// IsMale reports whether the male BMR branch applies.
func (p *Profile) IsMale() bool {
	return strings.EqualFold(string(p.Gender), string(GenderMale))
}

// ValidationError describes rejected user input for a single profile field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseGender accepts only the exact gender labels.
func ParseGender(text string) (Gender, error) {
	for _, label := range GenderLabels {
		if text == label {
			return Gender(label), nil
		}
	}
	return "", &ValidationError{Field: "gender", Reason: "unknown label"}
}

// ParseActivity accepts only the exact activity labels.
func ParseActivity(text string) (Activity, error) {
	for _, label := range ActivityLabels {
		if text == label {
			return Activity(label), nil
		}
	}
	return "", &ValidationError{Field: "activity", Reason: "unknown label"}
}

// ParseAge parses an age in years.
func ParseAge(text string) (int, error) {
	return parseBounded("age", text, MinAge, MaxAge)
}

// ParseHeight parses a height in centimetres.
func ParseHeight(text string) (int, error) {
	return parseBounded("height", text, MinHeightCM, MaxHeightCM)
}

// ParseWeight parses a weight in kilograms.
func ParseWeight(text string) (int, error) {
	return parseBounded("weight", text, MinWeightKG, MaxWeightKG)
}

// ParseGoal accepts any goal text of at least MinGoalLength characters.
func ParseGoal(text string) (string, error) {
	goal := strings.TrimSpace(text)
	if utf8.RuneCountInString(goal) < MinGoalLength {
		return "", &ValidationError{Field: "goal", Reason: "too short"}
	}
	return goal, nil
}

func parseBounded(field, text string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "not an integer"}
	}
	if n < lo || n > hi {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return n, nil
}
