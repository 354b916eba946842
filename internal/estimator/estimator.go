// Package estimator asks a text-generation service for nutrition estimates.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("estimator returned empty response")
	// ErrNotConfigured is returned by Disabled.
	ErrNotConfigured = errors.New("estimator is not configured")
)

// Estimator turns a prompt into free text describing nutrition content.
type Estimator interface {
	Estimate(ctx context.Context, prompt string) (string, error)
}

// SystemPrompt frames every request as a KBJU estimate.
const SystemPrompt = "Ты нутрициолог. Оцени пищевую ценность блюда. " +
	"Отвечай строго в формате: Калории: N ккал, Белки: N г, Жиры: N г, Углеводы: N г. " +
	"Если количество не указано, исходи из средней порции."

// BuildPrompt builds the user prompt for a food description.
func BuildPrompt(description string) string {
	return fmt.Sprintf("Оцени КБЖУ для: %s", strings.TrimSpace(description))
}

// Disabled is used when no API key is configured. Every call fails, which
// the dialogue reports as a retry-later message.
type Disabled struct{}

// Estimate always returns ErrNotConfigured.
func (Disabled) Estimate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Ensure implementations satisfy Estimator.
var (
	_ Estimator = (*OpenAIClient)(nil)
	_ Estimator = Disabled{}
)
