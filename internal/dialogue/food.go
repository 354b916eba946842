package dialogue

import (
	"context"
	"log/slog"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/estimator"
	"github.com/ashureev/nutribot/internal/nutrition"
)

// analyzeFood is the one-shot food path: estimate, extract, then record or
// ask for a single clarification when no calories were found.
func (b *Bot) analyzeFood(ctx context.Context, s *domain.DialogueSession, description string) []OutboundMessage {
	if !isFoodText(description) {
		return []OutboundMessage{text(msgTooShort)}
	}

	exists, err := b.repo.ProfileExists(ctx, s.UserID)
	if err != nil {
		slog.Error("Failed to check profile", "user_id", s.UserID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}
	if !exists {
		return []OutboundMessage{text(msgNeedProfile)}
	}

	macros, err := b.estimate(ctx, s.UserID, description)
	if err != nil {
		return []OutboundMessage{text(msgEstimatorFailed)}
	}

	if macros.Calories == 0 {
		s.PendingFood = description
		s.State = domain.StateWaitClarification
		return []OutboundMessage{text(msgClarify)}
	}

	return b.recordAndReport(ctx, s.UserID, description, macros)
}

// handleClarification runs the second and final round. The session is
// cleared whatever the outcome.
func (b *Bot) handleClarification(ctx context.Context, s *domain.DialogueSession, clarification string) []OutboundMessage {
	description := s.PendingFood + ", " + clarification
	s.Reset()

	macros, err := b.estimate(ctx, s.UserID, description)
	if err != nil {
		return []OutboundMessage{text(msgEstimatorFailed)}
	}
	return b.recordAndReport(ctx, s.UserID, description, macros)
}

func (b *Bot) estimate(ctx context.Context, userID, description string) (domain.Macros, error) {
	resp, err := b.estimator.Estimate(ctx, estimator.BuildPrompt(description))
	if err != nil {
		slog.Error("Estimator call failed", "user_id", userID, "error", err)
		return domain.Macros{}, err
	}
	return b.extractor.Extract(resp), nil
}

func (b *Bot) recordAndReport(ctx context.Context, userID, description string, macros domain.Macros) []OutboundMessage {
	// One timestamp dates both the write and the read-back.
	at := b.now()
	if _, err := b.repo.RecordMeal(ctx, userID, description, macros, at); err != nil {
		slog.Error("Failed to record meal", "user_id", userID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}

	day, err := b.repo.GetDailySummary(ctx, userID, at.Format(domain.DateLayout))
	if err != nil {
		slog.Warn("Failed to load daily summary", "user_id", userID, "error", err)
		day = nil
	}

	var target domain.TargetResult
	profile, err := b.repo.GetProfile(ctx, userID)
	if err != nil {
		slog.Warn("Failed to load profile for progress", "user_id", userID, "error", err)
	} else if profile != nil {
		target = nutrition.CalculateTargets(profile)
	}

	return []OutboundMessage{text(formatMealRecorded(description, macros, day, target))}
}
