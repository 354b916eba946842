package dialogue

import (
	"context"
	"log/slog"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/nutrition"
)

// requireProfile loads the profile or returns the reply to send instead.
func (b *Bot) requireProfile(ctx context.Context, userID string) (*domain.Profile, []OutboundMessage) {
	profile, err := b.repo.GetProfile(ctx, userID)
	if err != nil {
		slog.Error("Failed to load profile", "user_id", userID, "error", err)
		return nil, []OutboundMessage{text(msgStorageFailed)}
	}
	if profile == nil {
		return nil, []OutboundMessage{text(msgNeedProfile)}
	}
	return profile, nil
}

func (b *Bot) showTarget(ctx context.Context, userID string) []OutboundMessage {
	profile, reply := b.requireProfile(ctx, userID)
	if profile == nil {
		return reply
	}
	return []OutboundMessage{text(formatTargets(profile, nutrition.CalculateTargets(profile)))}
}

func (b *Bot) showDailySummary(ctx context.Context, userID string) []OutboundMessage {
	profile, reply := b.requireProfile(ctx, userID)
	if profile == nil {
		return reply
	}

	day, err := b.repo.GetDailySummary(ctx, userID, b.today())
	if err != nil {
		slog.Error("Failed to load daily summary", "user_id", userID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}
	return []OutboundMessage{text(formatDailySummary(day, nutrition.CalculateTargets(profile)))}
}

func (b *Bot) showMeals(ctx context.Context, userID string) []OutboundMessage {
	profile, reply := b.requireProfile(ctx, userID)
	if profile == nil {
		return reply
	}

	date := b.today()
	meals, err := b.repo.GetMeals(ctx, userID, date)
	if err != nil {
		slog.Error("Failed to load meals", "user_id", userID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}
	if len(meals) == 0 {
		return []OutboundMessage{text(msgNoMeals)}
	}
	return []OutboundMessage{text(formatMeals(date, meals))}
}
