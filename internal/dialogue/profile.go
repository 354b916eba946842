package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/nutrition"
)

// correctionTopics maps keywords to the state that re-asks the field, in
// priority order.
var correctionTopics = []struct {
	keyword string
	state   domain.DialogueState
}{
	{"цел", domain.StateWaitGoal},
	{"возраст", domain.StateWaitAge},
	{"рост", domain.StateWaitHeight},
	{"вес", domain.StateWaitWeight},
	{"активн", domain.StateWaitActivity},
	{"пол", domain.StateWaitGender},
}

func (b *Bot) startProfile(ctx context.Context, s *domain.DialogueSession) []OutboundMessage {
	exists, err := b.repo.ProfileExists(ctx, s.UserID)
	if err != nil {
		slog.Error("Failed to check profile", "user_id", s.UserID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}
	if exists {
		return []OutboundMessage{text(msgProfileExists)}
	}

	s.Reset()
	s.Draft.UserID = s.UserID
	s.State = domain.StateWaitGender
	return []OutboundMessage{promptFor(domain.StateWaitGender)}
}

func (b *Bot) handleProfileInput(ctx context.Context, s *domain.DialogueSession, input string) []OutboundMessage {
	switch s.State {
	case domain.StateWaitGender:
		g, err := domain.ParseGender(input)
		if err != nil {
			return []OutboundMessage{withReplies(msgInvalidGender, domain.GenderLabels...)}
		}
		s.Draft.Gender = g
		return b.advance(s, domain.StateWaitAge)

	case domain.StateWaitAge:
		n, err := domain.ParseAge(input)
		if err != nil {
			return []OutboundMessage{text(msgInvalidAge)}
		}
		s.Draft.Age = n
		return b.advance(s, domain.StateWaitHeight)

	case domain.StateWaitHeight:
		n, err := domain.ParseHeight(input)
		if err != nil {
			return []OutboundMessage{text(msgInvalidHeight)}
		}
		s.Draft.HeightCM = n
		return b.advance(s, domain.StateWaitWeight)

	case domain.StateWaitWeight:
		n, err := domain.ParseWeight(input)
		if err != nil {
			return []OutboundMessage{text(msgInvalidWeight)}
		}
		s.Draft.WeightKG = n
		return b.advance(s, domain.StateWaitActivity)

	case domain.StateWaitActivity:
		a, err := domain.ParseActivity(input)
		if err != nil {
			return []OutboundMessage{withReplies(msgInvalidActiv, domain.ActivityLabels...)}
		}
		s.Draft.Activity = a
		return b.advance(s, domain.StateWaitGoal)

	case domain.StateWaitGoal:
		goal, err := domain.ParseGoal(input)
		if err != nil {
			return []OutboundMessage{text(msgInvalidGoal)}
		}
		s.Draft.Goal = goal
		return b.saveAndConfirm(ctx, s)

	case domain.StateWaitConfirmation:
		switch {
		case strings.EqualFold(input, ReplyConfirm):
			s.Reset()
			return []OutboundMessage{text(msgProfileSaved)}
		case strings.EqualFold(input, ReplyChange):
			s.State = domain.StateWaitCorrectionTopic
			return []OutboundMessage{text(msgAskCorrection)}
		default:
			return []OutboundMessage{withReplies(msgConfirmHint, ReplyConfirm, ReplyChange)}
		}

	case domain.StateWaitCorrectionTopic:
		s.Correcting = true
		s.State = correctionState(input)
		return []OutboundMessage{promptFor(s.State)}
	}

	slog.Warn("Unhandled profile state", "user_id", s.UserID, "state", string(s.State))
	s.Reset()
	return []OutboundMessage{text(msgInternalError)}
}

// advance moves to next, or back to the goal step while correcting.
func (b *Bot) advance(s *domain.DialogueSession, next domain.DialogueState) []OutboundMessage {
	if s.Correcting {
		next = domain.StateWaitGoal
	}
	s.State = next
	return []OutboundMessage{promptFor(next)}
}

// saveAndConfirm persists the draft, then shows the targets computed from
// the stored profile and asks for confirmation.
func (b *Bot) saveAndConfirm(ctx context.Context, s *domain.DialogueSession) []OutboundMessage {
	draft := s.Draft
	draft.UserID = s.UserID
	if err := b.repo.SaveProfile(ctx, &draft); err != nil {
		slog.Error("Failed to save profile", "user_id", s.UserID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}

	profile, err := b.repo.GetProfile(ctx, s.UserID)
	if err != nil || profile == nil {
		slog.Error("Failed to reload saved profile", "user_id", s.UserID, "error", err)
		return []OutboundMessage{text(msgStorageFailed)}
	}

	s.Correcting = false
	s.State = domain.StateWaitConfirmation
	targets := nutrition.CalculateTargets(profile)
	return []OutboundMessage{
		text(formatTargets(profile, targets)),
		withReplies(msgConfirmQuestion, ReplyConfirm, ReplyChange),
	}
}

func correctionState(input string) domain.DialogueState {
	lower := strings.ToLower(input)
	for _, topic := range correctionTopics {
		if strings.Contains(lower, topic.keyword) {
			return topic.state
		}
	}
	return domain.StateWaitGoal
}

func promptFor(state domain.DialogueState) OutboundMessage {
	switch state {
	case domain.StateWaitGender:
		return withReplies(msgAskGender, domain.GenderLabels...)
	case domain.StateWaitAge:
		return text(msgAskAge)
	case domain.StateWaitHeight:
		return text(msgAskHeight)
	case domain.StateWaitWeight:
		return text(msgAskWeight)
	case domain.StateWaitActivity:
		return withReplies(msgAskActivity, domain.ActivityLabels...)
	default:
		return text(msgAskGoal)
	}
}
