package domain

import "time"

// DialogueState identifies where a user is inside a multi-turn dialogue.
type DialogueState string

// Profile dialogue states, followed by the food clarification state.
const (
	StateIdle                DialogueState = ""
	StateWaitGender          DialogueState = "wait_gender"
	StateWaitAge             DialogueState = "wait_age"
	StateWaitHeight          DialogueState = "wait_height"
	StateWaitWeight          DialogueState = "wait_weight"
	StateWaitActivity        DialogueState = "wait_activity"
	StateWaitGoal            DialogueState = "wait_goal"
	StateWaitConfirmation    DialogueState = "wait_confirmation"
	StateWaitCorrectionTopic DialogueState = "wait_correction_topic"
	StateWaitClarification   DialogueState = "wait_clarification"
)

// IsProfileState reports whether s belongs to the profile dialogue.
func (s DialogueState) IsProfileState() bool {
	switch s {
	case StateWaitGender, StateWaitAge, StateWaitHeight, StateWaitWeight,
		StateWaitActivity, StateWaitGoal, StateWaitConfirmation, StateWaitCorrectionTopic:
		return true
	}
	return false
}

// DialogueSession is the ephemeral per-user dialogue state.
type DialogueSession struct {
	UserID string
	State  DialogueState

	// Draft collects profile fields before they are written to the store.
	Draft Profile
	// Correcting is set once the user asked to change a confirmed value;
	// every corrected field then routes back through the goal step.
	Correcting bool

	// PendingFood is the original description awaiting clarification.
	PendingFood string

	UpdatedAt time.Time
}

// Active reports whether any dialogue currently owns the user's messages.
func (s *DialogueSession) Active() bool {
	return s != nil && s.State != StateIdle
}

// Reset clears all in-progress values.
func (s *DialogueSession) Reset() {
	s.State = StateIdle
	s.Draft = Profile{}
	s.Correcting = false
	s.PendingFood = ""
}
