package conversation

import (
	"errors"
	"time"
)

// surveyInterval is the message-count spacing between survey prompts.
// Trigger points land after the 9th, 17th, 25th, ... message — every 8
// messages following the initial greeting. Tunable, not load-bearing.
const surveyInterval = 8

// ShouldTriggerSurvey reports whether the engagement survey should appear:
// the conversation has real length, the count sits on an interval boundary,
// the assistant just finished a turn, and the survey is neither already
// showing nor already submitted this session.
func ShouldTriggerSurvey(messageCount int, lastRole Role, visible, submitted bool) bool {
	return messageCount > 2 &&
		(messageCount-1)%surveyInterval == 0 &&
		lastRole == RoleAssistant &&
		!visible &&
		!submitted
}

// DissatisfactionReasons are the fixed tags offered when a rating falls
// below the satisfaction threshold.
var DissatisfactionReasons = []string{
	"Didn't understand me",
	"Unhelpful answer",
	"Slow response",
	"Other",
}

// lowRatingThreshold: ratings below this expose the reason tags.
const lowRatingThreshold = 4

// ThankYouDuration is how long the post-submit thank-you state shows before
// the form dismisses itself.
const ThankYouDuration = 2 * time.Second

// ErrNoRating is returned when submitting a survey without a rating.
var ErrNoRating = errors.New("conversation: survey rating required")

// SurveyResult is the payload of a submitted survey.
type SurveyResult struct {
	Rating  int
	Reasons []string
}

// SurveyForm is the state machine behind the satisfaction prompt: pick a
// rating 1-5, optionally tag reasons when dissatisfied, submit once.
type SurveyForm struct {
	rating    int
	reasons   []string
	submitted bool
}

// NewSurveyForm returns an empty form.
func NewSurveyForm() *SurveyForm {
	return &SurveyForm{}
}

// SelectRating sets the rating. Values outside 1-5 are rejected. Raising the
// rating back to the satisfied range drops any tagged reasons.
func (f *SurveyForm) SelectRating(rating int) error {
	if f.submitted {
		return errors.New("conversation: survey already submitted")
	}
	if rating < 1 || rating > 5 {
		return errors.New("conversation: rating must be between 1 and 5")
	}
	f.rating = rating
	if rating >= lowRatingThreshold {
		f.reasons = nil
	}
	return nil
}

// Rating returns the currently selected rating, 0 if none.
func (f *SurveyForm) Rating() int {
	return f.rating
}

// ShowsReasons reports whether the dissatisfaction tags should be offered.
func (f *SurveyForm) ShowsReasons() bool {
	return f.rating > 0 && f.rating < lowRatingThreshold
}

// ToggleReason adds or removes a dissatisfaction tag. Unknown tags and tags
// while satisfied are ignored.
func (f *SurveyForm) ToggleReason(reason string) {
	if !f.ShowsReasons() {
		return
	}
	known := false
	for _, r := range DissatisfactionReasons {
		if r == reason {
			known = true
			break
		}
	}
	if !known {
		return
	}
	for i, r := range f.reasons {
		if r == reason {
			f.reasons = append(f.reasons[:i], f.reasons[i+1:]...)
			return
		}
	}
	f.reasons = append(f.reasons, reason)
}

// Reasons returns the tagged reasons in selection order.
func (f *SurveyForm) Reasons() []string {
	out := make([]string, len(f.reasons))
	copy(out, f.reasons)
	return out
}

// Submit finalizes the form. A rating is required; submitting twice fails.
// After Submit the form is in its terminal thank-you state.
func (f *SurveyForm) Submit() (SurveyResult, error) {
	if f.submitted {
		return SurveyResult{}, errors.New("conversation: survey already submitted")
	}
	if f.rating == 0 {
		return SurveyResult{}, ErrNoRating
	}
	f.submitted = true
	return SurveyResult{Rating: f.rating, Reasons: f.Reasons()}, nil
}

// Submitted reports whether the form reached its terminal state.
func (f *SurveyForm) Submitted() bool {
	return f.submitted
}
