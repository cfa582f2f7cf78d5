package jobs

import "time"

// OnboardingWelcomePayload is enqueued in the signup transaction and
// dispatched by the worker strictly after commit. Keep it ID-based plus
// the two fields the notifier contract requires.
type OnboardingWelcomePayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName"`
	RequestedAt time.Time `json:"requestedAt"`
}
