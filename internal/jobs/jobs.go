package jobs

import "errors"

const (
	// TypeOnboardingWelcome fires the post-signup welcome notification.
	TypeOnboardingWelcome = "onboarding.welcome"
)

var (
	ErrUnknownJobType    = errors.New("unknown job type")
	ErrInvalidJobPayload = errors.New("invalid job payload")
)

func IsKnownType(t string) bool {
	switch t {
	case TypeOnboardingWelcome:
		return true
	default:
		return false
	}
}
