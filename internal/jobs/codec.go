package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodePayload marshals a typed payload for the given job type.
func EncodePayload(t string, payload any) (json.RawMessage, error) {
	if !IsKnownType(t) {
		return nil, ErrUnknownJobType
	}

	switch t {
	case TypeOnboardingWelcome:
		switch payload.(type) {
		case OnboardingWelcomePayload, *OnboardingWelcomePayload:
		default:
			return nil, fmt.Errorf("%w: wrong payload type for %s", ErrInvalidJobPayload, t)
		}
	}

	b, err := codec.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return json.RawMessage(b), nil
}

// DecodePayload unmarshals a raw payload into the typed struct for its job
// type and validates the fields the worker cannot proceed without.
func DecodePayload(t string, raw json.RawMessage) (any, error) {
	if !IsKnownType(t) {
		return nil, ErrUnknownJobType
	}

	if len(raw) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch t {
	case TypeOnboardingWelcome:
		var p OnboardingWelcomePayload

		if err := codec.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}

		if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.Email) == "" {
			return nil, ErrInvalidJobPayload
		}

		return p, nil

	default:
		return nil, ErrUnknownJobType
	}
}
