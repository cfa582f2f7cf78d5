package borrow

import (
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/user"
)

// Human-readable denial reasons, surfaced verbatim to the client.
const (
	ReasonPendingApproval = "account pending approval"
	ReasonAlreadyBorrowed = "already borrowed"
	ReasonNoCopies        = "no copies available"
)

// Decision is the outcome of an eligibility check. Reason holds the
// highest-priority denial; Reasons holds every rule that failed, so the
// caller can log secondary denials the headline reason would otherwise hide.
type Decision struct {
	Eligible bool
	Reason   string
	Reasons  []string
}

// Evaluate combines account status, an existing active loan for this exact
// book, and copy availability into an allow/deny decision. It is pure: no
// I/O, no mutation, snapshots in, decision out. Rule order is fixed:
// approval, then duplicate loan, then availability.
func Evaluate(u user.StatusSnapshot, b book.AvailabilitySnapshot, hasActiveLoan bool) Decision {
	var reasons []string

	if !u.Approved {
		reasons = append(reasons, ReasonPendingApproval)
	}

	if hasActiveLoan {
		reasons = append(reasons, ReasonAlreadyBorrowed)
	}

	if b.AvailableCopies <= 0 {
		reasons = append(reasons, ReasonNoCopies)
	}

	if len(reasons) > 0 {
		return Decision{
			Eligible: false,
			Reason:   reasons[0],
			Reasons:  reasons,
		}
	}

	return Decision{Eligible: true}
}
