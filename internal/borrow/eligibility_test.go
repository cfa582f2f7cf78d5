package borrow

import (
	"reflect"
	"testing"

	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/user"
)

func TestEvaluate(t *testing.T) {
	approved := user.StatusSnapshot{UserID: "u1", Approved: true}
	pending := user.StatusSnapshot{UserID: "u1", Approved: false}

	inStock := book.AvailabilitySnapshot{BookID: "b1", AvailableCopies: 2, TotalCopies: 3}
	outOfStock := book.AvailabilitySnapshot{BookID: "b1", AvailableCopies: 0, TotalCopies: 3}

	cases := []struct {
		name          string
		user          user.StatusSnapshot
		book          book.AvailabilitySnapshot
		hasActiveLoan bool
		wantEligible  bool
		wantReason    string
		wantReasons   []string
	}{
		{
			name:         "approved user, copies available",
			user:         approved,
			book:         inStock,
			wantEligible: true,
		},
		{
			name:        "pending account",
			user:        pending,
			book:        inStock,
			wantReason:  ReasonPendingApproval,
			wantReasons: []string{ReasonPendingApproval},
		},
		{
			name:          "duplicate loan",
			user:          approved,
			book:          inStock,
			hasActiveLoan: true,
			wantReason:    ReasonAlreadyBorrowed,
			wantReasons:   []string{ReasonAlreadyBorrowed},
		},
		{
			name:        "no copies",
			user:        approved,
			book:        outOfStock,
			wantReason:  ReasonNoCopies,
			wantReasons: []string{ReasonNoCopies},
		},
		{
			name:          "pending wins over duplicate loan",
			user:          pending,
			book:          inStock,
			hasActiveLoan: true,
			wantReason:    ReasonPendingApproval,
			wantReasons:   []string{ReasonPendingApproval, ReasonAlreadyBorrowed},
		},
		{
			name:          "every rule fails, all reasons reported",
			user:          pending,
			book:          outOfStock,
			hasActiveLoan: true,
			wantReason:    ReasonPendingApproval,
			wantReasons:   []string{ReasonPendingApproval, ReasonAlreadyBorrowed, ReasonNoCopies},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.user, tc.book, tc.hasActiveLoan)

			if d.Eligible != tc.wantEligible {
				t.Fatalf("Eligible = %v, want %v", d.Eligible, tc.wantEligible)
			}

			if d.Reason != tc.wantReason {
				t.Fatalf("Reason = %q, want %q", d.Reason, tc.wantReason)
			}

			if !reflect.DeepEqual(d.Reasons, tc.wantReasons) {
				t.Fatalf("Reasons = %v, want %v", d.Reasons, tc.wantReasons)
			}
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	u := user.StatusSnapshot{UserID: "u1", Approved: true}
	b := book.AvailabilitySnapshot{BookID: "b1", AvailableCopies: 1, TotalCopies: 1}

	first := Evaluate(u, b, false)
	second := Evaluate(u, b, false)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same inputs produced different decisions: %+v vs %+v", first, second)
	}
}
