package borrow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/loan"
	"github.com/openshelf/lendhub/internal/domain/user"
)

// UserStore supplies the account snapshot for the eligibility check.
type UserStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// CatalogStore supplies the availability snapshot.
type CatalogStore interface {
	GetByID(ctx context.Context, id string) (book.Book, error)
}

// Ledger persists loans. Borrow must execute the copy decrement and the
// loan insert as one atomic unit, and must itself re-check availability at
// the point of mutation; the service-level eligibility check is only a
// snapshot and can lose a race.
type Ledger interface {
	HasActiveLoan(ctx context.Context, userID, bookID string) (bool, error)
	Borrow(ctx context.Context, userID, bookID string, now time.Time) (loan.Loan, error)
	Return(ctx context.Context, userID, loanID string, now time.Time) (loan.Loan, error)
	ListByUser(ctx context.Context, userID string) ([]loan.Loan, error)
}

// Result reports a successful borrow.
type Result struct {
	LoanID  string    `json:"loanId"`
	DueDate time.Time `json:"dueDate"`
}

// Service orchestrates the borrow workflow: snapshot fetch, eligibility,
// transactional mutation. It holds no mutable state of its own; correctness
// under concurrent borrows rests entirely on the Ledger's guarantees.
type Service struct {
	users   UserStore
	catalog CatalogStore
	ledger  Ledger
	log     *slog.Logger
	now     func() time.Time
}

func NewService(users UserStore, catalog CatalogStore, ledger Ledger, log *slog.Logger) *Service {
	return &Service{
		users:   users,
		catalog: catalog,
		ledger:  ledger,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock; tests use it to pin due dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Borrow(ctx context.Context, userID, bookID string) (Result, error) {
	u, err := s.users.GetByID(ctx, userID)

	if err != nil {
		return Result{}, err
	}

	b, err := s.catalog.GetByID(ctx, bookID)

	if err != nil {
		return Result{}, err
	}

	active, err := s.ledger.HasActiveLoan(ctx, userID, bookID)

	if err != nil {
		return Result{}, err
	}

	decision := Evaluate(u.Snapshot(), b.Snapshot(), active)

	if !decision.Eligible {
		if len(decision.Reasons) > 1 {
			s.log.InfoContext(ctx, "borrow denied",
				"user_id", userID,
				"book_id", bookID,
				"reasons", strings.Join(decision.Reasons, "; "),
			)
		}

		return Result{}, denialError(decision.Reason)
	}

	// The ledger re-checks availability under the transaction; a concurrent
	// borrower taking the last copy between our snapshot and this call
	// surfaces here as ErrNotAvailable, never as a negative copy count.
	l, err := s.ledger.Borrow(ctx, userID, bookID, s.now())

	if err != nil {
		return Result{}, err
	}

	return Result{LoanID: l.ID, DueDate: l.DueAt}, nil
}

func (s *Service) Return(ctx context.Context, userID, loanID string) (loan.Loan, error) {
	return s.ledger.Return(ctx, userID, loanID, s.now())
}

func (s *Service) ListLoans(ctx context.Context, userID string) ([]loan.Loan, error) {
	return s.ledger.ListByUser(ctx, userID)
}

func denialError(reason string) error {
	switch reason {
	case ReasonPendingApproval:
		return loan.ErrAccountPending
	case ReasonAlreadyBorrowed:
		return loan.ErrAlreadyBorrowed
	default:
		return loan.ErrNotAvailable
	}
}
