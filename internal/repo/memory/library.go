package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/loan"
	"github.com/openshelf/lendhub/internal/domain/user"
)

// Library is an in-memory implementation of the borrow workflow's stores.
// It mirrors the relational store's consistency contract: the copy
// decrement and the loan insert happen under one lock, and the decrement
// is conditional on availableCopies > 0. Used by tests and dev mode.
type Library struct {
	mu    sync.RWMutex
	users map[string]user.User
	books map[string]book.Book
	loans map[string]loan.Loan
}

func NewLibrary() *Library {
	return &Library{
		users: make(map[string]user.User),
		books: make(map[string]book.Book),
		loans: make(map[string]loan.Loan),
	}
}

func (l *Library) PutUser(u user.User) {
	l.mu.Lock()
	l.users[u.ID] = u
	l.mu.Unlock()
}

func (l *Library) PutBook(b book.Book) {
	l.mu.Lock()
	l.books[b.ID] = b
	l.mu.Unlock()
}

func (l *Library) GetByID(ctx context.Context, id string) (book.Book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.books[id]

	if !ok {
		return book.Book{}, book.ErrNotFound
	}

	return b, nil
}

// Users returns a view of the store satisfying borrow.UserStore.
func (l *Library) Users() *UserView { return &UserView{lib: l} }

type UserView struct {
	lib *Library
}

func (v *UserView) GetByID(ctx context.Context, id string) (user.User, error) {
	v.lib.mu.RLock()
	defer v.lib.mu.RUnlock()

	u, ok := v.lib.users[id]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (l *Library) HasActiveLoan(ctx context.Context, userID, bookID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.hasActiveLoanLocked(userID, bookID), nil
}

func (l *Library) hasActiveLoanLocked(userID, bookID string) bool {
	for _, rec := range l.loans {
		if rec.UserID == userID && rec.BookID == bookID && rec.Status == loan.StatusBorrowed {
			return true
		}
	}
	return false
}

func (l *Library) Borrow(ctx context.Context, userID, bookID string, now time.Time) (loan.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[bookID]

	if !ok {
		return loan.Loan{}, book.ErrNotFound
	}

	if l.hasActiveLoanLocked(userID, bookID) {
		return loan.Loan{}, loan.ErrAlreadyBorrowed
	}

	// Conditional decrement: the guard and the write are one critical
	// section, matching the relational store's UPDATE ... WHERE
	// available_copies > 0.
	if b.AvailableCopies <= 0 {
		return loan.Loan{}, loan.ErrNotAvailable
	}

	b.AvailableCopies--
	b.UpdatedAt = now
	l.books[bookID] = b

	rec := loan.New(userID, bookID, now)
	l.loans[rec.ID] = rec

	return rec, nil
}

func (l *Library) Return(ctx context.Context, userID, loanID string, now time.Time) (loan.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.loans[loanID]

	if !ok || rec.UserID != userID {
		return loan.Loan{}, loan.ErrNotFound
	}

	if rec.Status != loan.StatusBorrowed {
		return loan.Loan{}, loan.ErrAlreadyReturned
	}

	b, ok := l.books[rec.BookID]

	if !ok {
		return loan.Loan{}, book.ErrNotFound
	}

	if b.AvailableCopies < b.TotalCopies {
		b.AvailableCopies++
		b.UpdatedAt = now
		l.books[rec.BookID] = b
	}

	rec.Status = loan.StatusReturned

	if now.After(rec.DueAt) {
		rec.Status = loan.StatusLate
	}

	returnedAt := now
	rec.ReturnedAt = &returnedAt
	rec.UpdatedAt = now
	l.loans[loanID] = rec

	return rec, nil
}

func (l *Library) ListByUser(ctx context.Context, userID string) ([]loan.Loan, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]loan.Loan, 0)

	for _, rec := range l.loans {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}

	return out, nil
}

// ActiveLoanCount reports loans in BORROWED status for a book; tests use it
// to assert availableCopies == totalCopies - activeLoans.
func (l *Library) ActiveLoanCount(bookID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0

	for _, rec := range l.loans {
		if rec.BookID == bookID && rec.Status == loan.StatusBorrowed {
			n++
		}
	}

	return n
}
