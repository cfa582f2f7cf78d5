package borrow_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/lendhub/internal/borrow"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/loan"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/repo/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedUser(id string) user.User {
	return user.User{ID: id, FullName: "Reader " + id, Email: id + "@example.edu", Status: user.StatusApproved, Role: user.RoleUser}
}

func seededLibrary(t *testing.T, copies int) (*memory.Library, book.Book) {
	t.Helper()

	lib := memory.NewLibrary()

	b := book.Book{
		ID:              "bk-1",
		Title:           "The Go Programming Language",
		Author:          "Donovan & Kernighan",
		Genre:           "Computing",
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
	lib.PutBook(b)

	return lib, b
}

func TestBorrow_Succeeds(t *testing.T) {
	lib, b := seededLibrary(t, 3)

	u := approvedUser("u1")
	lib.PutUser(u)

	borrowedAt := time.Date(2024, 12, 28, 10, 30, 0, 0, time.UTC)

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger()).
		WithClock(func() time.Time { return borrowedAt })

	res, err := svc.Borrow(context.Background(), u.ID, b.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, res.LoanID)
	assert.Equal(t, time.Date(2025, 1, 4, 10, 30, 0, 0, time.UTC), res.DueDate)

	got, err := lib.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestBorrow_DeniedWhenPending(t *testing.T) {
	lib, b := seededLibrary(t, 1)

	u := approvedUser("u1")
	u.Status = user.StatusPending
	lib.PutUser(u)

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger())

	_, err := svc.Borrow(context.Background(), u.ID, b.ID)
	require.ErrorIs(t, err, loan.ErrAccountPending)

	// Denial must not touch the ledger.
	got, err := lib.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestBorrow_DeniedOnSecondBorrowOfSameBook(t *testing.T) {
	lib, b := seededLibrary(t, 5)

	u := approvedUser("u1")
	lib.PutUser(u)

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger())

	_, err := svc.Borrow(context.Background(), u.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.Borrow(context.Background(), u.ID, b.ID)
	require.ErrorIs(t, err, loan.ErrAlreadyBorrowed)

	got, _ := lib.GetByID(context.Background(), b.ID)
	assert.Equal(t, 4, got.AvailableCopies, "duplicate borrow must not decrement again")
}

func TestBorrow_DeniedWhenNoCopies(t *testing.T) {
	lib, b := seededLibrary(t, 1)

	first := approvedUser("u1")
	second := approvedUser("u2")
	lib.PutUser(first)
	lib.PutUser(second)

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger())

	_, err := svc.Borrow(context.Background(), first.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.Borrow(context.Background(), second.ID, b.ID)
	require.ErrorIs(t, err, loan.ErrNotAvailable)
	assert.Equal(t, "book is not available for borrowing", err.Error())
}

// Forty approved readers race for a single copy: exactly one borrow may
// succeed, the rest must see ErrNotAvailable, and the count must land on
// zero rather than going negative.
func TestBorrow_ConcurrentBorrowersOneCopy(t *testing.T) {
	const borrowers = 40

	lib, b := seededLibrary(t, 1)

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger())

	ids := make([]string, borrowers)
	for i := 0; i < borrowers; i++ {
		ids[i] = fmt.Sprintf("reader-%02d", i)
		lib.PutUser(approvedUser(ids[i]))
	}

	var wg sync.WaitGroup
	errs := make([]error, borrowers)

	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Borrow(context.Background(), ids[i], b.ID)
		}(i)
	}
	wg.Wait()

	var succeeded, notAvailable int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, loan.ErrNotAvailable):
			notAvailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one borrower may win the last copy")
	assert.Equal(t, borrowers-1, notAvailable)

	got, err := lib.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.Equal(t, got.TotalCopies-lib.ActiveLoanCount(b.ID), got.AvailableCopies,
		"available must equal total minus active loans")
}

func TestReturn_RestoresAvailability(t *testing.T) {
	lib, b := seededLibrary(t, 1)

	u := approvedUser("u1")
	lib.PutUser(u)

	borrowedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := borrowedAt

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger()).
		WithClock(func() time.Time { return now })

	res, err := svc.Borrow(context.Background(), u.ID, b.ID)
	require.NoError(t, err)

	now = borrowedAt.Add(48 * time.Hour)

	returned, err := svc.Return(context.Background(), u.ID, res.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusReturned, returned.Status)

	got, _ := lib.GetByID(context.Background(), b.ID)
	assert.Equal(t, 1, got.AvailableCopies)

	// A second return of the same loan is rejected and must not increment.
	_, err = svc.Return(context.Background(), u.ID, res.LoanID)
	require.ErrorIs(t, err, loan.ErrAlreadyReturned)

	got, _ = lib.GetByID(context.Background(), b.ID)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestReturn_PastDueIsLate(t *testing.T) {
	lib, b := seededLibrary(t, 1)

	u := approvedUser("u1")
	lib.PutUser(u)

	borrowedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := borrowedAt

	svc := borrow.NewService(lib.Users(), lib, lib, testLogger()).
		WithClock(func() time.Time { return now })

	res, err := svc.Borrow(context.Background(), u.ID, b.ID)
	require.NoError(t, err)

	now = borrowedAt.Add(loan.Period + time.Hour)

	returned, err := svc.Return(context.Background(), u.ID, res.LoanID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusLate, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
}
