package loan

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBorrowed Status = "BORROWED"
	StatusReturned Status = "RETURNED"
	StatusLate     Status = "LATE"
)

// Period is the fixed loan period: every due date is borrow date + 7 days.
const Period = 7 * 24 * time.Hour

type Loan struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	BookID     string     `json:"bookId"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueAt      time.Time  `json:"dueAt"`
	Status     Status     `json:"status"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound        = errors.New("loan not found")
	ErrNotAvailable    = errors.New("book is not available for borrowing")
	ErrAlreadyBorrowed = errors.New("book already borrowed by this user")
	ErrAccountPending  = errors.New("account pending approval")
	ErrAlreadyReturned = errors.New("loan already returned")
)

// DueDate is the single place the due date is computed; it is set once at
// borrow time and never recomputed.
func DueDate(borrowedAt time.Time) time.Time {
	return borrowedAt.Add(Period)
}

// New builds a fresh BORROWED loan for the given user and book.
func New(userID, bookID string, now time.Time) Loan {
	now = now.UTC()

	return Loan{
		ID:         uuid.NewString(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueAt:      DueDate(now),
		Status:     StatusBorrowed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
