package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/loan"
	"github.com/openshelf/lendhub/internal/observability"
)

type LoansRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewLoansRepo(pool *pgxpool.Pool, prom *observability.Prom) *LoansRepo {
	return &LoansRepo{pool: pool, prom: prom}
}

func (r *LoansRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *LoansRepo) HasActiveLoan(ctx context.Context, userID, bookID string) (bool, error) {
	var exists bool

	err := r.observe("loans.has_active", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM loans
			WHERE user_id = $1 AND book_id = $2 AND status = 'BORROWED'
		)`, userID, bookID).Scan(&exists)
	})

	return exists, err
}

// Borrow executes the borrow mutation as one transaction: re-check the
// duplicate-loan rule, conditionally decrement the copy count, insert the
// loan. The decrement's WHERE clause carries the availability guard, so
// two borrowers racing for the last copy serialize on the row and exactly
// one sees RowsAffected == 1. No partial effect can survive: any failure
// rolls the whole transaction back.
func (r *LoansRepo) Borrow(ctx context.Context, userID, bookID string, now time.Time) (rec loan.Loan, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return loan.Loan{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	// Duplicate check inside the transaction; the service-level snapshot
	// check can be stale by the time we get here.
	var exists bool

	err = r.observe("loans.borrow.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM loans
			WHERE user_id = $1 AND book_id = $2 AND status = 'BORROWED'
		)`, userID, bookID).Scan(&exists)
	})

	if err != nil {
		return loan.Loan{}, err
	}

	if exists {
		return loan.Loan{}, loan.ErrAlreadyBorrowed
	}

	// Conditional atomic decrement. Never a plain read-modify-write.
	var tag int64

	err = r.observe("loans.borrow.decrement", func() error {
		t, e := tx.Exec(ctx, `
			UPDATE books
			SET available_copies = available_copies - 1,
			    updated_at = $2
			WHERE id = $1
			  AND available_copies > 0
		`, bookID, now)
		tag = t.RowsAffected()
		return e
	})

	if err != nil {
		return loan.Loan{}, err
	}

	if tag == 0 {
		// Missing book and exhausted copies both leave zero rows; tell
		// them apart so the caller gets the right failure.
		var dummy string

		e := tx.QueryRow(ctx, `SELECT id FROM books WHERE id = $1`, bookID).Scan(&dummy)

		if errors.Is(e, pgx.ErrNoRows) {
			return loan.Loan{}, book.ErrNotFound
		}

		if e != nil {
			return loan.Loan{}, e
		}

		return loan.Loan{}, loan.ErrNotAvailable
	}

	rec = loan.New(userID, bookID, now)

	err = r.observe("loans.borrow.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO loans (id, user_id, book_id, borrowed_at, due_at, status, returned_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, rec.ID, rec.UserID, rec.BookID, rec.BorrowedAt, rec.DueAt, string(rec.Status), rec.ReturnedAt, rec.CreatedAt, rec.UpdatedAt)
		return e
	})

	if err != nil {
		return loan.Loan{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return loan.Loan{}, err
	}

	return rec, nil
}

// Return closes a loan and puts the copy back on the shelf, in one
// transaction. The increment carries the mirror-image guard so the count
// can never climb past total_copies even if a return is replayed.
func (r *LoansRepo) Return(ctx context.Context, userID, loanID string, now time.Time) (rec loan.Loan, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return loan.Loan{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var status string

	err = r.observe("loans.return.lock", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, user_id, book_id, borrowed_at, due_at, status, returned_at, created_at, updated_at
			FROM loans
			WHERE id = $1 AND user_id = $2
			FOR UPDATE
		`, loanID, userID).Scan(
			&rec.ID, &rec.UserID, &rec.BookID, &rec.BorrowedAt, &rec.DueAt,
			&status, &rec.ReturnedAt, &rec.CreatedAt, &rec.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loan.Loan{}, loan.ErrNotFound
		}

		return loan.Loan{}, err
	}

	rec.Status = loan.Status(status)

	if rec.Status != loan.StatusBorrowed {
		return loan.Loan{}, loan.ErrAlreadyReturned
	}

	err = r.observe("loans.return.increment", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE books
			SET available_copies = available_copies + 1,
			    updated_at = $2
			WHERE id = $1
			  AND available_copies < total_copies
		`, rec.BookID, now)
		return e
	})

	if err != nil {
		return loan.Loan{}, err
	}

	newStatus := loan.StatusReturned

	if now.After(rec.DueAt) {
		newStatus = loan.StatusLate
	}

	err = r.observe("loans.return.update", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE loans
			SET status = $2, returned_at = $3, updated_at = $3
			WHERE id = $1
		`, rec.ID, string(newStatus), now)
		return e
	})

	if err != nil {
		return loan.Loan{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return loan.Loan{}, err
	}

	rec.Status = newStatus
	returnedAt := now
	rec.ReturnedAt = &returnedAt
	rec.UpdatedAt = now

	return rec, nil
}

func (r *LoansRepo) ListByUser(ctx context.Context, userID string) ([]loan.Loan, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("loans.list_by_user", func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT id, user_id, book_id, borrowed_at, due_at, status, returned_at, created_at, updated_at
			FROM loans
			WHERE user_id = $1
			ORDER BY borrowed_at DESC, id ASC
		`, userID)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]loan.Loan, 0)

	for rows.Next() {
		var rec loan.Loan
		var status string

		e := rows.Scan(
			&rec.ID, &rec.UserID, &rec.BookID, &rec.BorrowedAt, &rec.DueAt,
			&status, &rec.ReturnedAt, &rec.CreatedAt, &rec.UpdatedAt,
		)

		if e != nil {
			return nil, e
		}

		rec.Status = loan.Status(status)
		out = append(out, rec)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

// CountActiveForBook reports loans in BORROWED status; operators use it to
// audit the invariant available = total - active.
func (r *LoansRepo) CountActiveForBook(ctx context.Context, bookID string) (int, error) {
	var total int

	err := r.observe("loans.count_active_for_book", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM loans WHERE book_id = $1 AND status = 'BORROWED'`,
			bookID,
		).Scan(&total)
	})

	return total, err
}
