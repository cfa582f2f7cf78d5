package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/observability"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, full_name, email, password_hash, university_id, university_card, status, role, created_at, updated_at`

func (r *UsersRepo) scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var status string

	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.UniversityID,
		&u.UniversityCard,
		&status,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		return user.User{}, err
	}

	u.Status = user.Status(status)
	return u, nil
}

// GetByEmail looks a user up by email. Emails are case-insensitive: the
// unique index is on lower(email) and lookups normalize the same way.
func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_email", func() error {
		u, err = r.scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
			email,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_id", func() error {
		u, err = r.scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

// Create inserts a user and, in the same transaction, an onboarding job
// when enqueue is non-nil. Committing them together means an account can
// never exist without its pending welcome notification, and a failed
// insert never leaves a stray job.
func (r *UsersRepo) Create(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = r.observe("users.create", func() error {
		_, e := tx.Exec(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			u.ID, u.FullName, u.Email, u.PasswordHash, u.UniversityID, u.UniversityCard, string(u.Status), u.Role, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return err
	}

	if enqueue != nil {
		err = enqueue(ctx, tx)

		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Approve flips a PENDING account to APPROVED.
func (r *UsersRepo) Approve(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("users.approve", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE users
			SET status = $2, updated_at = NOW()
			WHERE id = $1
		`, id, string(user.StatusApproved))
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}
