package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/security"
)

// EnsureAdminUser creates the configured admin account if it does not
// exist yet. Admins are born APPROVED; librarians never go through the
// signup approval queue.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1)`, cfg.AdminEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		FullName:     cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Status:       user.StatusApproved,
		Role:         user.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, university_id, university_card, status, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.UniversityID, u.UniversityCard, string(u.Status), u.Role, u.CreatedAt, u.UpdatedAt,
	)

	return err
}
