package user

import (
	"time"

	"github.com/google/uuid"
)

// New builds an account in its initial state: PENDING until a librarian
// approves it, with the plain USER role.
func New(fullName, email, passwordHash string, universityID int64, universityCard string) User {
	now := time.Now().UTC()

	return User{
		ID:             uuid.NewString(),
		FullName:       fullName,
		Email:          email,
		PasswordHash:   passwordHash,
		UniversityID:   universityID,
		UniversityCard: universityCard,
		Status:         StatusPending,
		Role:           RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
