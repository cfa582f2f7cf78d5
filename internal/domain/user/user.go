package user

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // never expose hash in JSON
	UniversityID   int64     `json:"universityId"`
	UniversityCard string    `json:"universityCard"` // stored CDN path of the uploaded card
	Status         Status    `json:"status"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists")
)

// StatusSnapshot is the slice of account state the borrow eligibility
// decision needs; it deliberately carries no credentials.
type StatusSnapshot struct {
	UserID   string
	Approved bool
}

func (u User) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		UserID:   u.ID,
		Approved: u.Status == StatusApproved,
	}
}
