package book

import (
	"errors"
	"time"
)

type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	Rating          float64   `json:"rating"`
	CoverURL        string    `json:"coverUrl,omitempty"`
	CoverColor      string    `json:"coverColor,omitempty"`
	VideoURL        string    `json:"videoUrl,omitempty"`
	Description     string    `json:"description,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// with pointers if optional, it will be nil
type ListFilter struct {
	Genre  *string
	Query  *string
	Limit  int
	Offset int
}

var ErrNotFound = errors.New("book not found")

type CreateBookRequest struct {
	Title       string  `json:"title" binding:"required,min=2,max=200"`
	Author      string  `json:"author" binding:"required,min=2,max=120"`
	Genre       string  `json:"genre" binding:"required,min=2,max=60"`
	Rating      float64 `json:"rating" binding:"omitempty,min=0,max=5"`
	CoverURL    string  `json:"coverUrl" binding:"omitempty,max=500"`
	CoverColor  string  `json:"coverColor" binding:"omitempty,hexcolor"`
	VideoURL    string  `json:"videoUrl" binding:"omitempty,max=500"`
	Description string  `json:"description" binding:"omitempty,max=2000"`
	Summary     string  `json:"summary" binding:"omitempty,max=10000"`
	TotalCopies int     `json:"totalCopies" binding:"required,min=1,max=10000"`
}

// AvailabilitySnapshot is the copy-count state of a book at a point in
// time, as consumed by the borrow eligibility decision.
type AvailabilitySnapshot struct {
	BookID          string
	AvailableCopies int
	TotalCopies     int
}

func (b Book) Snapshot() AvailabilitySnapshot {
	return AvailabilitySnapshot{
		BookID:          b.ID,
		AvailableCopies: b.AvailableCopies,
		TotalCopies:     b.TotalCopies,
	}
}
