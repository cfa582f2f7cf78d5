package book

import (
	"time"

	"github.com/google/uuid"
)

// NewFromCreateRequest builds a Book from the admin create payload.
// Every copy starts on the shelf: availableCopies == totalCopies.
func NewFromCreateRequest(req CreateBookRequest) Book {
	now := time.Now().UTC()

	return Book{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Author:          req.Author,
		Genre:           req.Genre,
		Rating:          req.Rating,
		CoverURL:        req.CoverURL,
		CoverColor:      req.CoverColor,
		VideoURL:        req.VideoURL,
		Description:     req.Description,
		Summary:         req.Summary,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
