package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/lendhub/internal/cache"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/repo/postgres"
)

type CatalogRepository interface {
	Create(ctx context.Context, req book.CreateBookRequest) (book.Book, error)
	GetByID(ctx context.Context, id string) (book.Book, error)
	List(ctx context.Context, filter book.ListFilter) ([]book.Book, int, error)
	AdjustCopies(ctx context.Context, id string, delta int) (book.Book, error)
}

type BooksHandler struct {
	repo  CatalogRepository
	cache *cache.Cache
}

func NewBooksHandler(repo CatalogRepository, bookCache *cache.Cache) *BooksHandler {
	return &BooksHandler{repo: repo, cache: bookCache}
}

// ListBooks supports ?genre=, ?q= (title/author search), ?limit=, ?offset=.
func (h *BooksHandler) ListBooks(ctx *gin.Context) {
	var filter book.ListFilter

	if genre := ctx.Query("genre"); genre != "" {
		filter.Genre = &genre
	}
	if q := ctx.Query("q"); q != "" {
		filter.Query = &q
	}

	filter.Limit = intQuery(ctx, "limit", 20)
	filter.Offset = intQuery(ctx, "offset", 0)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	books, total, err := h.repo.List(cctx, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list books")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": books,
		"count": len(books),
		"total": total,
	})
}

func (h *BooksHandler) GetBookByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if v, ok := h.cache.Get(bookCacheKey(id)); ok {
		if b, ok := v.(book.Book); ok {
			ctx.JSON(http.StatusOK, b)
			return
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	b, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			RespondNotFound(ctx, "Book not found")
			return
		}
		RespondInternal(ctx, "Could not fetch book")
		return
	}

	h.cache.Set(bookCacheKey(id), b)

	ctx.JSON(http.StatusOK, b)
}

// CreateBook is admin-only; new titles start with every copy available.
func (h *BooksHandler) CreateBook(ctx *gin.Context) {
	var req book.CreateBookRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	b, err := h.repo.Create(cctx, req)

	if err != nil {
		RespondInternal(ctx, "Could not create book")
		return
	}

	ctx.JSON(http.StatusCreated, b)
}

type AdjustCopiesRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// AdjustCopies is admin-only and moves total and available together, so a
// shrink can never take available below zero or strand active loans.
func (h *BooksHandler) AdjustCopies(ctx *gin.Context) {
	id := ctx.Param("id")

	var req AdjustCopiesRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	b, err := h.repo.AdjustCopies(cctx, id, req.Delta)

	if err != nil {
		switch {
		case errors.Is(err, book.ErrNotFound):
			RespondNotFound(ctx, "Book not found")
		case errors.Is(err, postgres.ErrCopiesConflict):
			RespondConflict(ctx, "copies_conflict", "Adjustment would conflict with active loans")
		default:
			RespondInternal(ctx, "Could not adjust copies")
		}
		return
	}

	h.cache.Delete(bookCacheKey(id))

	ctx.JSON(http.StatusOK, b)
}

func bookCacheKey(id string) string {
	return "book:" + id
}

func intQuery(ctx *gin.Context, key string, fallback int) int {
	raw := ctx.Query(key)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}

	return n
}
