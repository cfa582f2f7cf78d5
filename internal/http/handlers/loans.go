package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/lendhub/internal/borrow"
	"github.com/openshelf/lendhub/internal/cache"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/loan"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/http/middlewares"
	"github.com/openshelf/lendhub/internal/observability"
)

type LoansHandler struct {
	svc   *borrow.Service
	cache *cache.Cache
	prom  *observability.Prom
}

func NewLoansHandler(svc *borrow.Service, bookCache *cache.Cache, prom *observability.Prom) *LoansHandler {
	return &LoansHandler{svc: svc, cache: bookCache, prom: prom}
}

// Borrow checks out one copy for the authenticated user. The availability
// decrement and the loan record commit together, so two readers racing for
// the last copy get exactly one success.
func (h *LoansHandler) Borrow(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	bookID := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	result, err := h.svc.Borrow(cctx, userID, bookID)

	if err != nil {
		switch {
		case errors.Is(err, book.ErrNotFound):
			h.prom.BorrowsTotal.WithLabelValues("not_available").Inc()
			RespondNotFound(ctx, "Book not found")
		case errors.Is(err, user.ErrNotFound):
			h.prom.BorrowsTotal.WithLabelValues("error").Inc()
			RespondUnAuthorized(ctx, "unauthorized", "Unknown account")
		case errors.Is(err, loan.ErrAccountPending):
			h.prom.BorrowsTotal.WithLabelValues("pending_approval").Inc()
			RespondForbidden(ctx, "account_pending", "Your account is pending approval")
		case errors.Is(err, loan.ErrAlreadyBorrowed):
			h.prom.BorrowsTotal.WithLabelValues("already_borrowed").Inc()
			RespondConflict(ctx, "already_borrowed", "You already borrowed this book")
		case errors.Is(err, loan.ErrNotAvailable):
			h.prom.BorrowsTotal.WithLabelValues("not_available").Inc()
			RespondConflict(ctx, "not_available", "Book is not available for borrowing")
		default:
			h.prom.BorrowsTotal.WithLabelValues("error").Inc()
			RespondInternal(ctx, "Could not borrow book")
		}
		return
	}

	h.prom.BorrowsTotal.WithLabelValues("ok").Inc()

	// The cached detail now carries a stale available count.
	h.cache.Delete(bookCacheKey(bookID))

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"loanId":  result.LoanID,
		"dueDate": result.DueDate,
	})
}

func (h *LoansHandler) Return(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	loanID := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	l, err := h.svc.Return(cctx, userID, loanID)

	if err != nil {
		switch {
		case errors.Is(err, loan.ErrNotFound):
			RespondNotFound(ctx, "Loan not found")
		case errors.Is(err, loan.ErrAlreadyReturned):
			RespondConflict(ctx, "already_returned", "This loan was already returned")
		default:
			RespondInternal(ctx, "Could not return book")
		}
		return
	}

	h.cache.Delete(bookCacheKey(l.BookID))

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"loan":    l,
	})
}

func (h *LoansHandler) ListMine(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	loans, err := h.svc.ListLoans(cctx, userID)

	if err != nil {
		RespondInternal(ctx, "Could not list loans")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": loans,
		"count": len(loans),
	})
}
