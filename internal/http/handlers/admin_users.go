package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/user"
)

type UserApprover interface {
	Approve(ctx context.Context, id string) error
}

type AdminUsersHandler struct {
	users UserApprover
}

func NewAdminUsersHandler(users UserApprover) *AdminUsersHandler {
	return &AdminUsersHandler{users: users}
}

// Approve flips a pending account to APPROVED so it can borrow.
func (h *AdminUsersHandler) Approve(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.users.Approve(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not approve user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}
