package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/openshelf/lendhub/internal/auth"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/job"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/http/middlewares"
	"github.com/openshelf/lendhub/internal/jobs"
	"github.com/openshelf/lendhub/internal/repo/postgres"
	"github.com/openshelf/lendhub/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error
}

type JobEnqueuer interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error
}

type AuthHandler struct {
	users        UserReader
	userWriter   UserWriter
	enqueuer     JobEnqueuer
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	cfg          config.Config
	log          *slog.Logger
}

func NewAuthHandler(users UserReader, userWriter UserWriter, enqueuer JobEnqueuer, jwtManager *auth.Manager, refreshStore RefreshTokenStore, cfg config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		userWriter:   userWriter,
		enqueuer:     enqueuer,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		cfg:          cfg,
		log:          log,
	}
}

type SignUpRequest struct {
	FullName       string `json:"fullName" binding:"required,min=3"`
	Email          string `json:"email" binding:"required,email"`
	UniversityID   int64  `json:"universityId" binding:"required"`
	UniversityCard string `json:"universityCard" binding:"required"`
	Password       string `json:"password" binding:"required,min=8"`
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignUp creates the account, queues the welcome notification in the same
// transaction, and signs the new user in. A session failure after the
// commit is reported as its own outcome: the account exists either way.
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u := user.New(req.FullName, req.Email, hash, req.UniversityID, req.UniversityCard)

	err = h.userWriter.Create(cctx, u, func(txCtx context.Context, tx pgx.Tx) error {
		payload, encErr := jobs.EncodePayload(jobs.TypeOnboardingWelcome, jobs.OnboardingWelcomePayload{
			UserID:      u.ID,
			Email:       u.Email,
			FullName:    u.FullName,
			RequestedAt: time.Now().UTC(),
		})
		if encErr != nil {
			return encErr
		}

		key := "onboarding:" + u.ID
		_, enqErr := h.enqueuer.CreateTx(txCtx, tx, job.CreateRequest{
			Type:           jobs.TypeOnboardingWelcome,
			Payload:        payload,
			IdempotencyKey: &key,
		})
		return enqErr
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "user_exists", "User already exists")
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	accessToken, err := h.issueSession(cctx, ctx, u.ID, u.Email, u.Role)

	if err != nil {
		h.log.ErrorContext(cctx, "post-signup sign-in failed",
			slog.String("userId", u.ID),
			slog.Any("error", err),
		)

		// Account is committed; the client retries sign-in, not signup.
		ctx.JSON(http.StatusCreated, gin.H{
			"success": true,
			"signIn": gin.H{
				"code":    "account_created_login_failed",
				"message": "Account created. Please sign in.",
			},
		})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) SignIn(ctx *gin.Context) {
	var req SignInRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	accessToken, err := h.issueSession(cctx, ctx, foundUser.ID, foundUser.Email, foundUser.Role)

	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":     true,
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	// rotation inside a tx with a row lock

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.JTI)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// hash must match the presented token (prevents token substitution)

	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	// revoke old, insert new

	err = h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	newRow := postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(cctx, tx, newRow)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = tx.Commit(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err != nil || raw == "" {
		// still clear cookie to be safe
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	// revoke that one token (idempotent)
	_ = h.refreshStore.Revoke(cctx, tx, claims.JTI, nil)
	_ = tx.Commit(cctx)

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// LogoutAll revokes every live refresh token for the authenticated user,
// for the "sign out of all devices" flow.
func (h *AuthHandler) LogoutAll(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not sign out")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	if err := h.refreshStore.RevokeAllForUser(cctx, tx, userID); err != nil {
		RespondInternal(ctx, "Could not sign out")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not sign out")
		return
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// issueSession generates the token pair and persists the refresh half.
func (h *AuthHandler) issueSession(cctx context.Context, ctx *gin.Context, userID, email, role string) (string, error) {
	accessToken, err := h.jwt.GenerateAccessToken(userID, email, role)

	if err != nil {
		return "", err
	}

	rawRefreshToken, jti, expiresAt, err := h.jwt.GenerateRefreshToken(userID, email, role)

	if err != nil {
		return "", err
	}

	err = h.storeRefreshToken(cctx, userID, jti, rawRefreshToken, expiresAt)

	if err != nil {
		return "", err
	}

	h.setRefreshCookie(ctx, rawRefreshToken, expiresAt)

	return accessToken, nil
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID, jti, raw string, expiresAt time.Time) error {
	tx, err := h.refreshStore.BeginTx(ctx)

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	row := postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(ctx, tx, row)

	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *AuthHandler) refreshCookieName() string {
	return "refresh_token"
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		h.refreshCookieName(),
		raw,
		maxAge,
		"/auth",
		"",
		secure,
		true, // HttpOnly
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		h.refreshCookieName(),
		"",
		-1,
		"/auth",
		"",
		secure,
		true,
	)
}
