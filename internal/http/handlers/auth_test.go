package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/openshelf/lendhub/internal/auth"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/domain/job"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/http/handlers"
	"github.com/openshelf/lendhub/internal/repo/postgres"
	"github.com/openshelf/lendhub/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJWT() *auth.Manager {
	return auth.NewManager("test-secret", 15*time.Minute, 24*time.Hour)
}

// Fakes for the AuthHandler's stores.

type fakeUserStore struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	createFn     func(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) Create(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error {
	if f.createFn != nil {
		return f.createFn(ctx, u, enqueue)
	}
	return nil
}

type fakeEnqueuer struct {
	jobs []job.CreateRequest
	err  error
}

func (f *fakeEnqueuer) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	if f.err != nil {
		return job.Job{}, f.err
	}
	f.jobs = append(f.jobs, req)
	return job.New(req), nil
}

// fakeTx only needs Commit and Rollback; everything else stays nil.
type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeRefreshStore struct {
	createErr error
	rows      []postgres.RefreshTokenRow
}

func (f *fakeRefreshStore) BeginTx(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeRefreshStore) Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeRefreshStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error) {
	return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
}

func (f *fakeRefreshStore) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	return nil
}

func (f *fakeRefreshStore) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	return nil
}

func newSignUpRouter(users *fakeUserStore, enq *fakeEnqueuer, refresh *fakeRefreshStore) *gin.Engine {
	h := handlers.NewAuthHandler(users, users, enq, testJWT(), refresh, config.Config{Env: "test"}, testLogger())

	r := gin.New()
	r.POST("/auth/sign-up", h.SignUp)
	r.POST("/auth/sign-in", h.SignIn)
	return r
}

func signUpBody() []byte {
	b, _ := json.Marshal(map[string]any{
		"fullName":       "Ada Lovelace",
		"email":          "ada@example.edu",
		"universityId":   1234567,
		"universityCard": "cards/ada.png",
		"password":       "strong-password",
	})
	return b
}

func doJSON(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp_CreatesAccountAndQueuesWelcome(t *testing.T) {
	var enqueueCalled bool

	users := &fakeUserStore{
		createFn: func(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error {
			if u.Status != user.StatusPending {
				t.Fatalf("new accounts must start PENDING, got %s", u.Status)
			}
			if u.PasswordHash == "strong-password" {
				t.Fatal("password stored in plaintext")
			}

			enqueueCalled = true
			return enqueue(ctx, fakeTx{})
		},
	}
	enq := &fakeEnqueuer{}

	r := newSignUpRouter(users, enq, &fakeRefreshStore{})

	w := doJSON(r, http.MethodPost, "/auth/sign-up", signUpBody())

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !enqueueCalled {
		t.Fatal("welcome job was not enqueued with the account insert")
	}
	if len(enq.jobs) != 1 || enq.jobs[0].Type != "onboarding.welcome" {
		t.Fatalf("unexpected enqueued jobs: %+v", enq.jobs)
	}

	var resp struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !resp.Success || resp.AccessToken == "" {
		t.Fatalf("expected signed-in response, got %s", w.Body.String())
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	users := &fakeUserStore{
		createFn: func(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error {
			return user.ErrEmailTaken
		},
	}

	r := newSignUpRouter(users, &fakeEnqueuer{}, &fakeRefreshStore{})

	w := doJSON(r, http.MethodPost, "/auth/sign-up", signUpBody())

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("User already exists")) {
		t.Fatalf("body = %s, want duplicate-email message", w.Body.String())
	}
}

func TestSignUp_SessionFailureStillReportsAccountCreated(t *testing.T) {
	users := &fakeUserStore{
		createFn: func(ctx context.Context, u user.User, enqueue func(ctx context.Context, tx pgx.Tx) error) error {
			return nil
		},
	}
	refresh := &fakeRefreshStore{createErr: errors.New("session store down")}

	r := newSignUpRouter(users, &fakeEnqueuer{}, refresh)

	w := doJSON(r, http.MethodPost, "/auth/sign-up", signUpBody())

	// The account is committed; the failure is the sign-in, and the client
	// must be told to retry that, not the signup.
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("account_created_login_failed")) {
		t.Fatalf("body = %s, want distinct sign-in failure outcome", w.Body.String())
	}
}

func TestSignIn_UniformInvalidCredentials(t *testing.T) {
	hashOfOther := mustHash(t, "a-different-password")

	users := &fakeUserStore{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			if email == "known@example.edu" {
				return user.User{ID: "u1", Email: email, PasswordHash: hashOfOther, Role: user.RoleUser}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}

	r := newSignUpRouter(users, &fakeEnqueuer{}, &fakeRefreshStore{})

	cases := []struct {
		name  string
		email string
	}{
		{"unknown email", "nobody@example.edu"},
		{"wrong password", "known@example.edu"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"email": tc.email, "password": "strong-password"})

			w := doJSON(r, http.MethodPost, "/auth/sign-in", body)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if !bytes.Contains(w.Body.Bytes(), []byte("invalid_credentials")) {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()

	h, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}
