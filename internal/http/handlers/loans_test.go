package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshelf/lendhub/internal/borrow"
	"github.com/openshelf/lendhub/internal/cache"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/domain/user"
	"github.com/openshelf/lendhub/internal/http/handlers"
	"github.com/openshelf/lendhub/internal/http/middlewares"
	"github.com/openshelf/lendhub/internal/observability"
	"github.com/openshelf/lendhub/internal/repo/memory"
)

type loansFixture struct {
	router *gin.Engine
	lib    *memory.Library
	token  string
}

func newLoansFixture(t *testing.T, copies int) *loansFixture {
	t.Helper()

	lib := memory.NewLibrary()

	reader := user.User{ID: "u1", FullName: "Ada Lovelace", Email: "ada@example.edu", Status: user.StatusApproved, Role: user.RoleUser}
	lib.PutUser(reader)
	lib.PutBook(book.Book{
		ID:              "bk1",
		Title:           "Dune",
		Author:          "Frank Herbert",
		Genre:           "Science Fiction",
		TotalCopies:     copies,
		AvailableCopies: copies,
	})

	jwt := testJWT()
	token, err := jwt.GenerateAccessToken(reader.ID, reader.Email, reader.Role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	prom := observability.NewProm(prometheus.NewRegistry())
	svc := borrow.NewService(lib.Users(), lib, lib, testLogger())
	h := handlers.NewLoansHandler(svc, cache.New(time.Minute), prom)

	authMW := middlewares.NewAuthMiddleware(jwt)

	r := gin.New()
	authed := r.Group("/")
	authed.Use(authMW.RequireAuth())
	{
		authed.POST("/books/:id/borrow", h.Borrow)
		authed.POST("/loans/:id/return", h.Return)
		authed.GET("/loans", h.ListMine)
	}

	return &loansFixture{router: r, lib: lib, token: token}
}

func (f *loansFixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestBorrowEndpoint_Success(t *testing.T) {
	f := newLoansFixture(t, 2)

	w := f.do(http.MethodPost, "/books/bk1/borrow")

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool      `json:"success"`
		LoanID  string    `json:"loanId"`
		DueDate time.Time `json:"dueDate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !resp.Success || resp.LoanID == "" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
	if resp.DueDate.IsZero() {
		t.Fatal("dueDate missing")
	}

	b, _ := f.lib.GetByID(context.Background(), "bk1")
	if b.AvailableCopies != 1 {
		t.Fatalf("availableCopies = %d, want 1", b.AvailableCopies)
	}
}

func TestBorrowEndpoint_NoCopies(t *testing.T) {
	f := newLoansFixture(t, 0)

	w := f.do(http.MethodPost, "/books/bk1/borrow")

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Book is not available for borrowing")) {
		t.Fatalf("body = %s", w.Body.String())
	}

	// Denied borrow must leave the ledger untouched.
	b, _ := f.lib.GetByID(context.Background(), "bk1")
	if b.AvailableCopies != 0 || f.lib.ActiveLoanCount("bk1") != 0 {
		t.Fatalf("ledger mutated on denial: available=%d active=%d", b.AvailableCopies, f.lib.ActiveLoanCount("bk1"))
	}
}

func TestBorrowEndpoint_DuplicateLoan(t *testing.T) {
	f := newLoansFixture(t, 3)

	if w := f.do(http.MethodPost, "/books/bk1/borrow"); w.Code != http.StatusCreated {
		t.Fatalf("first borrow failed: %d", w.Code)
	}

	w := f.do(http.MethodPost, "/books/bk1/borrow")

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("already_borrowed")) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestBorrowEndpoint_UnknownBook(t *testing.T) {
	f := newLoansFixture(t, 1)

	w := f.do(http.MethodPost, "/books/missing/borrow")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestBorrowEndpoint_RequiresAuth(t *testing.T) {
	f := newLoansFixture(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/books/bk1/borrow", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestReturnAndListEndpoints(t *testing.T) {
	f := newLoansFixture(t, 1)

	w := f.do(http.MethodPost, "/books/bk1/borrow")
	if w.Code != http.StatusCreated {
		t.Fatalf("borrow failed: %d", w.Code)
	}

	var borrowResp struct {
		LoanID string `json:"loanId"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &borrowResp)

	w = f.do(http.MethodGet, "/loans")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 1 {
		t.Fatalf("count = %d, want 1", listResp.Count)
	}

	w = f.do(http.MethodPost, "/loans/"+borrowResp.LoanID+"/return")
	if w.Code != http.StatusOK {
		t.Fatalf("return failed: %d, body = %s", w.Code, w.Body.String())
	}

	b, _ := f.lib.GetByID(context.Background(), "bk1")
	if b.AvailableCopies != 1 {
		t.Fatalf("availableCopies = %d after return, want 1", b.AvailableCopies)
	}

	// Second return of the same loan: conflict, no double increment.
	w = f.do(http.MethodPost, "/loans/"+borrowResp.LoanID+"/return")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}
