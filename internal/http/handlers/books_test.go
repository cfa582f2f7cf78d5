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

	"github.com/openshelf/lendhub/internal/cache"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/http/handlers"
	"github.com/openshelf/lendhub/internal/repo/postgres"
)

type fakeCatalog struct {
	createFn func(ctx context.Context, req book.CreateBookRequest) (book.Book, error)
	getFn    func(ctx context.Context, id string) (book.Book, error)
	listFn   func(ctx context.Context, filter book.ListFilter) ([]book.Book, int, error)
	adjustFn func(ctx context.Context, id string, delta int) (book.Book, error)

	getCalls int
}

func (f *fakeCatalog) Create(ctx context.Context, req book.CreateBookRequest) (book.Book, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return book.Book{}, nil
}

func (f *fakeCatalog) GetByID(ctx context.Context, id string) (book.Book, error) {
	f.getCalls++
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return book.Book{}, book.ErrNotFound
}

func (f *fakeCatalog) List(ctx context.Context, filter book.ListFilter) ([]book.Book, int, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return nil, 0, nil
}

func (f *fakeCatalog) AdjustCopies(ctx context.Context, id string, delta int) (book.Book, error) {
	if f.adjustFn != nil {
		return f.adjustFn(ctx, id, delta)
	}
	return book.Book{}, book.ErrNotFound
}

func newBooksRouter(repo *fakeCatalog) *gin.Engine {
	h := handlers.NewBooksHandler(repo, cache.New(time.Minute))

	r := gin.New()
	r.GET("/books", h.ListBooks)
	r.GET("/books/:id", h.GetBookByID)
	r.POST("/admin/books", h.CreateBook)
	r.PATCH("/admin/books/:id/copies", h.AdjustCopies)
	return r
}

func TestGetBookByID_CachesDetail(t *testing.T) {
	repo := &fakeCatalog{
		getFn: func(ctx context.Context, id string) (book.Book, error) {
			return book.Book{ID: id, Title: "Dune", TotalCopies: 3, AvailableCopies: 3}, nil
		},
	}
	r := newBooksRouter(repo)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books/bk1", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}

	if repo.getCalls != 1 {
		t.Fatalf("repo hit %d times, want 1 (cached afterwards)", repo.getCalls)
	}
}

func TestListBooks_PassesFilters(t *testing.T) {
	var captured book.ListFilter

	repo := &fakeCatalog{
		listFn: func(ctx context.Context, filter book.ListFilter) ([]book.Book, int, error) {
			captured = filter
			return []book.Book{{ID: "bk1"}}, 1, nil
		},
	}
	r := newBooksRouter(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books?genre=Fantasy&q=dragon&limit=5&offset=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if captured.Genre == nil || *captured.Genre != "Fantasy" {
		t.Fatalf("genre filter not passed: %+v", captured)
	}
	if captured.Query == nil || *captured.Query != "dragon" {
		t.Fatalf("query filter not passed: %+v", captured)
	}
	if captured.Limit != 5 || captured.Offset != 10 {
		t.Fatalf("pagination not passed: %+v", captured)
	}
}

func TestCreateBook_RejectsZeroCopies(t *testing.T) {
	repo := &fakeCatalog{
		createFn: func(ctx context.Context, req book.CreateBookRequest) (book.Book, error) {
			t.Fatal("repo must not be reached on invalid input")
			return book.Book{}, nil
		},
	}
	r := newBooksRouter(repo)

	body, _ := json.Marshal(map[string]any{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"genre":       "Science Fiction",
		"totalCopies": 0,
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/books", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAdjustCopies_ConflictWithActiveLoans(t *testing.T) {
	repo := &fakeCatalog{
		adjustFn: func(ctx context.Context, id string, delta int) (book.Book, error) {
			return book.Book{}, postgres.ErrCopiesConflict
		},
	}
	r := newBooksRouter(repo)

	body, _ := json.Marshal(map[string]int{"delta": -5})

	req := httptest.NewRequest(http.MethodPatch, "/admin/books/bk1/copies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("copies_conflict")) {
		t.Fatalf("body = %s", w.Body.String())
	}
}
