package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openshelf/lendhub/internal/domain/book"
	"github.com/openshelf/lendhub/internal/observability"
)

var dialect = goqu.Dialect("postgres")

// ErrCopiesConflict reports an admin copy adjustment the invariant guard
// rejected (it would push available_copies below zero or above
// total_copies, ie. below the number of copies currently on loan).
var ErrCopiesConflict = errors.New("copy adjustment conflicts with active loans")

type BooksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewBooksRepo(pool *pgxpool.Pool, prom *observability.Prom) *BooksRepo {
	return &BooksRepo{pool: pool, prom: prom}
}

func (r *BooksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

var bookColumns = []any{
	"id", "title", "author", "genre", "rating",
	"cover_url", "cover_color", "video_url", "description", "summary",
	"total_copies", "available_copies", "created_at", "updated_at",
}

func scanBook(row pgx.Row) (book.Book, error) {
	var b book.Book

	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Genre, &b.Rating,
		&b.CoverURL, &b.CoverColor, &b.VideoURL, &b.Description, &b.Summary,
		&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt,
	)

	return b, err
}

func (r *BooksRepo) Create(ctx context.Context, req book.CreateBookRequest) (book.Book, error) {
	b := book.NewFromCreateRequest(req)

	err := r.observe("books.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO books (id, title, author, genre, rating, cover_url, cover_color, video_url, description, summary, total_copies, available_copies, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			b.ID, b.Title, b.Author, b.Genre, b.Rating,
			b.CoverURL, b.CoverColor, b.VideoURL, b.Description, b.Summary,
			b.TotalCopies, b.AvailableCopies, b.CreatedAt, b.UpdatedAt,
		)
		return e
	})

	if err != nil {
		return book.Book{}, err
	}

	return b, nil
}

func (r *BooksRepo) GetByID(ctx context.Context, id string) (book.Book, error) {
	var b book.Book
	var err error

	err = r.observe("books.get_by_id", func() error {
		b, err = scanBook(r.pool.QueryRow(ctx, `
			SELECT id, title, author, genre, rating,
			       cover_url, cover_color, video_url, description, summary,
			       total_copies, available_copies, created_at, updated_at
			FROM books
			WHERE id = $1
		`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return book.Book{}, book.ErrNotFound
		}

		return book.Book{}, err
	}

	return b, nil
}

// List returns a catalog page. The filter combinations make this the one
// dynamically-built query in the service, so it goes through a SQL
// builder instead of hand-concatenated fragments.
func (r *BooksRepo) List(ctx context.Context, filter book.ListFilter) ([]book.Book, int, error) {
	ds := dialect.From("books").
		Select(append(bookColumns[:len(bookColumns):len(bookColumns)], goqu.L("COUNT(*) OVER()").As("total"))...)

	if filter.Genre != nil {
		ds = ds.Where(goqu.C("genre").Eq(*filter.Genre))
	}

	if filter.Query != nil {
		q := "%" + strings.ToLower(strings.TrimSpace(*filter.Query)) + "%"
		ds = ds.Where(goqu.Or(
			goqu.L("lower(title)").Like(q),
			goqu.L("lower(author)").Like(q),
		))
	}

	limit := filter.Limit

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ds = ds.
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint(filter.Offset))

	query, args, err := ds.Prepared(true).ToSQL()

	if err != nil {
		return nil, 0, err
	}

	var rows pgx.Rows

	err = r.observe("books.list", func() error {
		rows, err = r.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	out := make([]book.Book, 0, limit)
	total := 0

	for rows.Next() {
		var b book.Book

		e := rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.Genre, &b.Rating,
			&b.CoverURL, &b.CoverColor, &b.VideoURL, &b.Description, &b.Summary,
			&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt,
			&total,
		)

		if e != nil {
			return nil, 0, e
		}

		out = append(out, b)
	}

	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return out, total, nil
}

// AdjustCopies changes total_copies by delta and moves available_copies
// with it, behind the same conditional guard as borrowing: the update only
// applies while 0 <= available_copies + delta and available_copies never
// exceeds total_copies. Shrinking below the number of copies on loan is
// rejected rather than clamped.
func (r *BooksRepo) AdjustCopies(ctx context.Context, id string, delta int) (book.Book, error) {
	var b book.Book
	var err error

	err = r.observe("books.adjust_copies", func() error {
		b, err = scanBook(r.pool.QueryRow(ctx, `
			UPDATE books
			SET total_copies = total_copies + $2,
			    available_copies = available_copies + $2,
			    updated_at = NOW()
			WHERE id = $1
			  AND total_copies + $2 >= 0
			  AND available_copies + $2 >= 0
			RETURNING id, title, author, genre, rating,
			          cover_url, cover_color, video_url, description, summary,
			          total_copies, available_copies, created_at, updated_at
		`, id, delta))
		return err
	})

	if err == nil {
		return b, nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing matched: either the book is missing or the guard said no.
		getErr := r.pool.QueryRow(ctx, `SELECT id FROM books WHERE id = $1`, id).Scan(new(string))

		if errors.Is(getErr, pgx.ErrNoRows) {
			return book.Book{}, book.ErrNotFound
		}

		if getErr != nil {
			return book.Book{}, getErr
		}

		return book.Book{}, ErrCopiesConflict
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return book.Book{}, ErrCopiesConflict
	}

	return book.Book{}, err
}
