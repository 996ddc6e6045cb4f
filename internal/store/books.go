package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/erazemk/knjiznica/internal/model"
)

// BookInput carries the editable catalog fields of a book.
type BookInput struct {
	Title         string
	Authors       string
	Publisher     string
	PublishedYear int
	Category      string
	ISBN13        string
	Description   string
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	Search        string
	Category      string
	AvailableOnly bool
}

var bookSelect = []any{
	goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.authors"), goqu.I("b.publisher"),
	goqu.I("b.published_year"), goqu.I("b.category"), goqu.I("b.isbn13"), goqu.I("b.description"),
	goqu.I("b.cover_mime"), goqu.I("b.created_at"), goqu.I("b.updated_at"),
	goqu.L(`(SELECT COUNT(*) FROM book_copies c WHERE c.book_id = b.id)`).As("total_copies"),
	goqu.L(`(SELECT COUNT(*) FROM book_copies c WHERE c.book_id = b.id AND c.status = 'available')`).As("available_copies"),
}

// CreateBook creates a new catalog title.
func CreateBook(ctx context.Context, q Querier, in BookInput) (*model.Book, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO books (title, authors, publisher, published_year, category, isbn13, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Authors, nullString(in.Publisher), nullYear(in.PublishedYear),
		nullString(in.Category), nullString(in.ISBN13), nullString(in.Description),
	)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting book id: %w", err)
	}

	return GetBook(ctx, q, id)
}

// GetBook returns a book by ID with its copy counts.
func GetBook(ctx context.Context, q Querier, id int64) (*model.Book, error) {
	query, args, err := dialect.From(goqu.T("books").As("b")).
		Select(bookSelect...).
		Where(goqu.I("b.id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building book query: %w", err)
	}

	b, err := scanBook(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return b, nil
}

// ListBooks returns a page of books matching the filter, newest first.
func ListBooks(ctx context.Context, q Querier, f BookFilter, p Page) ([]model.Book, Pagination, error) {
	p = p.normalize()

	ds := dialect.From(goqu.T("books").As("b")).Prepared(true)
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + s + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").Like(pattern),
			goqu.I("b.authors").Like(pattern),
			goqu.I("b.isbn13").Like(pattern),
		))
	}
	if f.Category != "" {
		ds = ds.Where(goqu.I("b.category").Eq(f.Category))
	}
	if f.AvailableOnly {
		ds = ds.Where(goqu.L(`EXISTS (SELECT 1 FROM book_copies c WHERE c.book_id = b.id AND c.status = 'available')`))
	}

	total, err := count(ctx, q, ds)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("counting books: %w", err)
	}

	query, args, err := ds.Select(bookSelect...).
		Order(goqu.I("b.created_at").Desc(), goqu.I("b.id").Desc()).
		Limit(uint(p.Limit)).Offset(p.offset()).ToSQL()
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("building book list: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, Pagination{}, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, err
	}
	return books, newPagination(p, total), nil
}

// UpdateBook replaces a book's catalog fields.
func UpdateBook(ctx context.Context, q Querier, id int64, in BookInput) error {
	_, err := q.ExecContext(ctx,
		`UPDATE books SET title = ?, authors = ?, publisher = ?, published_year = ?, category = ?,
		        isbn13 = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Title, in.Authors, nullString(in.Publisher), nullYear(in.PublishedYear),
		nullString(in.Category), nullString(in.ISBN13), nullString(in.Description), id,
	)
	if err != nil {
		return fmt.Errorf("updating book: %w", err)
	}
	return nil
}

// DeleteBook deletes a book and, by cascade, its copies. Copies that were ever
// loaned are protected by the loans foreign key.
func DeleteBook(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return nil
}

// BookHasUnresolvedLoans reports whether any copy of the book is on loan.
func BookHasUnresolvedLoans(ctx context.Context, q Querier, bookID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans l JOIN book_copies c ON c.id = l.copy_id
		 WHERE c.book_id = ? AND l.status IN ('active', 'overdue')`, bookID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking book loans: %w", err)
	}
	return n > 0, nil
}

// SetBookCover sets a book's cover image.
func SetBookCover(ctx context.Context, q Querier, id int64, image []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE books SET cover = ?, cover_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting book cover: %w", err)
	}
	return nil
}

// GetBookCover returns a book's cover image and MIME type.
func GetBookCover(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM books WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting book cover: %w", err)
	}
	return image, mime.String, nil
}

func scanBook(row rowScanner) (*model.Book, error) {
	b := &model.Book{}
	var publisher, category, isbn, description, coverMime sql.NullString
	var year sql.NullInt64
	if err := row.Scan(&b.ID, &b.Title, &b.Authors, &publisher, &year, &category, &isbn,
		&description, &coverMime, &b.CreatedAt, &b.UpdatedAt,
		&b.TotalCopies, &b.AvailableCopies); err != nil {
		return nil, err
	}
	b.Publisher = publisher.String
	b.PublishedYear = int(year.Int64)
	b.Category = category.String
	b.ISBN13 = isbn.String
	b.Description = description.String
	b.CoverMime = coverMime.String
	return b, nil
}

func nullYear(y int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(y), Valid: y > 0}
}
