// book_repository.go implements BookRepository, providing database queries for the
// book inventory: CRUD, search, cover image paths, and the distinct filter values
// consumed by the audit inventory filter-options endpoint.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/libreria/libreria-backend/internal/db/models"
)

// BookRepository handles book database operations
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository creates a new BookRepository
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// CreateBook inserts a new book
func (r *BookRepository) CreateBook(ctx context.Context, book *models.Book) error {
	book.ID = uuid.New().String()
	book.CreatedAt = time.Now()
	book.UpdatedAt = time.Now()
	book.IsActive = true

	query := `
		INSERT INTO books (id, title, author, publisher, genre, isbn, stock, price, description, cover_path, is_active, created_at, updated_at)
		VALUES (:id, :title, :author, :publisher, :genre, :isbn, :stock, :price, :description, :cover_path, :is_active, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, book)
	return err
}

// GetBookByID retrieves an active book by ID. Returns (nil, nil) when no book exists.
func (r *BookRepository) GetBookByID(ctx context.Context, bookID string) (*models.Book, error) {
	var book models.Book
	query := `SELECT * FROM books WHERE id = $1 AND is_active = TRUE`
	err := r.db.GetContext(ctx, &book, query, bookID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// UpdateBook updates a book's business fields
func (r *BookRepository) UpdateBook(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now()

	query := `
		UPDATE books SET title = :title, author = :author, publisher = :publisher,
			genre = :genre, isbn = :isbn, stock = :stock, price = :price,
			description = :description, updated_at = :updated_at
		WHERE id = :id
	`

	_, err := r.db.NamedExecContext(ctx, query, book)
	return err
}

// DeleteBook deactivates a book. The audit interceptor looks the book up before
// this runs so the delete record carries a metadata snapshot.
func (r *BookRepository) DeleteBook(ctx context.Context, bookID string) error {
	query := `UPDATE books SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, bookID, time.Now())
	return err
}

// SetCoverPath records the storage path of an uploaded cover image
func (r *BookRepository) SetCoverPath(ctx context.Context, bookID, path string) error {
	query := `UPDATE books SET cover_path = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, bookID, path, time.Now())
	return err
}

// BookSearchFilters narrows ListBooks results. All fields are optional.
type BookSearchFilters struct {
	Query     *string // matches title or author, case-insensitive
	Author    *string
	Publisher *string
	Genre     *string
}

// ListBooks retrieves active books with optional search filters and pagination,
// returning the page and the total match count.
func (r *BookRepository) ListBooks(ctx context.Context, filters BookSearchFilters, limit, offset int) ([]*models.Book, int, error) {
	where := ` WHERE is_active = TRUE`
	args := make([]interface{}, 0)

	if filters.Query != nil && *filters.Query != "" {
		where += fmt.Sprintf(` AND (title ILIKE $%d OR author ILIKE $%d)`, len(args)+1, len(args)+1)
		args = append(args, "%"+*filters.Query+"%")
	}
	if filters.Author != nil {
		where += fmt.Sprintf(` AND author = $%d`, len(args)+1)
		args = append(args, *filters.Author)
	}
	if filters.Publisher != nil {
		where += fmt.Sprintf(` AND publisher = $%d`, len(args)+1)
		args = append(args, *filters.Publisher)
	}
	if filters.Genre != nil {
		where += fmt.Sprintf(` AND genre = $%d`, len(args)+1)
		args = append(args, *filters.Genre)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT * FROM books%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	books := make([]*models.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

// DistinctFilterValues returns the distinct non-empty genre, publisher, and
// author values across active books. This queries the live books table, not the
// audit log, so the filter dropdowns reflect the current inventory.
func (r *BookRepository) DistinctFilterValues(ctx context.Context) (*models.BookFilterValues, error) {
	values := &models.BookFilterValues{
		Genres:     make([]string, 0),
		Publishers: make([]string, 0),
		Authors:    make([]string, 0),
	}

	for _, dim := range []struct {
		column string
		dest   *[]string
	}{
		{"genre", &values.Genres},
		{"publisher", &values.Publishers},
		{"author", &values.Authors},
	} {
		query := fmt.Sprintf(
			`SELECT DISTINCT %s FROM books WHERE is_active = TRUE AND %s IS NOT NULL AND %s <> '' ORDER BY %s`,
			dim.column, dim.column, dim.column, dim.column)
		if err := r.db.SelectContext(ctx, dim.dest, query); err != nil {
			return nil, fmt.Errorf("failed to query distinct %s values: %w", dim.column, err)
		}
	}

	return values, nil
}
