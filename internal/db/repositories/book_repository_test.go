package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/libreria/libreria-backend/internal/db/models"
)

var bookCols = []string{
	"id", "title", "author", "publisher", "genre", "isbn", "stock", "price",
	"description", "cover_path", "is_active", "created_at", "updated_at",
}

func sampleBookRow() *sqlmock.Rows {
	return sqlmock.NewRows(bookCols).
		AddRow("b-1", "Don Quijote", "Cervantes", "Francisco de Robles", "Novela",
			"978-84-376-0494-7", 5, 29.95, nil, nil, true, time.Now(), time.Now())
}

func newBookRepo(t *testing.T) (*BookRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBookRepository(sqlx.NewDb(db, "postgres")), mock
}

// ---------------------------------------------------------------------------
// GetBookByID
// ---------------------------------------------------------------------------

func TestGetBookByID_Found(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery(`SELECT \* FROM books WHERE id = \$1`).
		WithArgs("b-1").
		WillReturnRows(sampleBookRow())

	book, err := repo.GetBookByID(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book == nil {
		t.Fatal("expected book, got nil")
	}
	if book.Title != "Don Quijote" || book.Author != "Cervantes" {
		t.Errorf("book = %+v", book)
	}
}

func TestGetBookByID_NotFound(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery(`SELECT \* FROM books WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(bookCols))

	book, err := repo.GetBookByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book != nil {
		t.Errorf("expected nil book for not found, got %+v", book)
	}
}

func TestGetBookByID_DBError(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery(`SELECT \* FROM books`).
		WithArgs("b-1").
		WillReturnError(errDB)

	if _, err := repo.GetBookByID(context.Background(), "b-1"); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// CreateBook / UpdateBook
// ---------------------------------------------------------------------------

func TestCreateBook_AssignsIDAndDefaults(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectExec("INSERT INTO books").
		WillReturnResult(sqlmock.NewResult(0, 1))

	book := &models.Book{
		Title:     "La Celestina",
		Author:    "Fernando de Rojas",
		Publisher: "Fadrique de Basilea",
		Genre:     "Tragicomedia",
		Stock:     3,
		Price:     15.00,
	}
	if err := repo.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.ID == "" {
		t.Error("expected generated ID")
	}
	if !book.IsActive || book.CreatedAt.IsZero() {
		t.Errorf("defaults not applied: %+v", book)
	}
}

func TestUpdateBook(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectExec("UPDATE books SET title").
		WillReturnResult(sqlmock.NewResult(0, 1))

	book := &models.Book{ID: "b-1", Title: "Don Quijote (2a ed.)", Author: "Cervantes"}
	if err := repo.UpdateBook(context.Background(), book); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

// ---------------------------------------------------------------------------
// DeleteBook / SetCoverPath
// ---------------------------------------------------------------------------

func TestDeleteBook_Deactivates(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectExec(`UPDATE books SET is_active = FALSE`).
		WithArgs("b-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteBook(context.Background(), "b-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetCoverPath(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectExec(`UPDATE books SET cover_path = \$2`).
		WithArgs("b-1", "covers/b-1.jpg", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetCoverPath(context.Background(), "b-1", "covers/b-1.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListBooks
// ---------------------------------------------------------------------------

func TestListBooks_NoFilters(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM books WHERE is_active = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM books WHERE is_active = TRUE ORDER BY created_at DESC LIMIT`).
		WithArgs(20, 0).
		WillReturnRows(sampleBookRow())

	books, total, err := repo.ListBooks(context.Background(), BookSearchFilters{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(books) != 1 {
		t.Fatalf("total = %d, len = %d", total, len(books))
	}
}

func TestListBooks_SearchQueryMatchesTitleOrAuthor(t *testing.T) {
	repo, mock := newBookRepo(t)
	q := "quijote"

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM books WHERE is_active = TRUE AND \(title ILIKE \$1 OR author ILIKE \$1\)`).
		WithArgs("%quijote%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM books.*title ILIKE`).
		WithArgs("%quijote%", 20, 0).
		WillReturnRows(sampleBookRow())

	_, total, err := repo.ListBooks(context.Background(), BookSearchFilters{Query: &q}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestListBooks_CombinedFilters(t *testing.T) {
	repo, mock := newBookRepo(t)
	author := "Cervantes"
	genre := "Novela"

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM books WHERE is_active = TRUE AND author = \$1 AND genre = \$2`).
		WithArgs("Cervantes", "Novela").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM books.*author = \$1 AND genre = \$2`).
		WithArgs("Cervantes", "Novela", 10, 10).
		WillReturnRows(sampleBookRow())

	_, _, err := repo.ListBooks(context.Background(),
		BookSearchFilters{Author: &author, Genre: &genre}, 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListBooks_CountError(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM books`).WillReturnError(errDB)

	if _, _, err := repo.ListBooks(context.Background(), BookSearchFilters{}, 20, 0); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// DistinctFilterValues
// ---------------------------------------------------------------------------

func TestDistinctFilterValues(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery("SELECT DISTINCT genre FROM books").
		WillReturnRows(sqlmock.NewRows([]string{"genre"}).AddRow("Novela").AddRow("Poesía"))
	mock.ExpectQuery("SELECT DISTINCT publisher FROM books").
		WillReturnRows(sqlmock.NewRows([]string{"publisher"}).AddRow("Planeta"))
	mock.ExpectQuery("SELECT DISTINCT author FROM books").
		WillReturnRows(sqlmock.NewRows([]string{"author"}).AddRow("Cervantes").AddRow("Lorca"))

	values, err := repo.DistinctFilterValues(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values.Genres) != 2 || values.Genres[1] != "Poesía" {
		t.Errorf("Genres = %v", values.Genres)
	}
	if len(values.Publishers) != 1 || len(values.Authors) != 2 {
		t.Errorf("values = %+v", values)
	}
}

func TestDistinctFilterValues_DBError(t *testing.T) {
	repo, mock := newBookRepo(t)
	mock.ExpectQuery("SELECT DISTINCT genre FROM books").WillReturnError(errDB)

	if _, err := repo.DistinctFilterValues(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
