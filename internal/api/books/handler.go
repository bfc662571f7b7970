// Package books implements the inventory HTTP API: book CRUD, search, and
// cover image upload. Write endpoints sit behind JWT auth and are observed by
// the audit middleware, which reads request bodies and route params to build
// its records, so handlers must not consume the body destructively.
package books

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/libreria/libreria-backend/internal/db/models"
	"github.com/libreria/libreria-backend/internal/db/repositories"
	"github.com/libreria/libreria-backend/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxCoverSize bounds cover image uploads at 5 MiB.
	maxCoverSize = 5 << 20

	coverURLTTL = 15 * time.Minute
)

// coverExtensions is the allow-list for cover image uploads.
var coverExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Handler serves the books API.
type Handler struct {
	books   *repositories.BookRepository
	storage storage.Storage
	logger  *slog.Logger
}

// NewHandler creates a books handler. store may be nil, in which case cover
// endpoints respond with 503.
func NewHandler(books *repositories.BookRepository, store storage.Storage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{books: books, storage: store, logger: logger}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func okMsg(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data, "message": msg})
}

func fail(c *gin.Context, code int, err error) {
	c.Error(err)
	c.JSON(code, gin.H{"status": "error", "message": err.Error()})
}

// BookRequest is the payload for creating and updating books.
type BookRequest struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Publisher   string  `json:"publisher"`
	Genre       string  `json:"genre"`
	ISBN        *string `json:"isbn"`
	Stock       int     `json:"stock"`
	Price       float64 `json:"price"`
	Description *string `json:"description"`
}

func (r *BookRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(r.Author) == "" {
		return errors.New("author is required")
	}
	if r.Price < 0 {
		return errors.New("price must not be negative")
	}
	if r.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error,
// which for books means a duplicate ISBN.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// List handles GET /api/v1/books. The search query parameter matches title or
// author; author, publisher, and genre filter exactly.
func (h *Handler) List(c *gin.Context) {
	page := intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := intQuery(c, "limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filters := repositories.BookSearchFilters{
		Query:     strParam(c, "search"),
		Author:    strParam(c, "author"),
		Publisher: strParam(c, "publisher"),
		Genre:     strParam(c, "genre"),
	}

	books, total, err := h.books.ListBooks(c.Request.Context(), filters, limit, (page-1)*limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list books: %w", err))
		return
	}

	totalPages := (total + limit - 1) / limit
	ok(c, gin.H{
		"books":       books,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages,
	})
}

// Get handles GET /api/v1/books/:id.
func (h *Handler) Get(c *gin.Context) {
	book, err := h.books.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load book: %w", err))
		return
	}
	if book == nil {
		fail(c, http.StatusNotFound, errors.New("book not found"))
		return
	}
	ok(c, book)
}

// Create handles POST /api/v1/books.
func (h *Handler) Create(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	book := &models.Book{
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		Genre:       req.Genre,
		ISBN:        req.ISBN,
		Stock:       req.Stock,
		Price:       req.Price,
		Description: req.Description,
	}

	if err := h.books.CreateBook(c.Request.Context(), book); err != nil {
		if isUniqueViolation(err) {
			fail(c, http.StatusConflict, errors.New("a book with this ISBN already exists"))
			return
		}
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create book: %w", err))
		return
	}

	h.logger.Info("book created", "book_id", book.ID, "title", book.Title)
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": book, "message": "book created"})
}

// Update handles PUT /api/v1/books/:id.
func (h *Handler) Update(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	book, err := h.books.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load book: %w", err))
		return
	}
	if book == nil {
		fail(c, http.StatusNotFound, errors.New("book not found"))
		return
	}

	book.Title = req.Title
	book.Author = req.Author
	book.Publisher = req.Publisher
	book.Genre = req.Genre
	book.ISBN = req.ISBN
	book.Stock = req.Stock
	book.Price = req.Price
	book.Description = req.Description

	if err := h.books.UpdateBook(c.Request.Context(), book); err != nil {
		if isUniqueViolation(err) {
			fail(c, http.StatusConflict, errors.New("a book with this ISBN already exists"))
			return
		}
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to update book: %w", err))
		return
	}

	okMsg(c, book, "book updated")
}

// Delete handles DELETE /api/v1/books/:id. Books are deactivated, not erased,
// so historical audit records can still resolve them.
func (h *Handler) Delete(c *gin.Context) {
	book, err := h.books.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load book: %w", err))
		return
	}
	if book == nil {
		fail(c, http.StatusNotFound, errors.New("book not found"))
		return
	}

	if err := h.books.DeleteBook(c.Request.Context(), book.ID); err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete book: %w", err))
		return
	}

	h.logger.Info("book deleted", "book_id", book.ID, "title", book.Title)
	okMsg(c, gin.H{"id": book.ID}, "book deleted")
}

// FilterOptions handles GET /api/v1/books/filter-options, returning the
// distinct genre, publisher, and author values for search dropdowns.
func (h *Handler) FilterOptions(c *gin.Context) {
	values, err := h.books.DistinctFilterValues(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load filter options: %w", err))
		return
	}
	ok(c, values)
}

// UploadCover handles POST /api/v1/books/:id/cover. The image is stored under
// covers/<book-id><ext> and the path recorded on the book row.
func (h *Handler) UploadCover(c *gin.Context) {
	if h.storage == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("file storage is not configured"))
		return
	}

	book, err := h.books.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load book: %w", err))
		return
	}
	if book == nil {
		fail(c, http.StatusNotFound, errors.New("book not found"))
		return
	}

	file, err := c.FormFile("cover")
	if err != nil {
		fail(c, http.StatusBadRequest, errors.New("cover file is required"))
		return
	}
	if file.Size > maxCoverSize {
		fail(c, http.StatusRequestEntityTooLarge, fmt.Errorf("cover image exceeds %d bytes", maxCoverSize))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, allowed := coverExtensions[ext]; !allowed {
		fail(c, http.StatusBadRequest, fmt.Errorf("unsupported cover format %q", ext))
		return
	}

	src, err := file.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	defer src.Close()

	path := fmt.Sprintf("covers/%s%s", book.ID, ext)
	result, err := h.storage.Upload(c.Request.Context(), path, src, file.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to store cover: %w", err))
		return
	}

	if err := h.books.SetCoverPath(c.Request.Context(), book.ID, result.Path); err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to record cover path: %w", err))
		return
	}

	h.logger.Info("cover uploaded", "book_id", book.ID, "path", result.Path, "size", result.Size)
	okMsg(c, gin.H{"cover_path": result.Path}, "cover uploaded")
}

// Cover handles GET /api/v1/books/:id/cover, redirecting to a short-lived
// download URL for the stored cover image.
func (h *Handler) Cover(c *gin.Context) {
	if h.storage == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("file storage is not configured"))
		return
	}

	book, err := h.books.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load book: %w", err))
		return
	}
	if book == nil || book.CoverPath == nil || *book.CoverPath == "" {
		fail(c, http.StatusNotFound, errors.New("cover not found"))
		return
	}

	url, err := h.storage.GetURL(c.Request.Context(), *book.CoverPath, coverURLTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to resolve cover URL: %w", err))
		return
	}
	c.Redirect(http.StatusFound, url)
}

func strParam(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
