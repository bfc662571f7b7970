// metadata.go derives the entity id, the book metadata snapshot, and the
// human-readable description for an audit record from the request. For deletes
// the metadata is enriched via a synchronous lookup against the books read API;
// lookup failures are logged and swallowed so they never block the delete.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/libreria/libreria-backend/internal/db/models"
)

// BookLookup is the read-only collaborator used to enrich delete records with a
// snapshot of the book being removed. Satisfied by repositories.BookRepository.
type BookLookup interface {
	GetBookByID(ctx context.Context, id string) (*models.Book, error)
}

// Extractor derives entity ids, metadata snapshots, and descriptions from
// request data.
type Extractor struct {
	books  BookLookup
	logger *slog.Logger
}

// NewExtractor creates an Extractor. The logger must not be nil; pass
// slog.Default() when no dedicated logger exists.
func NewExtractor(books BookLookup, logger *slog.Logger) *Extractor {
	return &Extractor{books: books, logger: logger}
}

// EntityID resolves the identifier of the affected entity. Route params win
// (id, then bookId/userId), falling back to an id field in the body.
func (e *Extractor) EntityID(params map[string]string, body map[string]interface{}) *string {
	for _, key := range []string{"id", "bookId", "userId"} {
		if v, ok := params[key]; ok && v != "" {
			return &v
		}
	}
	if body != nil {
		if v, ok := body["id"].(string); ok && v != "" {
			return &v
		}
	}
	return nil
}

// BookMetadata builds the metadata snapshot for a Book record. Returns nil for
// non-Book entities. For deletes with a known id it performs a synchronous
// lookup; a failed or empty lookup logs a warning and returns nil — the delete
// record is still written, just without metadata.
func (e *Extractor) BookMetadata(ctx context.Context, method, entityType string, entityID *string, body map[string]interface{}) *models.BookMetadata {
	if entityType != "Book" {
		return nil
	}

	if method == "DELETE" {
		if entityID == nil || e.books == nil {
			return nil
		}
		book, err := e.books.GetBookByID(ctx, *entityID)
		if err != nil {
			e.logger.Warn("audit metadata lookup failed", "book_id", *entityID, "error", err)
			return nil
		}
		if book == nil {
			e.logger.Warn("audit metadata lookup found no book", "book_id", *entityID)
			return nil
		}
		return &models.BookMetadata{
			Title:       &book.Title,
			Author:      &book.Author,
			Publisher:   &book.Publisher,
			Genre:       &book.Genre,
			Stock:       &book.Stock,
			Price:       &book.Price,
			Description: book.Description,
		}
	}

	if len(body) == 0 {
		return nil
	}
	return &models.BookMetadata{
		Title:       stringField(body, "title"),
		Author:      stringField(body, "author"),
		Publisher:   stringField(body, "publisher"),
		Genre:       stringField(body, "genre"),
		Stock:       intField(body, "stock"),
		Price:       floatField(body, "price"),
		Description: stringField(body, "description"),
	}
}

// Describe produces the record's human-readable summary. Path hints (search,
// export, import, filter, sort, paging) take precedence, then body-derived
// specifics, then a generic per-method fallback.
func (e *Extractor) Describe(method, routePath, entityType string, body map[string]interface{}) string {
	lower := strings.ToLower(routePath)

	switch {
	case strings.Contains(lower, "search"):
		if term := searchTerm(routePath); term != "" {
			return fmt.Sprintf("Búsqueda de libros: '%s'", term)
		}
		return "Búsqueda en el catálogo"
	case strings.Contains(lower, "export"):
		return "Data export requested"
	case strings.Contains(lower, "import"):
		return "Data import requested"
	case strings.Contains(lower, "filter"):
		return "Filtered listing requested"
	case strings.Contains(lower, "sort"):
		return "Sorted listing requested"
	case strings.Contains(lower, "page="), strings.Contains(lower, "paging"):
		return "Paginated listing requested"
	}

	if entityType == "Book" && body != nil {
		if title := stringField(body, "title"); title != nil {
			switch method {
			case "POST":
				return fmt.Sprintf("Book created: '%s' by %s at %s",
					*title, orUnknown(stringField(body, "author")), orUnknown(stringField(body, "publisher")))
			case "PUT", "PATCH":
				return fmt.Sprintf("Book updated: '%s'", *title)
			}
		}
	}

	noun := strings.ToLower(entityType)
	if noun == "unknown" {
		noun = "resource"
	}
	switch method {
	case "GET":
		return fmt.Sprintf("Viewed %s data", noun)
	case "POST":
		return fmt.Sprintf("Created %s record", noun)
	case "PUT", "PATCH":
		return fmt.Sprintf("Updated %s record", noun)
	case "DELETE":
		return fmt.Sprintf("Removed %s record", noun)
	}
	return fmt.Sprintf("%s request on %s", method, noun)
}

// searchTerm pulls the search term out of the query string (search= or q=).
func searchTerm(routePath string) string {
	i := strings.IndexByte(routePath, '?')
	if i < 0 {
		return ""
	}
	values, err := url.ParseQuery(routePath[i+1:])
	if err != nil {
		return ""
	}
	if v := values.Get("search"); v != "" {
		return v
	}
	return values.Get("q")
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}

func stringField(body map[string]interface{}, key string) *string {
	if v, ok := body[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// intField tolerates both float64 (decoded JSON numbers) and int values.
func intField(body map[string]interface{}, key string) *int {
	switch v := body[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	}
	return nil
}

func floatField(body map[string]interface{}, key string) *float64 {
	switch v := body[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}
