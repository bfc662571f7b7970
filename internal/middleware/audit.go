// audit.go provides the Gin middleware that turns matching HTTP requests into
// audit log records: classify the route, snapshot and redact the request, let
// the handler run with a body-capturing writer, then finalize the record from
// the outcome and hand it to the asynchronous recorder.
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libreria/libreria-backend/internal/audit"
	"github.com/libreria/libreria-backend/internal/db/models"
)

// maxCapturedBody caps how much of a response body the audit writer buffers.
// Larger responses are still streamed to the client in full.
const maxCapturedBody = 1 << 20 // 1 MiB

// bodyCaptureWriter tees the response body into a buffer so the middleware can
// summarize it after the handler chain completes.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxCapturedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	if w.body.Len() < maxCapturedBody {
		w.body.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// Auditor bundles the audit collaborators the middleware needs.
type Auditor struct {
	Classifier *audit.Classifier
	Extractor  *audit.Extractor
	Recorder   audit.Recorder
}

// AuditMiddleware intercepts every request, classifies it against the route
// rules, and records an audit entry for the ones that match. A failure anywhere
// in the audit path never fails the underlying request: recording is
// fire-and-forget and classification misses simply pass through.
func AuditMiddleware(a Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		// RequestURI keeps the query string so ?search= requests classify
		// as searches.
		action, ok := a.Classifier.Classify(c.Request.Method, c.Request.URL.RequestURI())
		if !ok {
			c.Next()
			return
		}

		start := time.Now()
		entityType := a.Classifier.EntityType(c.Request.URL.Path)
		body := readJSONBody(c)
		params := pathParams(c)
		entityID := a.Extractor.EntityID(params, body)

		// For deletes the entity is gone once the handler runs, so the
		// metadata snapshot has to be taken up front.
		var metadata *models.BookMetadata
		if c.Request.Method == "DELETE" {
			metadata = a.Extractor.BookMetadata(c.Request.Context(), c.Request.Method, entityType, entityID, body)
		}

		entry := &models.AuditLog{
			Action:          action,
			EntityType:      entityType,
			EntityID:        entityID,
			Description:     a.Extractor.Describe(c.Request.Method, c.Request.URL.RequestURI(), entityType, body),
			RequestSnapshot: requestSnapshot(c, body),
			Status:          models.StatusPending,
			Level:           models.LevelInfo,
			IPAddress:       c.ClientIP(),
			UserAgent:       c.Request.UserAgent(),
			Endpoint:        c.Request.URL.Path,
			HTTPMethod:      c.Request.Method,
			CreatedAt:       time.Now(),
		}
		setActor(c, entry)

		capture := &bodyCaptureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = capture

		c.Next()

		entry.ResponseTimeMs = time.Since(start).Milliseconds()

		if metadata == nil && c.Request.Method != "DELETE" {
			metadata = a.Extractor.BookMetadata(c.Request.Context(), c.Request.Method, entityType, entityID, body)
		}
		entry.Metadata = metadata

		status := c.Writer.Status()
		if status >= 400 || len(c.Errors) > 0 {
			entry.Status = models.StatusFailure
			entry.Level = models.LevelError
			msg := failureMessage(c, status)
			entry.ErrorMessage = &msg
		} else {
			entry.Status = models.StatusSuccess
			entry.ResponseSnapshot = responseSnapshot(capture.body.Bytes())
		}

		a.Recorder.Record(entry)
	}
}

// readJSONBody buffers and re-installs the request body so downstream handlers
// can still bind it, then returns the parsed JSON object. Non-JSON and non-object
// bodies yield nil.
func readJSONBody(c *gin.Context) map[string]interface{} {
	if c.Request.Body == nil {
		return nil
	}
	raw, err := c.GetRawData()
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if len(raw) == 0 {
		return nil
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

// pathParams flattens Gin's route parameters into a plain map.
func pathParams(c *gin.Context) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return params
}

// requestSnapshot assembles the redacted request-side snapshot.
func requestSnapshot(c *gin.Context, body map[string]interface{}) map[string]interface{} {
	snap := map[string]interface{}{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"headers": audit.RedactHeaders(c.Request.Header),
	}
	if q := c.Request.URL.RawQuery; q != "" {
		snap["query"] = q
	}
	if body != nil {
		snap["body"] = audit.RedactBody(body)
	}
	return snap
}

// responseSnapshot parses the captured response body and reduces it to a
// sanitized summary. Unparseable or empty bodies yield a bare status marker.
func responseSnapshot(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]interface{}{"body": "[non-json]"}
	}
	return audit.SanitizeResponse(data)
}

// setActor copies the authenticated principal, if any, from the Gin context
// keys populated by the auth middleware.
func setActor(c *gin.Context, entry *models.AuditLog) {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok && id != "" {
			entry.ActorID = &id
		}
	}
	if v, ok := c.Get("email"); ok {
		if email, ok := v.(string); ok && email != "" {
			entry.ActorEmail = &email
		}
	}
	if v, ok := c.Get("display_name"); ok {
		if name, ok := v.(string); ok && name != "" {
			entry.ActorDisplayName = &name
		}
	}
}

// failureMessage prefers the handler's recorded error over a generic status line.
func failureMessage(c *gin.Context, status int) string {
	if last := c.Errors.Last(); last != nil {
		return last.Error()
	}
	return fmt.Sprintf("request failed with status %d", status)
}
