// Package audit implements the framework-agnostic core of the audit subsystem:
// route classification, metadata extraction, redaction, the bounded async record
// writer, and CSV export. The Gin interceptor in internal/middleware composes
// these pieces around each request; nothing in this package imports Gin.
package audit

import (
	"strings"

	"github.com/libreria/libreria-backend/internal/db/models"
)

// RouteRule declares one route family for the classifier: requests whose path
// contains PathSubstring belong to EntityType and are audited only when Audited
// is true. Rules are evaluated in order; the first match wins.
type RouteRule struct {
	PathSubstring string
	EntityType    string
	Audited       bool
}

// DefaultRouteRules reproduces the store's default auditing policy: only book
// inventory operations are recorded. The remaining families exist so entity
// types still resolve for unaudited routes.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		{PathSubstring: "books", EntityType: "Book", Audited: true},
		{PathSubstring: "users", EntityType: "User", Audited: false},
		{PathSubstring: "auth", EntityType: "Auth", Audited: false},
		{PathSubstring: "dashboard", EntityType: "Dashboard", Audited: false},
	}
}

// DefaultExcludedPaths lists path fragments skipped even inside an audited route
// family: cover image uploads, genre/publisher dropdown lookups, test endpoints.
func DefaultExcludedPaths() []string {
	return []string{"/cover", "/image", "/genres", "/publishers", "/filter-options", "/test"}
}

// Classifier maps (HTTP method, route path) pairs to audit actions. A negative
// classification short-circuits the whole interceptor, so unaudited requests
// carry zero audit overhead.
type Classifier struct {
	rules    []RouteRule
	excluded []string
}

// NewClassifier builds a classifier from a route registry and an exclusion list.
// Empty arguments fall back to the defaults.
func NewClassifier(rules []RouteRule, excluded []string) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRouteRules()
	}
	if excluded == nil {
		excluded = DefaultExcludedPaths()
	}
	return &Classifier{rules: rules, excluded: excluded}
}

// match returns the first rule whose substring occurs in the path.
func (c *Classifier) match(path string) (RouteRule, bool) {
	for _, r := range c.rules {
		if strings.Contains(path, r.PathSubstring) {
			return r, true
		}
	}
	return RouteRule{}, false
}

// EntityType resolves the entity classification for a route path, returning
// "unknown" when no rule matches.
func (c *Classifier) EntityType(path string) string {
	if rule, ok := c.match(path); ok {
		return rule.EntityType
	}
	return "unknown"
}

// Classify maps a method and route path (including the raw query string, so
// ?search= requests classify as searches) to an audit action. The second return
// is false when the request must not be audited.
func (c *Classifier) Classify(method, routePath string) (models.AuditAction, bool) {
	if routePath == "" {
		return "", false
	}

	rule, ok := c.match(routePath)
	if !ok || !rule.Audited {
		return "", false
	}

	pathOnly := routePath
	if i := strings.IndexByte(routePath, '?'); i >= 0 {
		pathOnly = routePath[:i]
	}

	for _, ex := range c.excluded {
		if strings.Contains(pathOnly, ex) {
			return "", false
		}
	}

	isSearch := strings.Contains(strings.ToLower(routePath), "search")

	switch method {
	case "GET":
		if isSearch {
			return models.ActionSearched, true
		}
		return models.ActionViewed, true
	case "POST":
		if !addressesResource(pathOnly, rule.PathSubstring) {
			return models.ActionAdded, true
		}
		if isSearch {
			return models.ActionSearched, true
		}
		return "", false
	case "PUT", "PATCH":
		if addressesResource(pathOnly, rule.PathSubstring) {
			return models.ActionUpdated, true
		}
		return "", false
	case "DELETE":
		if addressesResource(pathOnly, rule.PathSubstring) {
			return models.ActionRemoved, true
		}
		return "", false
	}

	return "", false
}

// addressesResource reports whether the path carries a non-empty segment beyond
// the collection root, i.e. it targets a specific resource rather than the
// collection itself.
func addressesResource(path, collection string) bool {
	i := strings.Index(path, collection)
	if i < 0 {
		return false
	}
	rest := strings.Trim(path[i+len(collection):], "/")
	return rest != ""
}
