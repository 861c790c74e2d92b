// Package pathutil normalizes dynamic URL paths for metrics labels.
package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the list of patterns for dynamic routes.
// Patterns are evaluated in order from most specific to least specific.
// Pre-compiled at initialization so normalization stays cheap per request.
var pathPatterns = []*PathPattern{
	// Conversation routes, IDs are opaque strings (UUIDs)
	{Pattern: regexp.MustCompile(`^/v1/conversations/[^/]+/messages$`), Template: "/v1/conversations/:id/messages"},
	{Pattern: regexp.MustCompile(`^/v1/conversations/[^/]+$`), Template: "/v1/conversations/:id"},

	// Per-user usage routes
	{Pattern: regexp.MustCompile(`^/v1/usage/[^/]+$`), Template: "/v1/usage/:user_id"},
}

// NormalizePath normalizes dynamic URL paths to prevent metrics label
// cardinality explosion. Paths with embedded identifiers (e.g.
// /v1/conversations/9f1c...) are mapped to template form
// (/v1/conversations/:id). Static paths pass through unchanged.
//
// Query parameters and trailing slashes are stripped first:
//
//	NormalizePath("/v1/usage/u-42?detail=1") // "/v1/usage/:user_id"
//	NormalizePath("/healthz")                // "/healthz"
func NormalizePath(path string) string {
	// Strip query parameters if present
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	// Strip trailing slash if present (except for root path)
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}

	// No match found. Static paths like /healthz and /metrics pass
	// through unchanged.
	return path
}
