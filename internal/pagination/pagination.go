// Package pagination provides limit/offset pagination utilities.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultLimit is applied when the client does not specify one.
	DefaultLimit = 50
	// MaxLimit caps how many records a single page may return.
	MaxLimit = 500
)

// Params holds a parsed page window.
type Params struct {
	Limit  int
	Offset int
}

// FromQuery parses "limit" and "offset" query parameters from a request.
// Out-of-range or malformed values fall back to the defaults.
func FromQuery(c *gin.Context) Params {
	return Params{
		Limit:  parseLimit(c.Query("limit")),
		Offset: parseOffset(c.Query("offset")),
	}
}

func parseLimit(s string) int {
	if s == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func parseOffset(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Meta describes a page in list responses.
type Meta struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
}

// PageMeta builds response metadata for a page fetched with limit+1 items.
// Returns the trimmed items and the metadata.
func PageMeta[T any](items []T, p Params) ([]T, Meta) {
	hasMore := len(items) > p.Limit
	if hasMore {
		items = items[:p.Limit]
	}
	return items, Meta{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Count:   len(items),
		HasMore: hasMore,
	}
}
