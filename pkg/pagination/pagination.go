// Package pagination reads list windows from query strings.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"fleetops/pkg/response"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a validated list window.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the query. pageSize is accepted as an alias
// for limit; missing or malformed values fall back to the defaults and limit
// is capped at MaxLimit.
func Parse(c *gin.Context) Params {
	page := queryInt(c, DefaultPage, "page")
	limit := queryInt(c, DefaultLimit, "limit", "pageSize")

	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Wrap builds the list payload for one page of items.
func (p Params) Wrap(items interface{}, total int64) response.Page {
	pages := 0
	if total > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return response.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}

func queryInt(c *gin.Context, fallback int, keys ...string) int {
	for _, k := range keys {
		raw, ok := c.GetQuery(k)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
		return fallback
	}
	return fallback
}
