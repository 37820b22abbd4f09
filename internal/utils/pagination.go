package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Pagination is a page of a listing.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads the page and limit query params. Bad or missing values
// fall back to the first page of defaultPageSize rows.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := atoiOr(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}

	limit := atoiOr(c.Query("limit"), defaultPageSize)
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Meta is the pagination block returned next to a listing.
func (p Pagination) Meta(total int64) fiber.Map {
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return fiber.Map{
		"current_page":   p.Page,
		"items_per_page": p.Limit,
		"total_items":    total,
		"total_pages":    pages,
	}
}

func atoiOr(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
