package util

import (
	"math"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage keeps the offset inside a 32-bit range.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// Calculate turns a 1-based page and a size into an offset and limit.
// Out-of-range input falls back to the first page and the default size.
func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return (page - 1) * size, size
}

// Atoi parses a query value, returning def for empty or malformed input.
func Atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
