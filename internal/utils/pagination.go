// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// MaxPage caps the page number accepted by ClampPage.
const MaxPage = 1 << 20

// ClampPage parses page and page size query values, falling back to page 1
// and defSize, and caps them at MaxPage and maxSize.
func ClampPage(pageStr, sizeStr string, defSize, maxSize int) (page, size int) {
	page = AtoiDefault(pageStr, 1)
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	size = AtoiDefault(sizeStr, defSize)
	if size < 1 {
		size = 1
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

// PageBounds returns the [start, end) slice bounds of page within total
// items. A page past the end yields an empty range.
func PageBounds(total, page, size int) (start, end int) {
	if total <= 0 || page < 1 || size < 1 {
		return 0, 0
	}
	// Compare before multiplying so huge pages cannot overflow.
	if page-1 > (total-1)/size {
		return total, total
	}
	start = (page - 1) * size
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}

// TotalPages returns how many pages of size hold total items.
func TotalPages(total, size int) int {
	if total <= 0 || size < 1 {
		return 0
	}
	return (total + size - 1) / size
}
