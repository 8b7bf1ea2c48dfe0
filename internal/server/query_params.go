package server

import (
	"strconv"
	"strings"

	invoicedomain "github.com/smallbiznis/payables/internal/invoice/domain"
)

// parseOptionalInt returns 0 when value is empty.
func parseOptionalInt(value string) (int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// parsePaging reads page and per_page. An explicit per_page below one is
// passed on as -1 so it clamps to one instead of falling back to the default.
func parsePaging(page, perPage string) (int, int, error) {
	var violations []invoicedomain.Violation
	p, ok := parseOptionalInt(page)
	if !ok {
		violations = append(violations, invoicedomain.Violation{Field: "page", Message: "The page field must be an integer."})
	}
	pp, ok := parseOptionalInt(perPage)
	if !ok {
		violations = append(violations, invoicedomain.Violation{Field: "per_page", Message: "The per page field must be an integer."})
	}
	if len(violations) > 0 {
		return 0, 0, invoicedomain.NewValidationError(violations...)
	}
	if strings.TrimSpace(perPage) != "" && pp < 1 {
		pp = -1
	}
	return p, pp, nil
}
