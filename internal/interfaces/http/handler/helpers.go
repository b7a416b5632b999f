package handler

import (
	"time"

	"github.com/reconcile/backend/internal/domain/shared"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// parseTimeQuery parses an optional RFC 3339 query value. An empty value
// yields a nil time without error.
func parseTimeQuery(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// toFilter converts common list parameters to a repository filter,
// falling back to the default page bounds and sort order
func toFilter(req dto.ListRequest) shared.Filter {
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	if req.OrderBy != "" {
		filter.OrderBy = req.OrderBy
	}
	if req.OrderDir != "" {
		filter.OrderDir = req.OrderDir
	}
	filter.Search = req.Search
	return filter
}
