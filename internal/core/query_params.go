// internal/core/query_params.go
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default and limit constants for record listing
const (
	DefaultPerPage = 30
	MaxPerPage     = 500
	DefaultOrder   = "asc"
)

// ReservedParams contains query parameter names reserved for pagination and
// sorting. These are never treated as field filters.
var ReservedParams = map[string]bool{
	"page":    true,
	"perPage": true,
	"sort":    true,
	"order":   true,
}

// ListQueryOptions holds parsed query parameters for record listing.
type ListQueryOptions struct {
	Page    int
	PerPage int

	SortBy    string
	SortOrder string // "asc" or "desc"

	// Filters maps field name to the raw equality filter value.
	Filters map[string]string
}

// ParseListQueryOptions extracts pagination, sorting, and filter options from
// query parameters. Every non-reserved parameter becomes an equality filter;
// filter keys are validated here only for shape, the record store validates
// them against the collection schema.
func ParseListQueryOptions(queryParams url.Values) (*ListQueryOptions, error) {
	opts := &ListQueryOptions{
		Page:      1,
		PerPage:   DefaultPerPage,
		SortOrder: DefaultOrder,
		Filters:   map[string]string{},
	}

	if pageStr := queryParams.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid 'page' parameter: must be a positive integer")
		}
		opts.Page = page
	}

	if perPageStr := queryParams.Get("perPage"); perPageStr != "" {
		perPage, err := strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 {
			return nil, fmt.Errorf("invalid 'perPage' parameter: must be a positive integer")
		}
		if perPage > MaxPerPage {
			return nil, fmt.Errorf("invalid 'perPage' parameter: maximum is %d", MaxPerPage)
		}
		opts.PerPage = perPage
	}

	if sortBy := queryParams.Get("sort"); sortBy != "" {
		if !IsValidIdentifier(sortBy) && sortBy != "id" && sortBy != "created" && sortBy != "updated" {
			return nil, fmt.Errorf("invalid 'sort' parameter: '%s' is not a valid field name", sortBy)
		}
		opts.SortBy = sortBy
	}

	if order := queryParams.Get("order"); order != "" {
		lowerOrder := strings.ToLower(order)
		if lowerOrder != "asc" && lowerOrder != "desc" {
			return nil, fmt.Errorf("invalid 'order' parameter: must be 'asc' or 'desc'")
		}
		opts.SortOrder = lowerOrder
	}

	for key, values := range queryParams {
		if IsReservedParam(key) || len(values) == 0 {
			continue
		}
		if !IsValidIdentifier(key) {
			return nil, fmt.Errorf("invalid filter key '%s'", key)
		}
		opts.Filters[key] = values[0]
	}

	return opts, nil
}

// IsReservedParam checks if a query parameter name is reserved for
// pagination/sorting.
func IsReservedParam(key string) bool {
	return ReservedParams[key]
}
