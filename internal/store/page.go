package store

import (
	"math"
	"strconv"
	"strings"

	"pragrisk/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

type SortOrder struct {
	Field string
	Desc  bool
}

// PageRequest selects a zero based page.
type PageRequest struct {
	Page int
	Size int
	Sort []SortOrder
}

type Page[P any] struct {
	Items []P
	Total int64
	Page  int
	Size  int
}

func (r PageRequest) Normalized() PageRequest {
	if r.Page < 0 {
		r.Page = 0
	}
	switch {
	case r.Size <= 0:
		r.Size = DefaultPageSize
	case r.Size > MaxPageSize:
		r.Size = MaxPageSize
	}
	// keep Offset from overflowing
	if r.Page > math.MaxInt/r.Size {
		r.Page = math.MaxInt / r.Size
	}
	return r
}

func (r PageRequest) Offset() int { return r.Page * r.Size }

// ParseSort reads "field", "field,asc" or "field,desc".
func ParseSort(values []string) ([]SortOrder, error) {
	orders := make([]SortOrder, 0, len(values))
	for _, v := range values {
		field, dir, _ := strings.Cut(v, ",")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, &models.ValidationError{Field: "sort", Reason: "empty field in " + strconv.Quote(v)}
		}
		o := SortOrder{Field: field}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			o.Desc = true
		default:
			return nil, &models.ValidationError{Field: "sort", Reason: "unknown direction " + strconv.Quote(dir)}
		}
		orders = append(orders, o)
	}
	return orders, nil
}
