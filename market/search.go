package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
)

// Sort keys accepted by Search.
const (
	SortNone      = ""
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortPopular   = "popular"
)

// SearchFilter narrows a listing search. Zero fields match everything.
type SearchFilter struct {
	Keyword   string
	Subject   string
	Faculty   string
	Condition Condition
	Type      ListingType
	Sort      string
}

// Search scans visible books in listing order, applies the filter and sorts
// stably so equal keys keep their listing order.
func (r *BookRegistry) Search(ctx context.Context, f SearchFilter) ([]Book, error) {
	switch f.Sort {
	case SortNone, SortPriceAsc, SortPriceDesc, SortNewest, SortPopular:
	default:
		return nil, fmt.Errorf("sort %q: %w", f.Sort, ErrInvalidInput)
	}

	where := goqu.Ex{"visible": true}
	if f.Subject != "" {
		where["subject"] = f.Subject
	}
	if f.Faculty != "" {
		where["faculty"] = f.Faculty
	}
	if f.Condition != "" {
		where["book_condition"] = string(f.Condition)
	}
	books, err := r.m.db.listBooks(ctx, r.m.reader(), where)
	if err != nil {
		return nil, err
	}

	kw := strings.ToLower(strings.TrimSpace(f.Keyword))
	out := books[:0]
	for _, b := range books {
		if kw != "" && !matchesKeyword(&b, kw) {
			continue
		}
		if f.Type != "" && !b.AvailableTypes.Has(f.Type) {
			continue
		}
		out = append(out, b)
	}

	switch f.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	case SortPopular:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ViewCount > out[j].ViewCount })
	}
	return out, nil
}

func matchesKeyword(b *Book, kw string) bool {
	return strings.Contains(strings.ToLower(b.Title), kw) ||
		strings.Contains(strings.ToLower(b.Author), kw) ||
		strings.Contains(strings.ToLower(b.Description), kw)
}
