// Package partition selects the subset of manifest file paths that can
// contain rows for a requested date range, using the calendar year token
// encoded in each partition file name. A single corrupt manifest entry is
// skipped with a warning rather than failing the whole query.
package partition

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Resolver prunes manifest paths by year token and validates each
// candidate against the configured data root.
type Resolver struct {
	validator *PathValidator
}

// NewResolver creates a resolver that accepts only paths under dataRoot.
func NewResolver(dataRoot string) (*Resolver, error) {
	v, err := NewPathValidator(dataRoot)
	if err != nil {
		return nil, err
	}
	return &Resolver{validator: v}, nil
}

// ResolveRange returns the manifest paths whose year token overlaps
// [start, end], in manifest order. An empty result is not an error: a
// range touching no partitions simply yields no rows.
func (r *Resolver) ResolveRange(filePaths []string, start, end time.Time) []string {
	startYear, endYear := start.Year(), end.Year()

	var out []string
	for _, p := range filePaths {
		year, ok := parseYearToken(p)
		if !ok {
			log.Printf("partition: skipping manifest entry with malformed year token: %s", p)
			continue
		}
		if year < startYear || year > endYear {
			continue
		}
		abs, ok := r.validator.Validate(p)
		if !ok {
			continue
		}
		out = append(out, abs)
	}
	return out
}

// ResolveAll returns every valid manifest path, in manifest order. Used
// by operations with no date range (identifier resolution, metadata
// aggregation), which must see the whole dataset.
func (r *Resolver) ResolveAll(filePaths []string) []string {
	var out []string
	for _, p := range filePaths {
		if _, ok := parseYearToken(p); !ok {
			log.Printf("partition: skipping manifest entry with malformed year token: %s", p)
			continue
		}
		abs, ok := r.validator.Validate(p)
		if !ok {
			continue
		}
		out = append(out, abs)
	}
	return out
}

// parseYearToken extracts the calendar year from a partition file name
// of the form <year>.<ext>, e.g. 2023.parquet.
func parseYearToken(path string) (int, bool) {
	base := filepath.Base(path)
	stem, _, found := strings.Cut(base, ".")
	if !found || len(stem) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(stem)
	if err != nil || year < 1000 || year > 9999 {
		return 0, false
	}
	return year, true
}
