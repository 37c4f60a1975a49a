package query

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/engine"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
	"github.com/pitlake/pitlake/internal/pit"
	"github.com/pitlake/pitlake/pkg/types"
)

// FundamentalsRequest describes one bulk fundamentals query.
type FundamentalsRequest struct {
	// Dataset selects the dataset kind.
	Dataset dataset.Kind

	// StartDate and EndDate bound reporting_date, inclusive.
	StartDate time.Time
	EndDate   time.Time

	// Keys restricts to the given company keys; nil means all companies.
	Keys []string

	// AsOfDate is the required point-in-time reference date.
	AsOfDate time.Time

	// FilingLagDays overrides the dataset's filing lag; nil uses the
	// configured default.
	FilingLagDays *int

	// Columns is the requested projection; nil means all columns.
	Columns []string
}

// GetFundamentals returns the records in [StartDate, EndDate] that were
// publicly available as of AsOfDate, ordered by (reporting_date,
// company_key). A range overlapping no partitions yields an empty slice,
// never an error.
func (s *Service) GetFundamentals(ctx context.Context, req FundamentalsRequest) ([]types.Record, error) {
	desc, err := dataset.Lookup(req.Dataset)
	if err != nil {
		return nil, err
	}
	if err := requireAsOf(req.AsOfDate); err != nil {
		return nil, err
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, errors.NewValidationError(errors.CodeInvalidRange, "start_date and end_date are required")
	}

	start := pit.Day(req.StartDate)
	end := pit.Day(req.EndDate)
	if start.After(end) {
		return nil, errors.NewValidationError(errors.CodeInvalidRange,
			"start_date must not be after end_date")
	}
	// A negative lag would move the cutoff past as_of_date and admit
	// filings the caller could not have seen yet.
	if req.FilingLagDays != nil && *req.FilingLagDays < 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidRange,
			"filing_lag_days must be non-negative")
	}

	// Projection is validated before any partition is touched.
	cols, err := desc.Projection(req.Columns)
	if err != nil {
		return nil, err
	}

	lag := s.filingLag(desc, req.FilingLagDays)
	asOf := pit.Day(req.AsOfDate)
	cutoff := pit.Cutoff(asOf, lag)

	qid := uuid.NewString()[:8]
	log.Printf("query %s: fundamentals %s [%s, %s] as_of=%s lag=%dd",
		qid, req.Dataset, start.Format("2006-01-02"), end.Format("2006-01-02"),
		asOf.Format("2006-01-02"), lag)

	var records []types.Record
	err = s.withSnapshot(ctx, req.Dataset, func(ctx context.Context, m *manifest.Manifest) error {
		paths := s.resolver.ResolveRange(m.FilePaths, start, end)
		s.stats.RecordQuery(m.Dataset, len(m.FilePaths), len(paths))
		if len(paths) == 0 {
			records = []types.Record{}
			return nil
		}

		h, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer s.pool.Release(h)

		records, err = h.SelectRecords(ctx, desc, engine.SelectSpec{
			Paths:   paths,
			Columns: cols,
			Start:   &start,
			End:     &end,
			Cutoff:  cutoff,
			Keys:    req.Keys,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("query %s: returned %d records", qid, len(records))
	return records, nil
}
