package query

import (
	"context"
	"time"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/manifest"
	"github.com/pitlake/pitlake/internal/pit"
	"github.com/pitlake/pitlake/pkg/types"
)

// GetUniverse returns the company keys in the universe as of asOf, with
// point-in-time ticker and name attached, sorted by company key.
//
// A key enters the universe once its first filing becomes available
// (first_reporting_date + lag <= as_of). With includeInactive false, the
// key must also have a recent filing relative to asOf
// (last_reporting_date + lag >= as_of). An empty universe is an empty
// slice, never an error.
func (s *Service) GetUniverse(ctx context.Context, asOf time.Time, includeInactive bool, kind dataset.Kind) ([]types.UniverseEntry, error) {
	desc, err := dataset.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if err := requireAsOf(asOf); err != nil {
		return nil, err
	}

	lag := s.filingLag(desc, nil)
	asOfDay := pit.Day(asOf)
	cutoff := pit.Cutoff(asOfDay, lag)

	var entries []types.UniverseEntry
	err = s.withSnapshot(ctx, kind, func(ctx context.Context, m *manifest.Manifest) error {
		byKey, keys, err := s.securityMetadata(ctx, m, kind)
		if err != nil {
			return err
		}

		// Ticker and name must come from each key's latest record that
		// was available at asOf, not from the full-history aggregate,
		// or a future ticker change would leak backwards.
		pitMeta, err := s.availableMetadata(ctx, m, cutoff)
		if err != nil {
			return err
		}

		entries = []types.UniverseEntry{}
		for _, key := range keys {
			meta := byKey[key]
			firstAvailable := pit.AvailableDate(meta.FirstReportingDate, lag)
			lastAvailable := pit.AvailableDate(meta.LastReportingDate, lag)

			if firstAvailable.After(asOfDay) {
				continue
			}
			if !includeInactive && lastAvailable.Before(asOfDay) {
				continue
			}

			entry := types.UniverseEntry{
				CompanyKey:     key,
				FirstAvailable: firstAvailable,
				LastAvailable:  lastAvailable,
			}
			if pm, ok := pitMeta[key]; ok {
				entry.Ticker = pm.Ticker
				entry.CompanyName = pm.CompanyName
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
