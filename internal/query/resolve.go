package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
	"github.com/pitlake/pitlake/internal/pit"
)

// KeyToTicker returns the ticker from the most recent record for the
// company key that was publicly available as of asOf. It fails with
// DATA_NOT_FOUND when the key is unknown, has no available filing yet,
// or its latest available filing reports no ticker.
func (s *Service) KeyToTicker(ctx context.Context, companyKey string, asOf time.Time, kind dataset.Kind) (string, error) {
	desc, err := dataset.Lookup(kind)
	if err != nil {
		return "", err
	}
	if err := requireAsOf(asOf); err != nil {
		return "", err
	}
	if companyKey == "" {
		return "", errors.NewValidationError(errors.CodeInvalidRange, "company_key is required")
	}

	cutoff := pit.Cutoff(pit.Day(asOf), s.filingLag(desc, nil))

	var ticker string
	err = s.withSnapshot(ctx, kind, func(ctx context.Context, m *manifest.Manifest) error {
		paths := s.resolver.ResolveAll(m.FilePaths)
		s.stats.RecordQuery(m.Dataset, len(m.FilePaths), len(paths))

		h, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer s.pool.Release(h)

		t, found, err := h.LatestTicker(ctx, paths, companyKey, cutoff)
		if err != nil {
			return err
		}
		if !found || t == nil {
			return errors.NewDataNotFound(
				"no available ticker for company key " + companyKey +
					" as of " + asOf.Format("2006-01-02"))
		}
		ticker = *t
		return nil
	})
	if err != nil {
		return "", err
	}
	return ticker, nil
}

// TickerToKey resolves a ticker to the single company key whose most
// recent available record (as of asOf) carries it, case-insensitively.
// Zero matches fail with DATA_NOT_FOUND. More than one match fails with
// AMBIGUOUS_KEY carrying the candidate keys; the resolver never guesses.
func (s *Service) TickerToKey(ctx context.Context, ticker string, asOf time.Time, kind dataset.Kind) (string, error) {
	desc, err := dataset.Lookup(kind)
	if err != nil {
		return "", err
	}
	if err := requireAsOf(asOf); err != nil {
		return "", err
	}
	if ticker == "" {
		return "", errors.NewValidationError(errors.CodeInvalidRange, "ticker is required")
	}

	asOfDay := pit.Day(asOf)
	cutoff := pit.Cutoff(asOfDay, s.filingLag(desc, nil))

	var companyKey string
	err = s.withSnapshot(ctx, kind, func(ctx context.Context, m *manifest.Manifest) error {
		byKey, err := s.availableMetadata(ctx, m, cutoff)
		if err != nil {
			return err
		}

		var candidates []string
		for key, meta := range byKey {
			if meta.Ticker != nil && strings.EqualFold(*meta.Ticker, ticker) {
				candidates = append(candidates, key)
			}
		}
		sort.Strings(candidates)

		switch len(candidates) {
		case 0:
			return errors.NewDataNotFound(
				"no company with ticker " + ticker + " as of " + asOfDay.Format("2006-01-02"))
		case 1:
			companyKey = candidates[0]
			return nil
		default:
			return errors.NewAmbiguousKey(ticker, asOfDay.Format("2006-01-02"), candidates)
		}
	})
	if err != nil {
		return "", err
	}
	return companyKey, nil
}
