// Package query exposes the public point-in-time query operations over
// versioned fundamentals datasets: bulk fundamentals queries, identifier
// resolution, and universe construction. Every operation pins a manifest
// version before touching any partition and verifies it afterwards, so a
// caller either sees one coherent snapshot or a retryable
// MANIFEST_VERSION_CHANGED error.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/internal/engine"
	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
	"github.com/pitlake/pitlake/internal/metacache"
	"github.com/pitlake/pitlake/internal/observability"
	"github.com/pitlake/pitlake/internal/partition"
	"github.com/pitlake/pitlake/internal/snapshot"
	"github.com/pitlake/pitlake/pkg/types"
)

// ServiceConfig holds the configuration for a query service.
type ServiceConfig struct {
	// DataRoot is the root directory partitions must live under.
	DataRoot string

	// FilingLagDays overrides the per-dataset default filing lag.
	FilingLagDays map[dataset.Kind]int

	// Pool configures the engine handle pool.
	Pool engine.PoolConfig
}

// Service is the read-only PIT query layer. Safe for concurrent use;
// read operations never block on each other.
type Service struct {
	manifests manifest.Store
	resolver  *partition.Resolver
	pool      *engine.Pool
	cache     *metacache.Cache
	stats     *observability.QueryStats
	lags      map[dataset.Kind]int
}

// NewService creates a query service over the given manifest store.
func NewService(store manifest.Store, cfg ServiceConfig) (*Service, error) {
	resolver, err := partition.NewResolver(cfg.DataRoot)
	if err != nil {
		return nil, err
	}

	lags := make(map[dataset.Kind]int, len(cfg.FilingLagDays))
	for kind, lag := range cfg.FilingLagDays {
		if _, err := dataset.Lookup(kind); err != nil {
			return nil, err
		}
		if lag < 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidRange,
				fmt.Sprintf("filing_lag_days for %s must be non-negative, got %d", kind, lag))
		}
		lags[kind] = lag
	}

	s := &Service{
		manifests: store,
		resolver:  resolver,
		pool:      engine.NewPool(cfg.Pool),
		cache:     metacache.New(),
		stats:     observability.NewQueryStats(),
		lags:      lags,
	}
	s.cache.SetRecomputeHook(func(kind dataset.Kind) {
		s.stats.RecordMetadataRecompute(string(kind))
	})
	return s, nil
}

// Close releases the engine handle pool.
func (s *Service) Close() error {
	return s.pool.Close()
}

// Stats returns a snapshot of per-dataset query statistics.
func (s *Service) Stats() []observability.DatasetStats {
	return s.stats.Snapshot()
}

// InvalidateMetadata drops the cached security metadata for a dataset.
// Useful after a known sync completion; correctness never depends on it.
func (s *Service) InvalidateMetadata(kind dataset.Kind) {
	s.cache.Invalidate(kind)
}

// filingLag returns the effective filing lag for a dataset: the caller's
// explicit override, else the configured override, else the descriptor
// default.
func (s *Service) filingLag(desc *dataset.Descriptor, override *int) int {
	if override != nil {
		return *override
	}
	if lag, ok := s.lags[desc.Kind]; ok {
		return lag
	}
	return desc.DefaultFilingLagDays
}

// withSnapshot wraps snapshot.WithSnapshot and records version conflicts.
func (s *Service) withSnapshot(ctx context.Context, kind dataset.Kind, fn func(ctx context.Context, m *manifest.Manifest) error) error {
	err := snapshot.WithSnapshot(ctx, s.manifests, string(kind), fn)
	if errors.GetCode(err) == errors.CodeManifestVersionChanged {
		s.stats.RecordVersionConflict(string(kind))
	}
	return err
}

// requireAsOf validates the required as_of_date parameter.
func requireAsOf(asOf time.Time) error {
	if asOf.IsZero() {
		return errors.NewValidationError(errors.CodeInvalidRange, "as_of_date is required")
	}
	return nil
}

// securityMetadata returns the cached full-history metadata aggregate
// for the pinned manifest, recomputing on version or path changes.
func (s *Service) securityMetadata(ctx context.Context, m *manifest.Manifest, kind dataset.Kind) (map[string]types.SecurityMetadata, []string, error) {
	return s.cache.Get(ctx, kind, m.Version, m.Fingerprint(), func(ctx context.Context) ([]types.SecurityMetadata, error) {
		paths := s.resolver.ResolveAll(m.FilePaths)
		if len(paths) == 0 {
			return []types.SecurityMetadata{}, nil
		}
		h, err := s.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer s.pool.Release(h)
		return h.AggregateMetadata(ctx, paths, nil)
	})
}

// availableMetadata aggregates per-company latest available records as
// of the cutoff, keyed by company key. Unlike securityMetadata this is
// as-of-dependent and therefore never cached.
func (s *Service) availableMetadata(ctx context.Context, m *manifest.Manifest, cutoff time.Time) (map[string]types.SecurityMetadata, error) {
	paths := s.resolver.ResolveAll(m.FilePaths)
	s.stats.RecordQuery(m.Dataset, len(m.FilePaths), len(paths))
	if len(paths) == 0 {
		return map[string]types.SecurityMetadata{}, nil
	}

	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(h)

	metas, err := h.AggregateMetadata(ctx, paths, &cutoff)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]types.SecurityMetadata, len(metas))
	for _, meta := range metas {
		byKey[meta.CompanyKey] = meta
	}
	return byKey, nil
}
