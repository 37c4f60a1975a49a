package manifest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitlake/pitlake/internal/errors"
)

// MemoryStore is an in-memory Store. It is primarily used for testing,
// in particular to simulate a concurrent sync bumping the manifest
// version mid-query via the OnLoad hook.
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]*Manifest

	// OnLoad, when set, runs before each Load with the load count so
	// far for that dataset. Tests use it to mutate the store between a
	// guard's pin and verify reads.
	OnLoad func(dataset string, loads int)

	loads map[string]int
}

// NewMemoryStore creates an empty in-memory manifest store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests: make(map[string]*Manifest),
		loads:     make(map[string]int),
	}
}

// Put replaces the manifest for a dataset, as the sync pipeline would.
func (s *MemoryStore) Put(dataset string, version uint64, filePaths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(filePaths))
	copy(paths, filePaths)
	s.manifests[dataset] = &Manifest{Dataset: dataset, Version: version, FilePaths: paths}
}

// Load returns a copy of the current manifest for the dataset.
func (s *MemoryStore) Load(ctx context.Context, dataset string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loads[dataset]++
	loads := s.loads[dataset]
	hook := s.OnLoad
	s.mu.Unlock()

	if hook != nil {
		hook(dataset, loads)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[dataset]
	if !ok {
		return nil, errors.NewDataNotFound(fmt.Sprintf("no manifest for dataset %q", dataset))
	}

	paths := make([]string, len(m.FilePaths))
	copy(paths, m.FilePaths)
	return &Manifest{Dataset: m.Dataset, Version: m.Version, FilePaths: paths}, nil
}
