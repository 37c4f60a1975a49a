// Package observability provides query statistics tracking for the
// Pitlake query layer: per-dataset counters for executed queries,
// partition pruning effectiveness, snapshot conflicts, and metadata
// cache recomputes.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks per-dataset query activity.
type QueryStats struct {
	mu       sync.RWMutex
	datasets map[string]*DatasetStats
}

// DatasetStats holds counters for one dataset.
type DatasetStats struct {
	Dataset            string
	Queries            int64
	PartitionsScanned  int64
	PartitionsPruned   int64
	VersionConflicts   int64
	MetadataRecomputes int64
	LastQuery          time.Time
}

// NewQueryStats creates a new query statistics tracker.
func NewQueryStats() *QueryStats {
	return &QueryStats{datasets: make(map[string]*DatasetStats)}
}

// RecordQuery records one executed query: how many partitions the
// manifest carried and how many survived pruning.
// This method is O(1) and thread-safe.
func (q *QueryStats) RecordQuery(dataset string, manifestPartitions, scannedPartitions int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.get(dataset)
	s.Queries++
	s.PartitionsScanned += int64(scannedPartitions)
	if pruned := manifestPartitions - scannedPartitions; pruned > 0 {
		s.PartitionsPruned += int64(pruned)
	}
	s.LastQuery = time.Now()
}

// RecordVersionConflict records a MANIFEST_VERSION_CHANGED signaled to a
// caller of the given dataset.
func (q *QueryStats) RecordVersionConflict(dataset string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.get(dataset).VersionConflicts++
}

// RecordMetadataRecompute records a metadata cache recompute.
func (q *QueryStats) RecordMetadataRecompute(dataset string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.get(dataset).MetadataRecomputes++
}

// get returns the stats entry for a dataset, creating it if needed.
// Must be called with the lock held.
func (q *QueryStats) get(dataset string) *DatasetStats {
	s, ok := q.datasets[dataset]
	if !ok {
		s = &DatasetStats{Dataset: dataset}
		q.datasets[dataset] = s
	}
	return s
}

// Snapshot returns a copy of all per-dataset stats, sorted by dataset
// name.
func (q *QueryStats) Snapshot() []DatasetStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]DatasetStats, 0, len(q.datasets))
	for _, s := range q.datasets {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

// Reset clears all counters.
func (q *QueryStats) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.datasets = make(map[string]*DatasetStats)
}
