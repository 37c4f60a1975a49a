// Package manifest provides read access to the versioned dataset
// manifests published by the sync pipeline. A manifest is the unit of
// snapshot consistency: a monotonically increasing version plus the
// ordered list of partition files that make up the dataset at that
// version. This component only ever reads manifests; all writes belong
// to the sync pipeline.
package manifest

import (
	"context"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Manifest is a read-shared copy of one dataset's manifest row.
type Manifest struct {
	// Dataset is the dataset name the manifest describes.
	Dataset string

	// Version is bumped by the sync pipeline each time it finishes
	// writing new or replacement partitions.
	Version uint64

	// FilePaths is the ordered list of partition files at this version.
	FilePaths []string
}

// Fingerprint hashes the ordered file path list. The metadata cache keys
// on (version, fingerprint) so a manifest row whose paths changed without
// a version bump (sync pipeline bug, manual edit) still invalidates.
func (m *Manifest) Fingerprint() uint64 {
	return murmur3.Sum64([]byte(strings.Join(m.FilePaths, "\x00")))
}

// Store loads manifests by dataset name.
//
// Implementations must be safe for concurrent use. Load returns a
// DATA_NOT_FOUND error when the dataset has no manifest.
type Store interface {
	Load(ctx context.Context, dataset string) (*Manifest, error)
}
