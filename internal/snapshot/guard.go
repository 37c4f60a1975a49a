// Package snapshot implements the optimistic snapshot-consistency guard.
//
// Every public operation pins the manifest version before doing any work
// and re-checks it after, failing with MANIFEST_VERSION_CHANGED when a
// concurrent sync rewrote the dataset mid-query. No locks are taken
// against the sync pipeline: the guard detects interference, it never
// prevents it. The component performs no automatic retries; retry policy
// belongs to the caller (errors.IsRetryable exposes the signal).
package snapshot

import (
	"context"

	"github.com/pitlake/pitlake/internal/errors"
	"github.com/pitlake/pitlake/internal/manifest"
)

// WithSnapshot runs fn against a pinned manifest and verifies the version
// is unchanged afterwards. fn receives a read-shared copy of the manifest
// and must not retain it past the call.
//
// The verify load runs whether fn succeeded or not: a failure produced
// while a sync was rewriting the dataset (a read against replaced files,
// a lookup missing rows the new snapshot has) is as stale as a torn
// result, so a version change always wins and surfaces as the retryable
// MANIFEST_VERSION_CHANGED, carrying fn's error as the cause. With the
// version intact, fn's error propagates unchanged.
func WithSnapshot(ctx context.Context, store manifest.Store, dataset string, fn func(ctx context.Context, m *manifest.Manifest) error) error {
	pinned, err := store.Load(ctx, dataset)
	if err != nil {
		return err
	}

	opErr := fn(ctx, pinned)

	verify, err := store.Load(ctx, dataset)
	if err != nil {
		if opErr != nil {
			return opErr
		}
		return err
	}
	if verify.Version != pinned.Version {
		conflict := errors.NewManifestVersionChanged(dataset, pinned.Version, verify.Version)
		conflict.Cause = opErr
		return conflict
	}
	return opErr
}
