package passport

import (
	"context"
	"errors"
	"fmt"
)

// currentLayoutVersion is the version of the bucket layout written by this
// package.
const currentLayoutVersion = 1

var keyLayoutVersion = []byte("layout_version")

// ErrLayoutTooNew is returned by Migrate when the store was written by a
// newer version of the registry.
var ErrLayoutTooNew = errors.New("store layout is newer than this registry supports")

// Migrate brings the store layout up to date. A store without a version is
// either empty or was written before versions were recorded; both are
// version 1. Call it once before serving.
func (r *Registry) Migrate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := newTxn(ctx, r.st)
	version, err := layoutVersion(t)
	if err != nil {
		return err
	}
	if version > currentLayoutVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrLayoutTooNew, version, currentLayoutVersion)
	}
	if version == currentLayoutVersion {
		return nil
	}

	// Future layout changes go here, one step per version.

	if err := t.put(bucketMeta, keyLayoutVersion, currentLayoutVersion); err != nil {
		return err
	}
	if err := t.commit(); err != nil {
		return fmt.Errorf("migration to v%d failed: %w", currentLayoutVersion, err)
	}
	r.logger.Info("store layout migrated", "from", version, "to", currentLayoutVersion)
	return nil
}

// layoutVersion returns the recorded layout version, 0 if none.
func layoutVersion(t *txn) (int, error) {
	var v int
	if _, err := t.get(bucketMeta, keyLayoutVersion, &v); err != nil {
		return 0, err
	}
	return v, nil
}
