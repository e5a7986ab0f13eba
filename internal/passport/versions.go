package passport

import (
	"context"
	"iter"

	"github.com/kilupskalvis/dpp/internal/models"
)

// GetVersion returns one history entry, or nil if it does not exist.
func (r *Registry) GetVersion(ctx context.Context, id models.TokenID, version uint32) (*models.VersionEntry, error) {
	var e *models.VersionEntry
	err := r.read(ctx, func(t *txn) (err error) {
		e, err = t.version(id, version)
		return err
	})
	return e, err
}

// Versions yields the history of a token from version 1 up to the version
// current when iteration starts. Each range over the sequence starts over.
// An unknown token yields nothing.
func (r *Registry) Versions(ctx context.Context, id models.TokenID) iter.Seq2[models.VersionEntry, error] {
	return func(yield func(models.VersionEntry, error) bool) {
		rec, err := r.GetPassport(ctx, id)
		if err != nil {
			yield(models.VersionEntry{}, err)
			return
		}
		if rec == nil {
			return
		}
		for v := uint32(1); v <= rec.Version; v++ {
			e, err := r.GetVersion(ctx, id, v)
			if err != nil {
				yield(models.VersionEntry{}, err)
				return
			}
			if e == nil {
				continue
			}
			if !yield(*e, nil) {
				return
			}
			if v == rec.Version {
				return
			}
		}
	}
}

// GetVersionHistory returns every entry of a token in ascending version order.
func (r *Registry) GetVersionHistory(ctx context.Context, id models.TokenID) ([]models.VersionEntry, error) {
	var out []models.VersionEntry
	err := r.read(ctx, func(t *txn) error {
		rec, err := t.record(id)
		if err != nil || rec == nil {
			return err
		}
		out = make([]models.VersionEntry, 0, rec.Version)
		for v := uint32(1); v <= rec.Version; v++ {
			e, err := t.version(id, v)
			if err != nil {
				return err
			}
			if e != nil {
				out = append(out, *e)
			}
			if v == rec.Version {
				break
			}
		}
		return nil
	})
	return out, err
}

// GetRecentVersions returns the newest min(limit, version) entries, newest first.
func (r *Registry) GetRecentVersions(ctx context.Context, id models.TokenID, limit uint32) ([]models.VersionEntry, error) {
	var out []models.VersionEntry
	err := r.read(ctx, func(t *txn) error {
		rec, err := t.record(id)
		if err != nil || rec == nil {
			return err
		}
		n := min(limit, rec.Version)
		out = make([]models.VersionEntry, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := t.version(id, rec.Version-i)
			if err != nil {
				return err
			}
			if e != nil {
				out = append(out, *e)
			}
		}
		return nil
	})
	return out, err
}
