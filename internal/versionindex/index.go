// Package versionindex tracks the "last" version pointer and resolves user
// supplied version tags to archived versions.
package versionindex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Index combines a Store's directory listing with a PointerStore.
type Index struct {
	store    archive.Store
	pointers archive.PointerStore
	logger   *zap.Logger
}

// New constructs an Index.
func New(store archive.Store, pointers archive.PointerStore, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, pointers: pointers, logger: logger}
}

// Pointer returns the current pointer. ok is false when none was ever written.
func (i *Index) Pointer(ctx context.Context) (archive.Pointer, bool, error) {
	ptr, err := i.pointers.ReadPointer(ctx)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return archive.Pointer{}, false, nil
		}
		return archive.Pointer{}, false, err
	}
	return ptr, true, nil
}

// Commit moves the pointer to v and returns the new pointer value.
func (i *Index) Commit(ctx context.Context, v archive.Version) (archive.Pointer, error) {
	if err := i.pointers.WritePointer(ctx, v); err != nil {
		return archive.Pointer{}, err
	}
	ptr, err := i.pointers.ReadPointer(ctx)
	if err != nil {
		return archive.Pointer{}, fmt.Errorf("re-read pointer: %w", err)
	}
	return ptr, nil
}

// List returns archived versions oldest first.
func (i *Index) List(ctx context.Context) ([]archive.Version, error) {
	versions, err := i.store.Versions(ctx)
	if err != nil {
		return nil, err
	}
	archive.SortVersions(versions)
	return versions, nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Version archive.Version
	// Fallback is set when the requested tag was not archived and the pointer was used.
	Fallback bool
}

// Resolve maps a tag to a version. "last" (or empty) selects fallback; any other
// tag is normalized and matched against the semver component of every archived
// version, newest first. A miss logs a warning and returns fallback.
func (i *Index) Resolve(ctx context.Context, tag string, fallback archive.Version) (Resolution, error) {
	tag = archive.NormalizeTag(tag)
	if tag == archive.LastTag || tag == fallback.Semver {
		if fallback.IsZero() {
			return Resolution{}, fmt.Errorf("no archived version: %w", archive.ErrNotFound)
		}
		return Resolution{Version: fallback}, nil
	}

	versions, err := i.List(ctx)
	if err != nil {
		return Resolution{}, err
	}
	for idx := len(versions) - 1; idx >= 0; idx-- {
		if versions[idx].Semver == tag {
			return Resolution{Version: versions[idx]}, nil
		}
	}

	if fallback.IsZero() {
		return Resolution{}, fmt.Errorf("version %s: %w", tag, archive.ErrNotFound)
	}
	i.logger.Warn("version not found, using last",
		zap.String("requested", tag),
		zap.String("version", fallback.String()),
	)
	return Resolution{Version: fallback, Fallback: true}, nil
}

// LatestWith returns the newest version holding the artifact for domain/kind.
func (i *Index) LatestWith(ctx context.Context, domain string, kind archive.Kind) (archive.Version, error) {
	versions, err := i.List(ctx)
	if err != nil {
		return archive.Version{}, err
	}
	for idx := len(versions) - 1; idx >= 0; idx-- {
		v := versions[idx]
		if kind == archive.KindAll {
			all, err := i.store.ReadAll(ctx, v, domain)
			if err == nil && len(all) > 0 {
				return v, nil
			}
			continue
		}
		if _, err := i.store.Read(ctx, archive.Ref{Version: v, Domain: domain, Kind: kind}); err == nil {
			return v, nil
		}
	}
	return archive.Version{}, fmt.Errorf("%s.%s: %w", domain, kind, archive.ErrNotFound)
}
