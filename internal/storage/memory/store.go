// Package memory keeps an archive in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

type artifactKey struct {
	domain string
	kind   archive.Kind
}

// Store is an in-memory archive.Store and archive.PointerStore.
type Store struct {
	mu       sync.RWMutex
	versions map[archive.Version]map[artifactKey][]byte
	pointer  archive.Pointer
	hasPtr   bool
	now      func() time.Time
}

var (
	_ archive.Store        = (*Store)(nil)
	_ archive.PointerStore = (*Store)(nil)
)

// NewStore creates an empty store. clock stamps pointer updates; nil uses time.Now.
func NewStore(clock archive.Clock) *Store {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Store{
		versions: make(map[archive.Version]map[artifactKey][]byte),
		now:      now,
	}
}

// CreateVersion registers v.
func (s *Store) CreateVersion(_ context.Context, v archive.Version) (bool, error) {
	if v.Timestamp <= 0 || v.Semver == "" {
		return false, fmt.Errorf("%w: %q", archive.ErrInvalidVersion, v.String())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[v]; ok {
		return false, nil
	}
	s.versions[v] = make(map[artifactKey][]byte)
	return true, nil
}

// RemoveVersion drops v.
func (s *Store) RemoveVersion(_ context.Context, v archive.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, v)
	return nil
}

// Write stores a copy of content. Compression is a no-op in memory.
func (s *Store) Write(_ context.Context, ref archive.Ref, content []byte, opts archive.WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.versions[ref.Version]
	if !ok {
		return fmt.Errorf("version %s: %w", ref.Version, archive.ErrNotFound)
	}
	key := artifactKey{domain: ref.Domain, kind: ref.Kind}
	if _, exists := files[key]; exists && !opts.Force {
		return fmt.Errorf("write %s: %w", ref, archive.ErrAlreadyExists)
	}
	files[key] = append([]byte(nil), content...)
	return nil
}

// Read returns a copy of the stored content.
func (s *Store) Read(_ context.Context, ref archive.Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.versions[ref.Version][artifactKey{domain: ref.Domain, kind: ref.Kind}]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, archive.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// ReadAll returns copies of every artifact of domain in v.
func (s *Store) ReadAll(_ context.Context, v archive.Version, domain string) (map[archive.Kind][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, ok := s.versions[v]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", v, archive.ErrNotFound)
	}
	out := make(map[archive.Kind][]byte)
	for key, data := range files {
		if key.domain == domain {
			out[key.kind] = append([]byte(nil), data...)
		}
	}
	return out, nil
}

// Remove deletes one artifact.
func (s *Store) Remove(_ context.Context, ref archive.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if files, ok := s.versions[ref.Version]; ok {
		delete(files, artifactKey{domain: ref.Domain, kind: ref.Kind})
	}
	return nil
}

// Versions lists versions oldest first.
func (s *Store) Versions(_ context.Context) ([]archive.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.Version, 0, len(s.versions))
	for v := range s.versions {
		out = append(out, v)
	}
	archive.SortVersions(out)
	return out, nil
}

// ReadPointer returns the pointer.
func (s *Store) ReadPointer(_ context.Context) (archive.Pointer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasPtr {
		return archive.Pointer{}, fmt.Errorf("pointer: %w", archive.ErrNotFound)
	}
	return s.pointer, nil
}

// WritePointer replaces the pointer.
func (s *Store) WritePointer(_ context.Context, v archive.Version) error {
	if v.IsZero() {
		return fmt.Errorf("write pointer: %w", archive.ErrInvalidVersion)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = archive.Pointer{Version: v, Updated: s.now()}
	s.hasPtr = true
	return nil
}

// SetPointerUpdated backdates the pointer, letting tests age the archive.
func (s *Store) SetPointerUpdated(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer.Updated = at
}
