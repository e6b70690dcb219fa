package archive

import (
	"context"
	"io"
	"time"
)

// WriteOptions control how an artifact is persisted.
type WriteOptions struct {
	Compress bool
	Force    bool
}

// Store persists artifacts under version directories.
type Store interface {
	// CreateVersion creates the directory for v. created is false when it already existed.
	CreateVersion(ctx context.Context, v Version) (created bool, err error)
	// RemoveVersion deletes v and everything below it.
	RemoveVersion(ctx context.Context, v Version) error
	// Write stores content for ref, refusing to overwrite unless opts.Force is set.
	Write(ctx context.Context, ref Ref, content []byte, opts WriteOptions) error
	// Read returns the content for ref, decompressing transparently.
	Read(ctx context.Context, ref Ref) ([]byte, error)
	// ReadAll returns every artifact of domain in v keyed by kind.
	ReadAll(ctx context.Context, v Version, domain string) (map[Kind][]byte, error)
	// Remove deletes one artifact.
	Remove(ctx context.Context, ref Ref) error
	// Versions lists archived versions in directory order.
	Versions(ctx context.Context) ([]Version, error)
}

// PointerStore keeps the "last" record.
type PointerStore interface {
	ReadPointer(ctx context.Context) (Pointer, error)
	WritePointer(ctx context.Context, v Version) error
}

// Locker is an advisory marker meaning "a manual lookup is pending; do not refresh".
type Locker interface {
	// TryAcquire writes the marker unless a young marker is already held.
	TryAcquire(ctx context.Context) (bool, error)
	// Acquire rewrites the marker unconditionally, extending a held lock.
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
	// IsHeld reports whether a marker younger than the grace window exists.
	IsHeld(ctx context.Context) (bool, error)
}

// Capturer loads a page in a browser and returns its script blobs and version descriptor.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (Capture, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Publisher pushes "version archived" events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Mirror copies committed artifacts to remote storage and returns a URI.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
