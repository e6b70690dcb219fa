// Package lock implements the advisory "manual lookup pending" marker as a file
// holding an RFC 3339 timestamp. A marker younger than the grace window is held;
// an older one is ignored and may be removed.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// FileName is the marker's name inside the archive root.
const FileName = "locked"

// DefaultGrace is how long a marker suppresses refreshes.
const DefaultGrace = 24 * time.Hour

// Config configures a FileLocker.
type Config struct {
	Dir   string
	Grace time.Duration
}

// FileLocker implements archive.Locker with a marker file.
type FileLocker struct {
	path  string
	grace time.Duration
	clock archive.Clock
}

var _ archive.Locker = (*FileLocker)(nil)

// NewFileLocker constructs a FileLocker.
func NewFileLocker(cfg Config, clock archive.Clock) (*FileLocker, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("lock directory is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &FileLocker{
		path:  filepath.Join(cfg.Dir, FileName),
		grace: cfg.Grace,
		clock: clock,
	}, nil
}

// Path returns the marker path.
func (l *FileLocker) Path() string {
	return l.path
}

// Grace returns the grace window.
func (l *FileLocker) Grace() time.Duration {
	return l.grace
}

// Since returns the marker timestamp. ok is false when no marker exists.
func (l *FileLocker) Since(_ context.Context) (time.Time, bool, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read lock marker: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		// Unparseable markers age by modification time.
		info, statErr := os.Stat(l.path)
		if statErr != nil {
			return time.Time{}, false, fmt.Errorf("stat lock marker: %w", statErr)
		}
		at = info.ModTime()
	}
	return at, true, nil
}

// IsHeld reports whether a marker younger than the grace window exists.
func (l *FileLocker) IsHeld(ctx context.Context) (bool, error) {
	at, ok, err := l.Since(ctx)
	if err != nil || !ok {
		return false, err
	}
	return l.clock.Now().Sub(at) < l.grace, nil
}

// TryAcquire writes a fresh marker unless a young one is already held.
func (l *FileLocker) TryAcquire(ctx context.Context) (bool, error) {
	held, err := l.IsHeld(ctx)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}
	if err := l.Acquire(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Acquire (re)writes the marker with the current time, extending a held lock.
func (l *FileLocker) Acquire(_ context.Context) error {
	stamp := l.clock.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(l.path, []byte(stamp+"\n"), 0o600); err != nil {
		return fmt.Errorf("write lock marker: %w", err)
	}
	return nil
}

// Release removes the marker. Releasing an absent marker is not an error.
func (l *FileLocker) Release(_ context.Context) error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock marker: %w", err)
	}
	return nil
}
