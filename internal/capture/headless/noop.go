package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("headless capturer not configured")

// Noop implements archive.Capturer but always fails, for lookups that must never
// touch a browser.
type Noop struct{}

// NewNoop creates a new Noop capturer.
func NewNoop() *Noop {
	return &Noop{}
}

// Capture returns ErrNotConfigured.
func (Noop) Capture(_ context.Context, _ archive.CaptureRequest) (archive.Capture, error) {
	return archive.Capture{}, ErrNotConfigured
}
