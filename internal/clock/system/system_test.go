package system

import (
	"testing"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

var _ archive.Clock = (*Clock)(nil)

// TestClockNowUTC ensures lock markers and pointer ages are computed in UTC.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	after := time.Now().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}
