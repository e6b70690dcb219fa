package headless

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallelFetches: -1}, nil); err == nil {
		t.Fatal("expected error for negative parallelism")
	}
	capturer, err := NewChromedp(Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer capturer.Close()
	if capturer.cfg.MaxParallelFetches != defaultParallel {
		t.Fatalf("expected default parallelism %d, got %d", defaultParallel, capturer.cfg.MaxParallelFetches)
	}
}

func TestCapturerNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	capturer := &Capturer{}
	if got := capturer.navTimeout(); got != defaultNavTimeout {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	capturer.cfg.NavigationTimeout = time.Second
	if got := capturer.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestDeviceAction(t *testing.T) {
	t.Parallel()

	action, err := deviceAction("")
	if err != nil || action != nil {
		t.Fatalf("expected desktop to need no emulation, got %v, %v", action, err)
	}
	action, err = deviceAction("iPhone 8 Plus")
	if err != nil || action == nil {
		t.Fatalf("expected emulation action, got %v, %v", action, err)
	}
	if _, err := deviceAction("Nokia 3310"); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestExpressions(t *testing.T) {
	t.Parallel()

	expr := descriptorExpr("buildVersion")
	for _, want := range []string{"(buildVersion)", "website:", "timestamp:", "commit:"} {
		if !strings.Contains(expr, want) {
			t.Fatalf("descriptor expression missing %q: %s", want, expr)
		}
	}
	if got := fetchExpr(`blob:https://mega.nz/a"b`); !strings.Contains(got, `"blob:https://mega.nz/a\"b"`) {
		t.Fatalf("fetch expression not quoted safely: %s", got)
	}
}

func TestCaptureRejectsUnknownDevice(t *testing.T) {
	t.Parallel()

	capturer := &Capturer{}
	_, err := capturer.Capture(context.Background(), archive.CaptureRequest{URL: "https://example.com", Device: "toaster"})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestNoopCapturerError(t *testing.T) {
	t.Parallel()

	if _, err := NewNoop().Capture(context.Background(), archive.CaptureRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
