package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

type countingCapturer struct{ calls int }

func (c *countingCapturer) Capture(_ context.Context, _ archive.CaptureRequest) (archive.Capture, error) {
	c.calls++
	return archive.Capture{}, nil
}

func TestLimiterWaitSpacesSameHost(t *testing.T) {
	// 10 per second with burst 1: the second call waits about 100ms.
	l := New(Config{PerSecond: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://mega.nz/"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://mega.nz/embed/AAA"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	l := New(Config{PerSecond: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://mega.nz/"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://mega.io/"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur > 100*time.Millisecond {
		t.Errorf("expected no wait for a different host, got %v", dur)
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx, "https://mega.nz/"); err != nil {
			t.Fatal(err)
		}
	}
	if dur := time.Since(start); dur > 100*time.Millisecond {
		t.Errorf("expected unlimited waits to return at once, got %v", dur)
	}
}

func TestCapturerHonorsCancellation(t *testing.T) {
	next := &countingCapturer{}
	c := Wrap(next, New(Config{PerSecond: 0.01, Burst: 1}))
	req := archive.CaptureRequest{URL: "https://mega.nz/"}

	if _, err := c.Capture(context.Background(), req); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Capture(ctx, req)
	if err == nil {
		t.Fatal("expected the second capture to give up waiting")
	}
	if next.calls != 1 {
		t.Fatalf("expected 1 delegated capture, got %d", next.calls)
	}
}
