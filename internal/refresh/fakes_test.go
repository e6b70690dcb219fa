package refresh_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCapturer answers by URL and device.
type fakeCapturer struct {
	mu       sync.Mutex
	pages    map[string]archive.Capture
	failures map[string]error
	requests []archive.CaptureRequest
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{pages: map[string]archive.Capture{}, failures: map[string]error{}}
}

func captureKey(url, device string) string {
	return url + "|" + device
}

func (f *fakeCapturer) set(url, device string, c archive.Capture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[captureKey(url, device)] = c
}

func (f *fakeCapturer) fail(url, device string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[captureKey(url, device)] = err
}

func (f *fakeCapturer) Capture(_ context.Context, req archive.CaptureRequest) (archive.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	key := captureKey(req.URL, req.Device)
	if err, ok := f.failures[key]; ok {
		return archive.Capture{}, err
	}
	c, ok := f.pages[key]
	if !ok {
		return archive.Capture{}, fmt.Errorf("no page for %s", key)
	}
	return c, nil
}

func (f *fakeCapturer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	tried    int
	acquired int
	released int
}

func (l *fakeLocker) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tried++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Acquire(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	l.held = true
	return nil
}

func (l *fakeLocker) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	l.held = false
	return nil
}

func (l *fakeLocker) IsHeld(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, nil
}

type fakeMirror struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *fakeMirror) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[path] = raw
	return "gs://bucket/" + path, nil
}

var errDiskFull = errors.New("disk full")

// failingStore fails writes of one kind.
type failingStore struct {
	archive.Store
	failKind archive.Kind
}

func (s *failingStore) Write(ctx context.Context, ref archive.Ref, content []byte, opts archive.WriteOptions) error {
	if ref.Kind == s.failKind {
		return errDiskFull
	}
	return s.Store.Write(ctx, ref, content, opts)
}

// vanishingStore removes the whole version right after writing afterKind, as a
// concurrent invocation rolling back a directory it created would.
type vanishingStore struct {
	archive.Store
	afterKind archive.Kind
}

func (s *vanishingStore) Write(ctx context.Context, ref archive.Ref, content []byte, opts archive.WriteOptions) error {
	if err := s.Store.Write(ctx, ref, content, opts); err != nil {
		return err
	}
	if ref.Kind == s.afterKind {
		return s.Store.RemoveVersion(ctx, ref.Version)
	}
	return nil
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}
