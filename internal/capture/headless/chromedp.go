// Package headless captures a page's blob: script resources with headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Config controls the behavior of the headless capturer.
type Config struct {
	// MaxParallelFetches bounds concurrent blob downloads within one page.
	MaxParallelFetches int
	UserAgent          string
	NavigationTimeout  time.Duration
}

// Capturer implements archive.Capturer using chromedp and headless Chrome.
type Capturer struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

var _ archive.Capturer = (*Capturer)(nil)

// ErrUnknownDevice reports an emulation profile name with no chromedp device.
var ErrUnknownDevice = errors.New("unknown device profile")

const (
	defaultNavTimeout = 90 * time.Second
	defaultParallel   = 4
)

// revokeStub keeps blob: URLs fetchable after the page's loader revokes them.
const revokeStub = `URL.revokeObjectURL = function() {};`

const blobSources = `Array.from(document.querySelectorAll('script[src^="blob:"]'), (e) => e.src)`

// NewChromedp creates a capturer backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Capturer, error) {
	if cfg.MaxParallelFetches < 0 {
		return nil, fmt.Errorf("max parallel fetches must be >= 0")
	}
	if cfg.MaxParallelFetches == 0 {
		cfg.MaxParallelFetches = defaultParallel
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Capturer{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (c *Capturer) Close() {
	c.allocCancel()
}

// Capture loads req.URL in a fresh tab, waits for req.ReadySelector, runs the
// preload expression, reads the version descriptor, and downloads every blob:
// script. It returns only once all blob downloads have finished.
func (c *Capturer) Capture(ctx context.Context, req archive.CaptureRequest) (archive.Capture, error) {
	emulate, err := deviceAction(req.Device)
	if err != nil {
		return archive.Capture{}, err
	}

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	// Tie the tab to the caller's lifetime as well as the allocator's.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.navTimeout())
	defer cancel()

	chromedp.ListenTarget(taskCtx, c.logEvent(req.URL))

	versionExpr := req.VersionExpr
	if versionExpr == "" {
		versionExpr = archive.DefaultVersionExpr
	}

	var (
		desc    archive.Descriptor
		sources []string
	)
	actions := []chromedp.Action{c.networkSetupAction()}
	if emulate != nil {
		actions = append(actions, emulate)
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.Evaluate(revokeStub, nil),
	)
	if req.ReadySelector != "" {
		actions = append(actions, chromedp.WaitReady(req.ReadySelector, chromedp.ByQuery))
	}
	if strings.TrimSpace(req.Preload) != "" {
		actions = append(actions, chromedp.Evaluate(req.Preload, nil, awaitPromise))
	}
	actions = append(actions,
		chromedp.Evaluate(descriptorExpr(versionExpr), &desc),
		chromedp.Evaluate(blobSources, &sources),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return archive.Capture{}, fmt.Errorf("chromedp run %s: %w", req.URL, err)
	}
	if desc.Label == "" || desc.Timestamp == "" {
		return archive.Capture{}, fmt.Errorf("version descriptor %q incomplete: %+v", versionExpr, desc)
	}

	blobs, err := c.fetchBlobs(taskCtx, sources)
	if err != nil {
		return archive.Capture{}, err
	}
	return archive.Capture{Blobs: blobs, Descriptor: desc}, nil
}

// fetchBlobs downloads blob: URLs from inside the page, preserving source order.
func (c *Capturer) fetchBlobs(ctx context.Context, sources []string) ([]archive.Blob, error) {
	blobs := make([]archive.Blob, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelFetches)
	for i, src := range sources {
		g.Go(func() error {
			var text string
			if err := chromedp.Run(gctx, chromedp.Evaluate(fetchExpr(src), &text, awaitPromise)); err != nil {
				return fmt.Errorf("fetch %s: %w", src, err)
			}
			blobs[i] = archive.Blob{Source: src, Lines: strings.Split(text, "\n")}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blobs, nil
}

func (c *Capturer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// logEvent reports page errors and failed requests, which usually explain a
// readiness timeout.
func (c *Capturer) logEvent(pageURL string) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *runtime.EventExceptionThrown:
			if e.ExceptionDetails != nil {
				c.logger.Warn("page error", zap.String("url", pageURL), zap.String("error", e.ExceptionDetails.Text))
			}
		case *network.EventLoadingFailed:
			c.logger.Debug("request failed", zap.String("url", pageURL), zap.String("error", e.ErrorText))
		}
	}
}

func (c *Capturer) navTimeout() time.Duration {
	if c.cfg.NavigationTimeout > 0 {
		return c.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// descriptorExpr normalizes the deployment's version object to strings.
func descriptorExpr(expr string) string {
	return fmt.Sprintf(`(() => { const v = (%s) || {}; return {
		website: String(v.website ?? ''),
		timestamp: String(v.timestamp ?? ''),
		commit: String(v.commit ?? ''),
	}; })()`, expr)
}

func fetchExpr(src string) string {
	return fmt.Sprintf(`fetch(%q).then((r) => r.text())`, src)
}

var devices = map[string]chromedp.Device{
	"iphone 8 plus": device.IPhone8Plus,
	"iphone x":      device.IPhoneX,
	"pixel 2":       device.Pixel2,
	"ipad":          device.IPad,
}

// deviceAction maps a profile name to an emulation action; "" means desktop.
func deviceAction(name string) (chromedp.Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	info, ok := devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return chromedp.Emulate(info), nil
}
