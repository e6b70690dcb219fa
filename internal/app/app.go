// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/capture/headless"
	"github.com/JakeFAU/bundle-archiver/internal/clock/system"
	"github.com/JakeFAU/bundle-archiver/internal/config"
	"github.com/JakeFAU/bundle-archiver/internal/hash/sha256"
	"github.com/JakeFAU/bundle-archiver/internal/id/uuid"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/lock"
	"github.com/JakeFAU/bundle-archiver/internal/metrics"
	"github.com/JakeFAU/bundle-archiver/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/bundle-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
	"github.com/JakeFAU/bundle-archiver/internal/storage/gcs"
	"github.com/JakeFAU/bundle-archiver/internal/storage/local"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// App holds the shared, long-lived services of one invocation: the archive
// store and its version index, the lock marker, the page capturer and the
// optional notification and mirror clients. It is built once by the root
// command and closed when the command finishes.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    archive.Clock
	store    *local.Store
	index    *versionindex.Index
	locker   *lock.FileLocker
	resolver *locate.Resolver
	planner  *refresh.Planner
	closers  []func()
}

// Option customizes New. Options exist so tests can swap out collaborators that
// reach outside the process.
type Option func(*options)

type options struct {
	capturer  archive.Capturer
	clock     archive.Clock
	publisher archive.Publisher
	mirror    archive.Mirror
}

// WithCapturer replaces the headless Chrome capturer.
func WithCapturer(c archive.Capturer) Option {
	return func(o *options) { o.capturer = c }
}

// WithClock replaces the system clock.
func WithClock(c archive.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPublisher replaces the Pub/Sub publisher built from configuration.
func WithPublisher(p archive.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithMirror replaces the GCS mirror built from configuration.
func WithMirror(m archive.Mirror) Option {
	return func(o *options) { o.mirror = m }
}

// New creates and initializes an App from cfg. It fails fast if any configured
// service cannot be initialized; services already opened are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, clock: o.clock}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if a.clock == nil {
		a.clock = system.New()
	}
	metrics.Init()

	a.store, err = local.New(local.Config{BaseDir: cfg.Archive.Path})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.index = versionindex.New(a.store, a.store, logger.Named("versions"))
	a.locker, err = lock.NewFileLocker(lock.Config{Dir: cfg.Archive.Path, Grace: cfg.Lock.Grace}, a.clock)
	if err != nil {
		return nil, fmt.Errorf("init lock: %w", err)
	}
	a.resolver = locate.NewResolver(a.index, a.store, logger.Named("locate"))

	capturer := o.capturer
	if capturer == nil && !cfg.Capture.Enabled {
		logger.Info("capture disabled; refreshes will fail until capture.enabled is set")
		capturer = headless.NewNoop()
	}
	if capturer == nil {
		chrome, cerr := headless.NewChromedp(headless.Config{
			MaxParallelFetches: cfg.Capture.MaxParallelFetches,
			UserAgent:          cfg.Capture.UserAgent,
			NavigationTimeout:  cfg.NavigationTimeout(),
		}, logger.Named("capture"))
		if cerr != nil {
			return nil, fmt.Errorf("init capturer: %w", cerr)
		}
		a.closers = append(a.closers, chrome.Close)
		capturer = chrome
	}
	capturer = ratelimit.Wrap(capturer, ratelimit.New(ratelimit.Config{
		PerSecond: cfg.Capture.RatePerSecond,
		Burst:     cfg.Capture.RateBurst,
	}))

	publisher := o.publisher
	if publisher == nil && cfg.PubSub.TopicName != "" {
		client, perr := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			return nil, fmt.Errorf("init pubsub: %w", perr)
		}
		pub := pubsubpublisher.New(client)
		a.closers = append(a.closers, func() {
			pub.Close()
			if cerr := client.Close(); cerr != nil {
				logger.Warn("pubsub client close failed", zap.Error(cerr))
			}
		})
		logger.Info("publishing archive notifications", zap.String("topic", cfg.PubSub.TopicName))
		publisher = pub
	}

	mirror := o.mirror
	if mirror == nil && cfg.Storage.GCSBucket != "" {
		client, serr := storage.NewClient(ctx)
		if serr != nil {
			return nil, fmt.Errorf("init gcs: %w", serr)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		})
		m, merr := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if merr != nil {
			return nil, fmt.Errorf("init mirror: %w", merr)
		}
		logger.Info("mirroring artifacts", zap.String("bucket", cfg.Storage.GCSBucket))
		mirror = m
	}

	a.planner, err = refresh.New(refresh.Config{
		Sites:        cfg.Sites,
		RefreshAfter: cfg.Archive.RefreshAfter,
		Compress:     cfg.Archive.Compress,
		MobileDevice: cfg.Capture.MobileDevice,
		Topic:        cfg.PubSub.TopicName,
		MirrorPrefix: cfg.Storage.Prefix,
	}, refresh.Dependencies{
		Store:     a.store,
		Index:     a.index,
		Locker:    a.locker,
		Capturer:  capturer,
		Clock:     a.clock,
		Hasher:    sha256.New(),
		IDs:       uuid.New(),
		Publisher: publisher,
		Mirror:    mirror,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init planner: %w", err)
	}

	logger.Debug("application services initialized", zap.String("archive", a.store.BaseDir()))
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// Store exposes the archive store.
func (a *App) Store() archive.Store {
	return a.store
}

// Index exposes the version index.
func (a *App) Index() *versionindex.Index {
	return a.index
}

// Locker exposes the lock marker.
func (a *App) Locker() *lock.FileLocker {
	return a.locker
}

// Resolver exposes the source resolver.
func (a *App) Resolver() *locate.Resolver {
	return a.resolver
}

// Planner exposes the refresh planner.
func (a *App) Planner() *refresh.Planner {
	return a.planner
}

// Close shuts down every service in reverse order of creation, writes the
// metrics textfile when one is configured and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics textfile write failed", zap.String("path", path), zap.Error(err))
		}
	}
	// Sync fails on terminals; there is nothing useful to do about it.
	_ = a.logger.Sync()
}
