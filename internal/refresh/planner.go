// Package refresh decides when the archive is stale and re-captures every
// configured site: CHECK_STALE, CAPTURE, CLASSIFY_AND_STORE, then COMMIT or
// ROLLBACK. Domains are processed one at a time and fail independently.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// Trigger identifies who asked for a refresh.
type Trigger string

// Refresh triggers.
const (
	// TriggerScheduled is a background or opportunistic refresh.
	TriggerScheduled Trigger = "scheduled"
	// TriggerManual precedes a user lookup; the lock is re-acquired afterwards.
	TriggerManual Trigger = "manual"
	// TriggerExplicit is an archive-now request; warnings fail the run.
	TriggerExplicit Trigger = "explicit"
)

// DefaultRefreshAfter is the pointer age beyond which the archive is stale.
const DefaultRefreshAfter = 7 * 24 * time.Hour

// Options select how one Run behaves.
type Options struct {
	Trigger Trigger
	Force   bool
	// Sites restricts the run to these site names; empty means every site.
	Sites []string
}

// Config holds the planner policy.
type Config struct {
	Sites        []archive.Site
	RefreshAfter time.Duration
	Compress     bool
	MobileDevice string
	// Topic receives a notification per committed domain when a Publisher is set.
	Topic string
	// MirrorPrefix is prepended to object paths when a Mirror is set.
	MirrorPrefix string
}

// Dependencies are the collaborators a Planner drives.
type Dependencies struct {
	Store     archive.Store
	Index     *versionindex.Index
	Locker    archive.Locker
	Capturer  archive.Capturer
	Clock     archive.Clock
	Hasher    archive.Hasher
	IDs       archive.IDGenerator
	Publisher archive.Publisher
	Mirror    archive.Mirror
	Logger    *zap.Logger
}

// Planner orchestrates refreshes.
type Planner struct {
	cfg       Config
	store     archive.Store
	index     *versionindex.Index
	locker    archive.Locker
	capturer  archive.Capturer
	clock     archive.Clock
	hasher    archive.Hasher
	ids       archive.IDGenerator
	publisher archive.Publisher
	mirror    archive.Mirror
	logger    *zap.Logger
}

// New constructs a Planner.
func New(cfg Config, deps Dependencies) (*Planner, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("version index is required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("locker is required")
	case deps.Capturer == nil:
		return nil, fmt.Errorf("capturer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.RefreshAfter <= 0 {
		cfg.RefreshAfter = DefaultRefreshAfter
	}
	sites := make([]archive.Site, len(cfg.Sites))
	for i, site := range cfg.Sites {
		sites[i] = site.WithDefaults()
	}
	cfg.Sites = sites
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		cfg:       cfg,
		store:     deps.Store,
		index:     deps.Index,
		locker:    deps.Locker,
		capturer:  deps.Capturer,
		clock:     deps.Clock,
		hasher:    deps.Hasher,
		ids:       deps.IDs,
		publisher: deps.Publisher,
		mirror:    deps.Mirror,
		logger:    logger.Named("refresh"),
	}, nil
}

// Decision is the CHECK_STALE outcome.
type Decision struct {
	Stale  bool
	Reason string
	// Pointer is the current pointer; zero when none was ever written.
	Pointer archive.Pointer
	Age     time.Duration
	// Locked is set when a held lock marker suppressed the refresh.
	Locked bool
}

// Check decides whether a refresh should run. An explicit request is stale
// regardless of the pointer's age. A stale archive is left alone while a young
// lock marker is held, unless opts.Force is set.
func (p *Planner) Check(ctx context.Context, opts Options) (Decision, error) {
	ptr, ok, err := p.index.Pointer(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read pointer: %w", err)
	}
	if !ok {
		return Decision{Stale: true, Reason: "no archived version"}, nil
	}
	age := p.clock.Now().Sub(ptr.Updated)
	d := Decision{Pointer: ptr, Age: age}
	switch {
	case opts.Force:
		d.Stale, d.Reason = true, "forced"
		return d, nil
	case opts.Trigger != TriggerExplicit && age <= p.cfg.RefreshAfter:
		d.Reason = "fresh"
		return d, nil
	}

	held, err := p.locker.IsHeld(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("check lock: %w", err)
	}
	if held {
		d.Reason, d.Locked = archive.ErrLocked.Error(), true
		return d, nil
	}
	d.Stale = true
	if opts.Trigger == TriggerExplicit {
		d.Reason = "explicit request"
	} else {
		d.Reason = "pointer older than " + p.cfg.RefreshAfter.String()
	}
	return d, nil
}

// Run checks staleness and, when stale, refreshes every selected site. The
// returned error is reserved for failures outside any single domain.
func (p *Planner) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerScheduled
	}
	runID, err := p.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("trigger", string(opts.Trigger)))
	report := Report{RunID: runID, Trigger: opts.Trigger, Started: p.clock.Now()}

	decision, err := p.Check(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Decision = decision
	if !decision.Stale {
		logger.Debug("refresh skipped", zap.String("reason", decision.Reason), zap.Duration("age", decision.Age))
		report.Skipped = true
		return report, nil
	}
	logger.Info("refresh starting", zap.String("reason", decision.Reason))

	sites, err := p.selectSites(opts.Sites)
	if err != nil {
		return report, err
	}
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("refresh interrupted: %w", err)
		}
		d := p.refreshSite(ctx, site, runID, logger.With(zap.String("domain", site.Name)))
		report.Domains = append(report.Domains, d)
	}

	if ptr, ok, err := p.index.Pointer(ctx); err == nil && ok {
		report.Pointer = ptr
	}
	p.settleLock(ctx, opts.Trigger, report, logger)
	report.Finished = p.clock.Now()
	logger.Info("refresh finished",
		zap.Int("domains", len(report.Domains)),
		zap.Int("warnings", report.WarningCount()),
		zap.Bool("failed", report.Failed()),
		zap.String("pointer", report.Pointer.Version.String()),
	)
	return report, nil
}

// settleLock rewrites the marker after a manual refresh, extending the
// protection of a pending lookup, and releases it after any other successful
// refresh.
func (p *Planner) settleLock(ctx context.Context, trigger Trigger, report Report, logger *zap.Logger) {
	if report.hardErrors() {
		return
	}
	if trigger == TriggerManual {
		if err := p.locker.Acquire(ctx); err != nil {
			logger.Warn("failed to acquire lock", zap.Error(err))
			return
		}
		logger.Debug("lock acquired")
		return
	}
	if err := p.locker.Release(ctx); err != nil {
		logger.Warn("failed to release lock", zap.Error(err))
	}
}

func (p *Planner) selectSites(names []string) ([]archive.Site, error) {
	if len(names) == 0 {
		return p.cfg.Sites, nil
	}
	out := make([]archive.Site, 0, len(names))
	for _, raw := range names {
		name := archive.DomainName(raw)
		found := false
		for _, site := range p.cfg.Sites {
			if site.Name == name || archive.DomainName(site.Domain) == name {
				out = append(out, site)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("site %q: %w", raw, archive.ErrNotFound)
		}
	}
	return out, nil
}

func isAlreadyArchived(err error) bool {
	return errors.Is(err, archive.ErrVersionExists)
}
