package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/classify"
	"github.com/JakeFAU/bundle-archiver/internal/metrics"
)

// placement tracks what one domain wrote so a rollback can undo exactly that.
type placement struct {
	version archive.Version
	created bool
	written []archive.Ref
}

func (p *Planner) refreshSite(ctx context.Context, site archive.Site, runID string, logger *zap.Logger) DomainReport {
	report := DomainReport{Domain: site.Name}
	fail := func(err error) DomainReport {
		report.Outcome = OutcomeFailed
		report.Err = err
		metrics.ObserveRefresh(site.Name, metrics.OutcomeFailed)
		logger.Error("domain refresh failed", zap.Error(err))
		return report
	}

	rules, err := classify.Lookup(site.Rules)
	if err != nil {
		return fail(err)
	}

	// CAPTURE
	capture, err := p.timedCapture(ctx, archive.VariantPrimary, archive.CaptureRequest{
		URL:           site.URL(),
		ReadySelector: site.WaitSelector,
		Preload:       site.Preload,
		VersionExpr:   site.VersionExpr,
	})
	if err != nil {
		return fail(fmt.Errorf("capture %s: %w", site.URL(), err))
	}
	version, err := capture.Descriptor.Version()
	if err != nil {
		return fail(err)
	}
	report.Version = version
	report.BuildRef = capture.Descriptor.BuildRef
	logger = logger.With(zap.String("version", version.String()))
	logger.Info("site version captured", zap.String("commit", capture.Descriptor.BuildRef))

	place, err := p.prepare(ctx, version, site.Name)
	if err != nil {
		if isAlreadyArchived(err) {
			logger.Info("current version already archived")
			report.Outcome = OutcomeExisting
			metrics.ObserveRefresh(site.Name, metrics.OutcomeExisting)
			return report
		}
		return fail(err)
	}

	// CLASSIFY_AND_STORE
	result := classify.Classify(rules, capture.Blobs, p.hasher)
	report.Warnings = append(report.Warnings, p.classifierWarnings(site, archive.VariantPrimary, rules, len(capture.Blobs), result, logger)...)
	if err := p.storeArtifacts(ctx, place, site, result, logger); err != nil {
		p.rollback(ctx, place, logger)
		return fail(err)
	}

	// COMMIT
	if err := p.verifyStored(ctx, place, site.Name); err != nil {
		p.rollback(ctx, place, logger)
		return fail(err)
	}
	if p.isPrimary(site) {
		if _, err := p.index.Commit(ctx, version); err != nil {
			p.rollback(ctx, place, logger)
			return fail(fmt.Errorf("commit pointer: %w", err))
		}
		logger.Info("version committed", zap.Int("artifacts", len(result.Artifacts)))
	} else {
		logger.Info("version stored; pointer follows the primary site",
			zap.Int("artifacts", len(result.Artifacts)),
			zap.String("primary", p.cfg.Sites[0].Name),
		)
	}

	if site.Mobile {
		report.Warnings = append(report.Warnings, p.runVariant(ctx, archive.VariantMobile, site, rules, place, archive.CaptureRequest{
			URL:           site.URL(),
			ReadySelector: site.WaitSelector,
			Device:        p.cfg.MobileDevice,
			VersionExpr:   site.VersionExpr,
		}, logger)...)
	}
	if site.Embed {
		report.Warnings = append(report.Warnings, p.runVariant(ctx, archive.VariantEmbed, site, rules, place, archive.CaptureRequest{
			URL:           site.EmbedURL(),
			ReadySelector: site.EmbedSelector,
			VersionExpr:   site.VersionExpr,
		}, logger)...)
	}

	report.Artifacts = place.kinds()
	report.Outcome = OutcomeArchived
	metrics.ObserveRefresh(site.Name, metrics.OutcomeArchived)
	report.Notices = p.announce(ctx, runID, report, place, logger)
	return report
}

func (p *Planner) timedCapture(ctx context.Context, variant archive.Variant, req archive.CaptureRequest) (archive.Capture, error) {
	start := time.Now()
	capture, err := p.capturer.Capture(ctx, req)
	metrics.ObserveCapture(string(variant), time.Since(start))
	return capture, err
}

// prepare creates the version directory. A directory that already holds this
// domain's artifacts yields ErrVersionExists; one populated only by other
// domains is reused.
func (p *Planner) prepare(ctx context.Context, version archive.Version, domain string) (*placement, error) {
	created, err := p.store.CreateVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("create version %s: %w", version, err)
	}
	place := &placement{version: version, created: created}
	if created {
		return place, nil
	}
	existing, err := p.store.ReadAll(ctx, version, domain)
	if err != nil {
		return nil, fmt.Errorf("inspect version %s: %w", version, err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%s %s: %w", domain, version, archive.ErrVersionExists)
	}
	return place, nil
}

// isPrimary reports whether site is the first configured site, the only one
// whose commits move the pointer.
func (p *Planner) isPrimary(site archive.Site) bool {
	return len(p.cfg.Sites) > 0 && p.cfg.Sites[0].Name == site.Name
}

// verifyStored re-reads what the primary pass wrote. A concurrent invocation
// rolling back a shared version directory is caught here rather than leaving
// the pointer on a deleted version.
func (p *Planner) verifyStored(ctx context.Context, place *placement, domain string) error {
	stored, err := p.store.ReadAll(ctx, place.version, domain)
	if err != nil {
		return fmt.Errorf("verify version %s: %w", place.version, err)
	}
	for _, ref := range place.written {
		if _, ok := stored[ref.Kind]; !ok {
			return fmt.Errorf("verify version %s: %s: %w", place.version, ref, archive.ErrNotFound)
		}
	}
	return nil
}

// storeArtifacts writes every artifact of the primary pass. Any failure aborts.
func (p *Planner) storeArtifacts(ctx context.Context, place *placement, site archive.Site, result classify.Result, logger *zap.Logger) error {
	if len(result.Artifacts) == 0 {
		return fmt.Errorf("no artifacts classified for %s", site.Name)
	}
	if missing := result.Missing(site.RequiredKinds()); len(missing) > 0 {
		return fmt.Errorf("required artifacts missing for %s: %v", site.Name, missing)
	}
	for _, art := range result.Artifacts {
		ref := archive.Ref{Version: place.version, Domain: site.Name, Kind: art.Kind}
		if err := p.store.Write(ctx, ref, art.Content, archive.WriteOptions{Compress: p.cfg.Compress}); err != nil {
			return fmt.Errorf("write %s: %w", ref, err)
		}
		place.written = append(place.written, ref)
		metrics.ObserveArtifact(site.Name, string(art.Kind), len(art.Content))
		logger.Debug("artifact written", zap.String("kind", string(art.Kind)), zap.Int("bytes", len(art.Content)))
	}
	return nil
}

// runVariant runs one additional capture into the committed version. Failures are
// returned as warnings; nothing already committed is touched.
func (p *Planner) runVariant(
	ctx context.Context,
	variant archive.Variant,
	site archive.Site,
	rules classify.RuleSet,
	place *placement,
	req archive.CaptureRequest,
	logger *zap.Logger,
) []string {
	logger = logger.With(zap.String("variant", string(variant)))
	capture, err := p.timedCapture(ctx, variant, req)
	if err != nil {
		logger.Warn("variant capture failed", zap.Error(err))
		return []string{fmt.Sprintf("%s capture: %v", variant, err)}
	}
	result := classify.Classify(rules, capture.Blobs, p.hasher)
	warnings := p.classifierWarnings(site, variant, rules, len(capture.Blobs), result, logger)
	for _, art := range result.Artifacts {
		ref := archive.Ref{Version: place.version, Domain: site.Name, Kind: art.Kind}
		err := p.store.Write(ctx, ref, art.Content, archive.WriteOptions{Compress: p.cfg.Compress})
		switch {
		case errors.Is(err, archive.ErrAlreadyExists):
			logger.Debug("artifact already stored", zap.String("kind", string(art.Kind)))
		case err != nil:
			logger.Warn("variant write failed", zap.String("kind", string(art.Kind)), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("%s write %s: %v", variant, art.Kind, err))
		default:
			place.written = append(place.written, ref)
			metrics.ObserveArtifact(site.Name, string(art.Kind), len(art.Content))
			logger.Debug("artifact written", zap.String("kind", string(art.Kind)), zap.Int("bytes", len(art.Content)))
		}
	}
	return warnings
}

func (p *Planner) classifierWarnings(
	site archive.Site,
	variant archive.Variant,
	rules classify.RuleSet,
	blobs int,
	result classify.Result,
	logger *zap.Logger,
) []string {
	var warnings []string
	for _, u := range result.Unclassified {
		logger.Warn("unclassified blob",
			zap.String("variant", string(variant)),
			zap.String("source", u.Source),
			zap.String("preview", u.Preview),
		)
		warnings = append(warnings, fmt.Sprintf("%s: unclassified blob %s", variant, u.Source))
	}
	metrics.ObserveUnclassified(site.Name, len(result.Unclassified))
	for _, c := range result.Collisions {
		logger.Warn("artifact kind collision",
			zap.String("variant", string(variant)),
			zap.String("kind", string(c.Kind)),
			zap.Strings("sources", c.Sources),
			zap.Bool("identical", c.Identical),
		)
		if !c.Identical {
			warnings = append(warnings, fmt.Sprintf("%s: %s collision between %s", variant, c.Kind, strings.Join(c.Sources, ", ")))
		}
	}
	if result.CountMismatch {
		logger.Warn("unexpected blob count",
			zap.String("variant", string(variant)),
			zap.Int("expected", rules.ExpectedBlobs),
			zap.Int("got", blobs),
		)
	}
	return warnings
}

// rollback removes what this domain wrote; a version directory the domain
// created is removed entirely.
func (p *Planner) rollback(ctx context.Context, place *placement, logger *zap.Logger) {
	if place.created {
		if err := p.store.RemoveVersion(ctx, place.version); err != nil {
			logger.Error("rollback failed", zap.Error(err))
			return
		}
		logger.Warn("version rolled back", zap.Bool("removed_directory", true))
		return
	}
	for _, ref := range place.written {
		if err := p.store.Remove(ctx, ref); err != nil {
			logger.Error("rollback failed", zap.String("artifact", ref.String()), zap.Error(err))
		}
	}
	logger.Warn("version rolled back", zap.Int("removed_artifacts", len(place.written)))
}

func (pl *placement) kinds() []archive.Kind {
	seen := make(map[archive.Kind]struct{}, len(pl.written))
	kinds := make([]archive.Kind, 0, len(pl.written))
	for _, ref := range pl.written {
		if _, ok := seen[ref.Kind]; ok {
			continue
		}
		seen[ref.Kind] = struct{}{}
		kinds = append(kinds, ref.Kind)
	}
	return kinds
}
