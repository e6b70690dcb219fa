package refresh

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Notification is published once per committed domain.
type Notification struct {
	RunID      string    `json:"run_id"`
	Domain     string    `json:"domain"`
	Version    string    `json:"version"`
	Commit     string    `json:"commit,omitempty"`
	Artifacts  []string  `json:"artifacts"`
	Mirrored   []string  `json:"mirrored,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

const scriptContentType = "application/javascript; charset=utf-8"

// announce mirrors the domain's committed artifacts and publishes a
// notification. Failures are returned as notices and never undo the commit.
func (p *Planner) announce(ctx context.Context, runID string, report DomainReport, place *placement, logger *zap.Logger) []string {
	var notices []string
	var mirrored []string
	if p.mirror != nil {
		for _, ref := range place.written {
			uri, err := p.mirrorArtifact(ctx, ref)
			if err != nil {
				logger.Warn("mirror upload failed", zap.String("artifact", ref.String()), zap.Error(err))
				notices = append(notices, fmt.Sprintf("mirror %s: %v", ref, err))
				continue
			}
			mirrored = append(mirrored, uri)
		}
	}

	if p.publisher == nil || p.cfg.Topic == "" {
		return notices
	}
	note := Notification{
		RunID:      runID,
		Domain:     report.Domain,
		Version:    report.Version.String(),
		Commit:     report.BuildRef,
		Mirrored:   mirrored,
		ArchivedAt: p.clock.Now().UTC(),
	}
	for _, k := range report.Artifacts {
		note.Artifacts = append(note.Artifacts, string(k))
	}
	msgID, err := p.publisher.Publish(ctx, p.cfg.Topic, note)
	if err != nil {
		logger.Warn("publish failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return append(notices, fmt.Sprintf("publish: %v", err))
	}
	logger.Debug("notification published", zap.String("message_id", msgID))
	return notices
}

func (p *Planner) mirrorArtifact(ctx context.Context, ref archive.Ref) (string, error) {
	content, err := p.store.Read(ctx, ref)
	if err != nil {
		return "", err
	}
	object := path.Join(p.cfg.MirrorPrefix, ref.Version.String(), ref.FileName())
	return p.mirror.PutObject(ctx, object, scriptContentType, bytes.NewReader(content))
}
