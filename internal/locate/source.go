package locate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// Selector names the artifact(s) a lookup reads.
type Selector struct {
	Tag    string
	Domain string
	Kind   archive.Kind
}

// Source is resolved artifact content: one blob for a concrete kind, or every
// artifact of the version for archive.KindAll.
type Source struct {
	Version  archive.Version
	Domain   string
	Kind     archive.Kind
	Content  []byte
	Contents map[archive.Kind][]byte
}

// Groups renders the window for line across the source.
func (s Source) Groups(line, before, after int) []Group {
	if s.Kind == archive.KindAll {
		return RenderAll(s.Contents, s.Domain, line, before, after)
	}
	return []Group{{
		Name: archive.Ref{Domain: s.Domain, Kind: s.Kind}.FileName(),
		Rows: Render(string(s.Content), line, before, after),
	}}
}

// Resolver reads artifacts selected by version tag, domain and kind.
type Resolver struct {
	index  *versionindex.Index
	store  archive.Store
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(index *versionindex.Index, store archive.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{index: index, store: store, logger: logger}
}

// Resolve reads the selected artifact. The pointer is the fallback for unknown
// tags. When the chosen version lacks the artifact and the tag was not an exact
// match, the newest version that holds it is used instead.
func (r *Resolver) Resolve(ctx context.Context, sel Selector) (Source, error) {
	domain := archive.DomainName(sel.Domain)
	if domain == "" {
		return Source{}, fmt.Errorf("domain is required")
	}
	kind := sel.Kind
	if kind == "" {
		kind = archive.KindMain
	}

	var fallback archive.Version
	ptr, ok, err := r.index.Pointer(ctx)
	if err != nil {
		return Source{}, err
	}
	if ok {
		fallback = ptr.Version
	}

	res, err := r.index.Resolve(ctx, sel.Tag, fallback)
	if err != nil {
		return Source{}, err
	}

	src, err := r.read(ctx, res.Version, domain, kind)
	if err == nil || !errors.Is(err, archive.ErrNotFound) {
		return src, err
	}
	if archive.NormalizeTag(sel.Tag) != archive.LastTag && !res.Fallback {
		return Source{}, err
	}

	holder, lerr := r.index.LatestWith(ctx, domain, kind)
	if lerr != nil {
		return Source{}, err
	}
	r.logger.Warn("artifact missing from resolved version, using newest holder",
		zap.String("domain", domain),
		zap.String("kind", string(kind)),
		zap.String("resolved", res.Version.String()),
		zap.String("version", holder.String()),
	)
	return r.read(ctx, holder, domain, kind)
}

func (r *Resolver) read(ctx context.Context, v archive.Version, domain string, kind archive.Kind) (Source, error) {
	src := Source{Version: v, Domain: domain, Kind: kind}
	if kind == archive.KindAll {
		all, err := r.store.ReadAll(ctx, v, domain)
		if err != nil {
			return Source{}, err
		}
		if len(all) == 0 {
			return Source{}, fmt.Errorf("%s/%s.*: %w", v, domain, archive.ErrNotFound)
		}
		src.Contents = all
		return src, nil
	}
	data, err := r.store.Read(ctx, archive.Ref{Version: v, Domain: domain, Kind: kind})
	if err != nil {
		return Source{}, err
	}
	src.Content = data
	return src, nil
}
