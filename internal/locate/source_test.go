package locate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/storage/memory"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

var (
	older = archive.Version{Timestamp: 100, Semver: "1.0"}
	newer = archive.Version{Timestamp: 200, Semver: "2.0"}
)

func fixture(t *testing.T) *locate.Resolver {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(nil)
	write := func(v archive.Version, domain string, kind archive.Kind, body string) {
		_, err := store.CreateVersion(ctx, v)
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, archive.Ref{Version: v, Domain: domain, Kind: kind}, []byte(body), archive.WriteOptions{}))
	}
	write(older, "meganz", archive.KindMain, "old main")
	write(older, "megaio", archive.KindMain, "io main")
	write(newer, "meganz", archive.KindMain, "new main")
	write(newer, "meganz", archive.KindChat, "new chat")
	require.NoError(t, store.WritePointer(ctx, newer))

	index := versionindex.New(store, store, zap.NewNop())
	return locate.NewResolver(index, store, zap.NewNop())
}

func TestResolveLast(t *testing.T) {
	t.Parallel()
	r := fixture(t)

	src, err := r.Resolve(context.Background(), locate.Selector{Tag: "last", Domain: "mega.nz", Kind: archive.KindMain})
	require.NoError(t, err)
	assert.Equal(t, newer, src.Version)
	assert.Equal(t, "new main", string(src.Content))
}

func TestResolveTag(t *testing.T) {
	t.Parallel()
	r := fixture(t)

	src, err := r.Resolve(context.Background(), locate.Selector{Tag: "v1.0", Domain: "meganz", Kind: archive.KindMain})
	require.NoError(t, err)
	assert.Equal(t, older, src.Version)
	assert.Equal(t, "old main", string(src.Content))
}

func TestResolveWildcard(t *testing.T) {
	t.Parallel()
	r := fixture(t)

	src, err := r.Resolve(context.Background(), locate.Selector{Tag: "2.0", Domain: "meganz", Kind: archive.KindAll})
	require.NoError(t, err)
	assert.Len(t, src.Contents, 2)

	groups := src.Groups(1, 0, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, "meganz.chat.js", groups[0].Name)
}

func TestResolveFallsBackToNewestHolder(t *testing.T) {
	t.Parallel()
	r := fixture(t)

	src, err := r.Resolve(context.Background(), locate.Selector{Domain: "megaio", Kind: archive.KindMain})
	require.NoError(t, err)
	assert.Equal(t, older, src.Version)
}

func TestResolveMissingExactVersion(t *testing.T) {
	t.Parallel()
	r := fixture(t)

	_, err := r.Resolve(context.Background(), locate.Selector{Tag: "1.0", Domain: "meganz", Kind: archive.KindChat})
	assert.ErrorIs(t, err, archive.ErrNotFound)
}
