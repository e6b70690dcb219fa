package versionindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/storage/memory"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

var (
	v1 = archive.Version{Timestamp: 100, Semver: "5.1"}
	v2 = archive.Version{Timestamp: 200, Semver: "5.2"}
	v3 = archive.Version{Timestamp: 300, Semver: "5.3"}
)

func seeded(t *testing.T) (*versionindex.Index, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(nil)
	for _, v := range []archive.Version{v3, v1, v2} {
		_, err := store.CreateVersion(ctx, v)
		require.NoError(t, err)
	}
	return versionindex.New(store, store, zap.NewNop()), store
}

func TestPointerAndCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, _ := seeded(t)

	_, ok, err := idx.Pointer(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ptr, err := idx.Commit(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, v2, ptr.Version)

	ptr, err = idx.Commit(ctx, v3)
	require.NoError(t, err)
	got, ok, err := idx.Pointer(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v3, got.Version)
	assert.Equal(t, ptr, got)
}

func TestList(t *testing.T) {
	t.Parallel()
	idx, _ := seeded(t)

	versions, err := idx.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []archive.Version{v1, v2, v3}, versions)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, _ := seeded(t)

	res, err := idx.Resolve(ctx, "last", v3)
	require.NoError(t, err)
	assert.Equal(t, v3, res.Version)
	assert.False(t, res.Fallback)

	res, err = idx.Resolve(ctx, "v5.1", v3)
	require.NoError(t, err)
	assert.Equal(t, v1, res.Version)

	res, err = idx.Resolve(ctx, "9.9", v3)
	require.NoError(t, err)
	assert.Equal(t, v3, res.Version)
	assert.True(t, res.Fallback)

	_, err = idx.Resolve(ctx, "9.9", archive.Version{})
	assert.ErrorIs(t, err, archive.ErrNotFound)
	_, err = idx.Resolve(ctx, "last", archive.Version{})
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestResolvePrefersNewestDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, store := seeded(t)
	rebuilt := archive.Version{Timestamp: 400, Semver: "5.1"}
	_, err := store.CreateVersion(ctx, rebuilt)
	require.NoError(t, err)

	res, err := idx.Resolve(ctx, "5.1", v3)
	require.NoError(t, err)
	assert.Equal(t, rebuilt, res.Version)
}

func TestLatestWith(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, store := seeded(t)

	ref := archive.Ref{Version: v2, Domain: "megaio", Kind: archive.KindMain}
	require.NoError(t, store.Write(ctx, ref, []byte("io"), archive.WriteOptions{}))

	got, err := idx.LatestWith(ctx, "megaio", archive.KindMain)
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	got, err = idx.LatestWith(ctx, "megaio", archive.KindAll)
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	_, err = idx.LatestWith(ctx, "megaio", archive.KindChat)
	assert.ErrorIs(t, err, archive.ErrNotFound)
}
