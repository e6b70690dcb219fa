package archive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	v, err := archive.ParseVersion("1700000000-5.2.1")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), v.Timestamp)
	assert.Equal(t, "5.2.1", v.Semver)
	assert.Equal(t, "1700000000-5.2.1", v.String())

	for _, bad := range []string{"", "last", "abc-1.0", "1700000000", "1700000000-", "-1.0"} {
		_, err := archive.ParseVersion(bad)
		assert.ErrorIs(t, err, archive.ErrInvalidVersion, bad)
	}
}

func TestSortVersions(t *testing.T) {
	t.Parallel()

	versions := []archive.Version{
		{Timestamp: 30, Semver: "1.0"},
		{Timestamp: 10, Semver: "3.0"},
		{Timestamp: 20, Semver: "2.0"},
	}
	archive.SortVersions(versions)
	assert.Equal(t, int64(10), versions[0].Timestamp)
	assert.Equal(t, int64(30), versions[2].Timestamp)
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":      "last",
		"last":  "last",
		"v5.2":  "5.2",
		"5..2":  "5.2",
		"5.2.1": "5.2.1",
	}
	for in, want := range cases {
		assert.Equal(t, want, archive.NormalizeTag(in), in)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := archive.ParseKind("ALL")
	require.NoError(t, err)
	assert.Equal(t, archive.KindAll, k)

	k, err = archive.ParseKind("chat")
	require.NoError(t, err)
	assert.Equal(t, archive.KindChat, k)

	_, err = archive.ParseKind("styles")
	assert.ErrorIs(t, err, archive.ErrUnknownKind)
}

func TestParseFileName(t *testing.T) {
	t.Parallel()

	domain, kind, compressed, ok := archive.ParseFileName("meganz.main.js.gz")
	require.True(t, ok)
	assert.Equal(t, "meganz", domain)
	assert.Equal(t, archive.KindMain, kind)
	assert.True(t, compressed)

	_, _, _, ok = archive.ParseFileName("meganz.styles.js")
	assert.False(t, ok)
	_, _, _, ok = archive.ParseFileName("last")
	assert.False(t, ok)

	ref := archive.Ref{Version: archive.Version{Timestamp: 1, Semver: "1.0"}, Domain: "meganz", Kind: archive.KindChat}
	assert.Equal(t, "meganz.chat.js", ref.FileName())
}

func TestSiteDefaults(t *testing.T) {
	t.Parallel()

	site := archive.Site{Domain: "mega.nz", Hash: "no-redirect"}.WithDefaults()
	assert.Equal(t, "meganz", site.Name)
	assert.Equal(t, "meganz", site.Rules)
	assert.Equal(t, archive.DefaultWaitSelector, site.WaitSelector)
	assert.Equal(t, "https://mega.nz/#no-redirect", site.URL())
	assert.Equal(t, "https://mega.nz/embed/AAA", site.EmbedURL())

	site.Required = []string{"main", "bogus", "*"}
	assert.Equal(t, []archive.Kind{archive.KindMain}, site.RequiredKinds())
}

func TestBlobLine(t *testing.T) {
	t.Parallel()

	b := archive.Blob{Lines: []string{"a", "b"}}
	assert.Equal(t, "b", b.Line(1))
	assert.Equal(t, "", b.Line(5))
	assert.Equal(t, "a\nb", b.Text())
}

func TestDescriptorVersion(t *testing.T) {
	t.Parallel()

	v, err := archive.Descriptor{Label: "5.2.1", Timestamp: "1700000000", BuildRef: "abc"}.Version()
	require.NoError(t, err)
	assert.Equal(t, "1700000000-5.2.1", v.String())

	for _, d := range []archive.Descriptor{
		{Label: "", Timestamp: "1"},
		{Label: "5.2", Timestamp: "soon"},
		{Label: "5.2", Timestamp: "0"},
		{Label: "../5.2", Timestamp: "10"},
	} {
		_, err := d.Version()
		assert.ErrorIs(t, err, archive.ErrInvalidVersion, "%+v", d)
	}
}
