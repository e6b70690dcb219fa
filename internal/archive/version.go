package archive

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version names one archive directory: <timestamp>-<semver>.
type Version struct {
	Timestamp int64
	Semver    string
}

// String returns the directory name for v.
func (v Version) String() string {
	return fmt.Sprintf("%d-%s", v.Timestamp, v.Semver)
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool {
	return v.Timestamp == 0 && v.Semver == ""
}

// Before orders versions by timestamp, then by semver text.
func (v Version) Before(other Version) bool {
	if v.Timestamp != other.Timestamp {
		return v.Timestamp < other.Timestamp
	}
	return v.Semver < other.Semver
}

// ParseVersion parses a directory name such as "1700000000-5.2.1".
func ParseVersion(name string) (Version, error) {
	name = strings.TrimSpace(name)
	ts, semver, ok := strings.Cut(name, "-")
	if !ok || semver == "" {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, name)
	}
	stamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || stamp <= 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, name)
	}
	return Version{Timestamp: stamp, Semver: semver}, nil
}

// SortVersions orders versions oldest first.
func SortVersions(versions []Version) {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Before(versions[j])
	})
}

var (
	tagNoise = regexp.MustCompile(`[^\d.]+`)
	tagDots  = regexp.MustCompile(`\.+`)
)

// NormalizeTag reduces a user supplied version tag to its dotted numeric form,
// so "v5.2" and "5..2" both become "5.2". The sentinel "last" is kept as is.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == LastTag {
		return LastTag
	}
	tag = tagNoise.ReplaceAllString(tag, "")
	return tagDots.ReplaceAllString(tag, ".")
}

// LastTag selects the version pointer.
const LastTag = "last"

// Version derives the archive version a deployment descriptor names.
func (d Descriptor) Version() (Version, error) {
	stamp, err := strconv.ParseInt(strings.TrimSpace(d.Timestamp), 10, 64)
	label := strings.TrimSpace(d.Label)
	if err != nil || stamp <= 0 || label == "" || strings.ContainsAny(label, `/\`) {
		return Version{}, fmt.Errorf("%w: descriptor %q/%q", ErrInvalidVersion, d.Timestamp, d.Label)
	}
	return Version{Timestamp: stamp, Semver: label}, nil
}
