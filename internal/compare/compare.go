// Package compare renders unified diffs of archived artifacts across versions.
package compare

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// DefaultContext is the number of unchanged lines around each hunk.
const DefaultContext = 3

const devNull = "/dev/null"

// Unified produces a unified patch for a to b. Identical inputs yield "".
func Unified(aName, bName string, a, b []byte, contextLines int) (string, error) {
	if contextLines <= 0 {
		contextLines = DefaultContext
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  contextLines,
	}
	out, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("unified diff %s: %w", bName, err)
	}
	return out, nil
}

// Versions diffs the artifacts of domain between two versions. With the
// wildcard kind every kind present on either side is compared; a kind present
// on only one side diffs against /dev/null.
func Versions(
	ctx context.Context,
	store archive.Store,
	domain string,
	kind archive.Kind,
	from, to archive.Version,
	contextLines int,
) (string, error) {
	left, err := load(ctx, store, from, domain, kind)
	if err != nil {
		return "", err
	}
	right, err := load(ctx, store, to, domain, kind)
	if err != nil {
		return "", err
	}
	if len(left) == 0 && len(right) == 0 {
		return "", fmt.Errorf("%s.%s in %s or %s: %w", domain, kind, from, to, archive.ErrNotFound)
	}

	var b strings.Builder
	for _, k := range union(left, right) {
		aName, bName := devNull, devNull
		if _, ok := left[k]; ok {
			aName = refName(from, domain, k)
		}
		if _, ok := right[k]; ok {
			bName = refName(to, domain, k)
		}
		patch, err := Unified(aName, bName, left[k], right[k], contextLines)
		if err != nil {
			return "", err
		}
		b.WriteString(patch)
	}
	return b.String(), nil
}

func load(ctx context.Context, store archive.Store, v archive.Version, domain string, kind archive.Kind) (map[archive.Kind][]byte, error) {
	if kind == archive.KindAll {
		all, err := store.ReadAll(ctx, v, domain)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", v, err)
		}
		return all, nil
	}
	content, err := store.Read(ctx, archive.Ref{Version: v, Domain: domain, Kind: kind})
	if errors.Is(err, archive.ErrNotFound) {
		return map[archive.Kind][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[archive.Kind][]byte{kind: content}, nil
}

func union(a, b map[archive.Kind][]byte) []archive.Kind {
	seen := make(map[archive.Kind]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	kinds := make([]archive.Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func refName(v archive.Version, domain string, kind archive.Kind) string {
	return v.String() + "/" + archive.Ref{Version: v, Domain: domain, Kind: kind}.FileName()
}

// splitLinesKeepNL keeps the trailing newline on each line, which yields
// cleaner hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
