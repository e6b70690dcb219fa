// Package classify assigns captured script blobs to named artifact kinds.
//
// Each site has a RuleSet: an ordered list of rules evaluated first to last. The
// first rule whose predicate matches decides the blob's fate, either a Kind or a
// discard. A blob no rule matches is reported as unclassified; bundle layouts drift
// between deployments and the caller must surface that rather than guess.
package classify

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Rule is one (predicate, outcome) pair.
type Rule struct {
	Name    string
	Match   func(archive.Blob) bool
	Kind    archive.Kind
	Discard bool
}

// RuleSet is the ordered rule list for one site.
type RuleSet struct {
	Name  string
	Rules []Rule
	// ExpectedBlobs, when positive, is the blob count a healthy capture yields.
	ExpectedBlobs int
	// SkipLeading is the number of leading loader blobs that are never inspected.
	SkipLeading int
}

// Artifact is a classified blob ready to be stored.
type Artifact struct {
	Kind    archive.Kind
	Source  string
	Content []byte
}

// Unclassified describes a blob no rule matched.
type Unclassified struct {
	Source  string
	Preview string
}

// Collision records two blobs that classified into the same kind within one call.
type Collision struct {
	Kind      archive.Kind
	Sources   []string
	Identical bool
}

// Result is the outcome of Classify.
type Result struct {
	Artifacts    []Artifact
	Unclassified []Unclassified
	Collisions   []Collision
	Discarded    int
	// CountMismatch is set when the blob count differs from RuleSet.ExpectedBlobs.
	CountMismatch bool
}

// Kinds returns the classified kinds in sorted order.
func (r Result) Kinds() []archive.Kind {
	kinds := make([]archive.Kind, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		kinds = append(kinds, a.Kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Missing returns the kinds from required that were not classified.
func (r Result) Missing(required []archive.Kind) []archive.Kind {
	have := make(map[archive.Kind]struct{}, len(r.Artifacts))
	for _, a := range r.Artifacts {
		have[a.Kind] = struct{}{}
	}
	var missing []archive.Kind
	for _, k := range required {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

const previewLen = 96

// Classify runs rs over blobs. Artifact kinds are unique in the result; on a
// collision the last blob wins and the collision is recorded. hasher may be nil,
// in which case collisions are never marked identical.
func Classify(rs RuleSet, blobs []archive.Blob, hasher archive.Hasher) Result {
	var res Result
	if rs.ExpectedBlobs > 0 && len(blobs) != rs.ExpectedBlobs {
		res.CountMismatch = true
	}

	index := make(map[archive.Kind]int)
	for i, blob := range blobs {
		if i < rs.SkipLeading {
			res.Discarded++
			continue
		}
		rule, ok := rs.match(blob)
		switch {
		case !ok:
			res.Unclassified = append(res.Unclassified, Unclassified{
				Source:  blob.Source,
				Preview: preview(blob),
			})
			continue
		case rule.Discard:
			res.Discarded++
			continue
		}

		art := Artifact{Kind: rule.Kind, Source: blob.Source, Content: []byte(blob.Text())}
		if at, seen := index[rule.Kind]; seen {
			prev := res.Artifacts[at]
			res.Collisions = append(res.Collisions, Collision{
				Kind:      rule.Kind,
				Sources:   []string{prev.Source, art.Source},
				Identical: sameDigest(hasher, prev.Content, art.Content),
			})
			res.Artifacts[at] = art
			continue
		}
		index[rule.Kind] = len(res.Artifacts)
		res.Artifacts = append(res.Artifacts, art)
	}
	return res
}

func (rs RuleSet) match(blob archive.Blob) (Rule, bool) {
	for _, rule := range rs.Rules {
		if rule.Match(blob) {
			return rule, true
		}
	}
	return Rule{}, false
}

func sameDigest(hasher archive.Hasher, a, b []byte) bool {
	if hasher == nil {
		return false
	}
	ha, errA := hasher.Hash(a)
	hb, errB := hasher.Hash(b)
	return errA == nil && errB == nil && ha == hb
}

func preview(blob archive.Blob) string {
	text := blob.Text()
	if len(text) > previewLen {
		text = text[:previewLen]
	}
	return text
}

var registry = map[string]RuleSet{
	MegaNZ.Name: MegaNZ,
	MegaIO.Name: MegaIO,
}

// Lookup returns the rule set registered under name.
func Lookup(name string) (RuleSet, error) {
	rs, ok := registry[name]
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rule set %q", name)
	}
	return rs, nil
}

// Names lists registered rule sets.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
