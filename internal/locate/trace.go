package locate

import "github.com/JakeFAU/bundle-archiver/internal/trace"

// Hit is one trace entry rendered against a source.
type Hit struct {
	Entry  trace.Entry `json:"entry"`
	Groups []Group     `json:"groups"`
}

// Trace renders the context window of every entry.
func (s Source) Trace(entries []trace.Entry, before, after int) []Hit {
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, Hit{Entry: e, Groups: s.Groups(e.Line, before, after)})
	}
	return hits
}
