// Package locate maps a line number back to archived source text and renders a
// context window around it.
package locate

import (
	"sort"
	"strings"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Default context sizes.
const (
	DefaultBefore = 9
	DefaultAfter  = 4
)

// Row is one rendered source line.
type Row struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Target bool   `json:"target"`
}

// Group is the window rendered from one named artifact.
type Group struct {
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

// Render returns the rows [line-before, line+after] of content, clamped to its
// bounds. line is 1-based; a non-positive line yields no rows.
func Render(content string, line, before, after int) []Row {
	if line <= 0 {
		return nil
	}
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	lines := strings.Split(content, "\n")
	target := line - 1
	start := target - before
	if start < 0 {
		start = 0
	}
	end := target + after + 1
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return nil
	}

	rows := make([]Row, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, Row{Number: i + 1, Text: lines[i], Target: i == target})
	}
	return rows
}

// RenderAll renders the same window in every artifact, ordered by kind name, for
// lookups where the caller does not know which bundle raised the error.
func RenderAll(contents map[archive.Kind][]byte, domain string, line, before, after int) []Group {
	kinds := make([]archive.Kind, 0, len(contents))
	for k := range contents {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	groups := make([]Group, 0, len(kinds))
	for _, k := range kinds {
		groups = append(groups, Group{
			Name: archive.Ref{Domain: domain, Kind: k}.FileName(),
			Rows: Render(string(contents[k]), line, before, after),
		})
	}
	return groups
}
