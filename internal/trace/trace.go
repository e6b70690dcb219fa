// Package trace pulls (label, line) pairs out of free-form error text. Input comes
// from browsers and log files outside our control, so anything that does not yield
// a usable line number is dropped silently.
package trace

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one extracted location.
type Entry struct {
	Label string `json:"label"`
	Line  int    `json:"line"`
}

// Extractor turns raw text into entries.
type Extractor interface {
	Extract(text string) []Entry
}

// Mode selects an Extractor.
type Mode string

// Supported modes.
const (
	ModeStack Mode = "stack"
	ModeScan  Mode = "scan"
)

// frameDelimiter matches the separators browsers put between a frame's label and
// its location: Chrome " (", Firefox/Safari "@", and the elided " .." form.
var frameDelimiter = regexp.MustCompile(`\s\(|@|\s\.\.`)

// StackExtractor parses a multi-line stack trace.
type StackExtractor struct{}

// Extract returns one entry per frame whose location carries a positive line number.
func (StackExtractor) Extract(text string) []Entry {
	var entries []Entry
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		parts := frameDelimiter.Split(line, 3)
		if len(parts) < 2 {
			continue
		}
		n, ok := frameLine(parts[1])
		if !ok {
			continue
		}
		entries = append(entries, Entry{Label: line, Line: n})
	}
	return entries
}

// frameLine takes "<url>:<line>:<column>" and returns <line>, the token before the last.
func frameLine(location string) (int, bool) {
	location = strings.TrimRight(strings.TrimSpace(location), ")")
	tokens := strings.Split(location, ":")
	if len(tokens) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(tokens[len(tokens)-2]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Scan defaults.
const (
	DefaultSeparator = "\x1b[0m"
	DefaultPrefix    = `\s+`
	DefaultThreshold = 10
)

// ScanExtractor parses a bulk log stream. The input is cut on Separator; every
// segment after the first yields an entry whose line is the integer leading that
// segment and whose label is the last Prefix-delimited field of the segment before.
type ScanExtractor struct {
	Separator string
	Prefix    *regexp.Regexp
	// Threshold drops numbers <= Threshold, which are mostly incidental counters.
	Threshold int
}

// NewScanExtractor builds a ScanExtractor, applying defaults for empty arguments.
func NewScanExtractor(separator, prefix string, threshold int) (*ScanExtractor, error) {
	if separator == "" {
		separator = DefaultSeparator
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	re, err := regexp.Compile(prefix)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &ScanExtractor{Separator: separator, Prefix: re, Threshold: threshold}, nil
}

// Extract implements Extractor.
func (s *ScanExtractor) Extract(text string) []Entry {
	prefix := s.Prefix
	if prefix == nil {
		prefix = regexp.MustCompile(DefaultPrefix)
	}
	separator := s.Separator
	if separator == "" {
		separator = DefaultSeparator
	}

	segments := strings.Split(text, separator)
	var entries []Entry
	for i := 1; i < len(segments); i++ {
		n, ok := leadingInt(segments[i])
		if !ok || n <= s.Threshold {
			continue
		}
		fields := prefix.Split(strings.TrimSpace(segments[i-1]), -1)
		label := strings.TrimSpace(fields[len(fields)-1])
		if label == "" {
			continue
		}
		entries = append(entries, Entry{Label: label, Line: n})
	}
	return entries
}

func leadingInt(segment string) (int, bool) {
	segment = strings.TrimLeft(segment, " \t:")
	end := 0
	for end < len(segment) && segment[end] >= '0' && segment[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(segment[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ErrUnknownMode reports a mode other than stack or scan.
var ErrUnknownMode = errors.New("unknown trace mode")

// ForMode returns the extractor for mode. The scan arguments are ignored in
// stack mode and defaulted as in NewScanExtractor otherwise.
func ForMode(mode Mode, separator, prefix string, threshold int) (Extractor, error) {
	switch mode {
	case ModeStack, "":
		return StackExtractor{}, nil
	case ModeScan:
		return NewScanExtractor(separator, prefix, threshold)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
