package refresh

import (
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

// Outcome summarizes one domain's refresh.
type Outcome string

// Domain outcomes.
const (
	OutcomeArchived Outcome = "archived"
	OutcomeExisting Outcome = "already_archived"
	OutcomeFailed   Outcome = "failed"
)

// DomainReport describes what happened to one site.
type DomainReport struct {
	Domain    string
	Version   archive.Version
	BuildRef  string
	Outcome   Outcome
	Artifacts []archive.Kind
	// Warnings are recorded problems that did not abort the domain: unclassified
	// blobs, collisions, and failed variant passes.
	Warnings []string
	// Notices are problems outside the archive itself, such as a failed publish.
	Notices []string
	Err     error
}

// Report aggregates a Run.
type Report struct {
	RunID    string
	Trigger  Trigger
	Decision Decision
	Skipped  bool
	Domains  []DomainReport
	Pointer  archive.Pointer
	Started  time.Time
	Finished time.Time
}

// WarningCount totals warnings across domains.
func (r Report) WarningCount() int {
	n := 0
	for _, d := range r.Domains {
		n += len(d.Warnings)
	}
	return n
}

// Failed reports whether any domain recorded a warning or a hard error.
func (r Report) Failed() bool {
	return r.WarningCount() > 0 || r.hardErrors()
}

// Domain returns the report for name.
func (r Report) Domain(name string) (DomainReport, bool) {
	for _, d := range r.Domains {
		if d.Domain == name {
			return d, true
		}
	}
	return DomainReport{}, false
}

func (r Report) hardErrors() bool {
	for _, d := range r.Domains {
		if d.Err != nil {
			return true
		}
	}
	return false
}
