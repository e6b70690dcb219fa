package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// newArchiveCmd creates the 'archive' subcommand, which refreshes the archive now.
func newArchiveCmd() *cobra.Command {
	var (
		force bool
		sites []string
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Capture and archive the current bundles of every configured site",
		Long: `Captures every configured site and stores its classified bundles under a new
version directory. A version that is already archived is left untouched, and a
held lock marker suppresses the run unless --force is given. Any warning recorded
while archiving makes the command fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchive(cmd, refresh.Options{
				Trigger: refresh.TriggerExplicit,
				Force:   force,
				Sites:   sites,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "archive even while the lock is held")
	cmd.Flags().StringSliceVar(&sites, "site", nil, "restrict the run to these site names")
	return cmd
}

func runArchive(cmd *cobra.Command, opts refresh.Options) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	report, err := appInstance.Planner().Run(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("archive finished with %d warning(s)", report.WarningCount())
	}
	return nil
}

// printReport writes one line per domain followed by its warnings and notices.
func printReport(w io.Writer, report refresh.Report) error {
	if report.Skipped && report.Decision.Locked {
		_, err := fmt.Fprintf(w, "archive skipped: lock held, pass --force to override (last -> %s)\n", report.Decision.Pointer.Version)
		return err
	}
	if report.Skipped {
		_, err := fmt.Fprintf(w, "archive is current (%s): %s\n", report.Decision.Reason, report.Decision.Pointer.Version)
		return err
	}
	for _, d := range report.Domains {
		if _, err := fmt.Fprintf(w, "%-10s %s %s %s\n",
			d.Domain, outcomeLabel(d.Outcome), d.Version, joinKinds(d.Artifacts)); err != nil {
			return err
		}
		if d.Err != nil {
			if _, err := fmt.Fprintf(w, "  %s %v\n", failStyle.Render("error:"), d.Err); err != nil {
				return err
			}
		}
		for _, msg := range d.Warnings {
			if _, err := fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("warning:"), msg); err != nil {
				return err
			}
		}
		for _, msg := range d.Notices {
			if _, err := fmt.Fprintf(w, "  notice: %s\n", msg); err != nil {
				return err
			}
		}
	}
	if !report.Pointer.Version.IsZero() {
		if _, err := fmt.Fprintf(w, "last -> %s\n", report.Pointer.Version); err != nil {
			return err
		}
	}
	return nil
}

func outcomeLabel(o refresh.Outcome) string {
	switch o {
	case refresh.OutcomeArchived:
		return okStyle.Render(string(o))
	case refresh.OutcomeFailed:
		return failStyle.Render(string(o))
	default:
		return warnStyle.Render(string(o))
	}
}

func joinKinds(kinds []archive.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}
