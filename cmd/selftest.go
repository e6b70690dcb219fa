package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
)

// newSelfTestCmd creates the 'selftest' subcommand. It refreshes the archive and
// checks that a known line of a known artifact still carries a known token.
func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Refresh, then verify a known line renders a known token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			report, err := appInstance.Planner().Run(ctx, refresh.Options{Trigger: refresh.TriggerExplicit})
			if err != nil {
				return fmt.Errorf("selftest refresh: %w", err)
			}
			if report.Failed() {
				_ = printReport(cmd.ErrOrStderr(), report)
				return fmt.Errorf("selftest refresh finished with %d warning(s)", report.WarningCount())
			}

			st := appInstance.Config().SelfTest
			kind, err := archive.ParseKind(st.Kind)
			if err != nil {
				return err
			}
			src, err := appInstance.Resolver().Resolve(ctx, locate.Selector{
				Tag:    archive.LastTag,
				Domain: st.Domain,
				Kind:   kind,
			})
			if err != nil {
				return fmt.Errorf("selftest: %w", err)
			}
			groups := src.Groups(st.Line, 0, 0)
			printer := locate.NewPrinter(cmd.OutOrStdout())
			printer.Headers = kind == archive.KindAll
			if err := printer.Groups(groups); err != nil {
				return err
			}
			for _, g := range groups {
				for _, row := range g.Rows {
					if row.Target && strings.Contains(row.Text, st.Token) {
						_, err := fmt.Fprintf(cmd.OutOrStdout(), "selftest passed against %s\n", src.Version)
						return err
					}
				}
			}
			return fmt.Errorf("selftest: line %d of %s.%s@%s does not contain %q",
				st.Line, archive.DomainName(st.Domain), kind, src.Version, st.Token)
		},
	}
}
