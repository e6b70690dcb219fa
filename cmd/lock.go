package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newLockCmd creates the 'lock' command group, which pins the archive while a
// developer investigates.
func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or change the marker that holds off refreshes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "acquire",
			Short: "Hold off refreshes for the grace window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				acquired, err := appInstance.Locker().TryAcquire(cmd.Context())
				if err != nil {
					return err
				}
				if !acquired {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "lock already held")
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "lock acquired for %s\n", appInstance.Locker().Grace())
				return err
			},
		},
		&cobra.Command{
			Use:   "release",
			Short: "Remove the marker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := appInstance.Locker().Release(cmd.Context()); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "lock released")
				return err
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the marker is held",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				locker := appInstance.Locker()
				since, ok, err := locker.Since(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					_, err = fmt.Fprintln(out, "not locked")
					return err
				}
				held, err := locker.IsHeld(cmd.Context())
				if err != nil {
					return err
				}
				state := "expired"
				if held {
					state = "held"
				}
				_, err = fmt.Fprintf(out, "%s since %s\n", state, since.UTC().Format(time.RFC3339))
				return err
			},
		},
	)
	return cmd
}
