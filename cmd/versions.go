package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/compare"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// newVersionsCmd creates the 'versions' subcommand.
func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List archived versions, marking the one \"last\" points to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			versions, err := appInstance.Index().List(ctx)
			if err != nil {
				return fmt.Errorf("list versions: %w", err)
			}
			ptr, ok, err := appInstance.Index().Pointer(ctx)
			if err != nil {
				return fmt.Errorf("read pointer: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, v := range versions {
				marker := " "
				if ok && v == ptr.Version {
					marker = "*"
				}
				if _, err := fmt.Fprintf(out, "%s %s\n", marker, v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// newDiffCmd creates the 'diff' subcommand.
func newDiffCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to     string
		contextLines int
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Print a unified diff of the selected artifact between two versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := opts.selector()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			left, err := exactVersion(ctx, appInstance.Index(), from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			right, err := exactVersion(ctx, appInstance.Index(), to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			patch, err := compare.Versions(ctx, appInstance.Store(), archive.DomainName(sel.Domain), sel.Kind, left, right, contextLines)
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), patch)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "older version tag")
	cmd.Flags().StringVar(&to, "to", archive.LastTag, "newer version tag")
	cmd.Flags().IntVarP(&contextLines, "context", "U", 3, "lines of context around each change")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// exactVersion resolves tag without falling back to the pointer, so a typo
// never silently diffs the wrong version.
func exactVersion(ctx context.Context, index *versionindex.Index, tag string) (archive.Version, error) {
	if archive.NormalizeTag(tag) == archive.LastTag {
		ptr, ok, err := index.Pointer(ctx)
		if err != nil {
			return archive.Version{}, err
		}
		if !ok {
			return archive.Version{}, fmt.Errorf("no archived version: %w", archive.ErrNotFound)
		}
		return ptr.Version, nil
	}
	res, err := index.Resolve(ctx, tag, archive.Version{})
	if err != nil {
		return archive.Version{}, err
	}
	return res.Version, nil
}
