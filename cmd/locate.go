package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/metrics"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
	"github.com/JakeFAU/bundle-archiver/internal/trace"
)

// newLocateCmd creates the 'locate' subcommand.
func newLocateCmd(opts *rootOptions) *cobra.Command {
	var line int
	cmd := &cobra.Command{
		Use:   "locate [line]",
		Short: "Print the archived source around a line number",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid line %q: %w", args[0], err)
				}
				line = n
			}
			return runLocate(cmd, opts, line)
		},
	}
	cmd.Flags().IntVarP(&line, "line", "n", 0, "source line number")
	return cmd
}

// newDumpCmd creates the 'dump' subcommand, which reads a stack trace from stdin.
func newDumpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the archived source for every frame of a stack trace read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrace(cmd, opts, trace.ModeStack, trace.StackExtractor{})
		},
	}
}

// newScanCmd creates the 'scan' subcommand, which reads a bulk log stream from stdin.
func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		separator string
		prefix    string
		threshold int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the archived source for every line number found in a log stream read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extractor, err := trace.NewScanExtractor(separator, prefix, threshold)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			return runTrace(cmd, opts, trace.ModeScan, extractor)
		},
	}
	cmd.Flags().StringVar(&separator, "separator", trace.DefaultSeparator, "segment separator")
	cmd.Flags().StringVar(&prefix, "prefix", trace.DefaultPrefix, "regular expression splitting a segment's label fields")
	cmd.Flags().IntVar(&threshold, "threshold", trace.DefaultThreshold, "ignore numbers not above this value")
	return cmd
}

func runLocate(cmd *cobra.Command, opts *rootOptions, line int) error {
	if line <= 0 {
		return fmt.Errorf("a positive line number is required")
	}
	before, after, err := opts.window()
	if err != nil {
		return err
	}
	src, err := lookupSource(cmd, opts)
	if err != nil {
		return err
	}
	metrics.ObserveLookup("line")
	printer := locate.NewPrinter(cmd.OutOrStdout())
	printer.Headers = src.Kind == archive.KindAll
	return printer.Groups(src.Groups(line, before, after))
}

func runTrace(cmd *cobra.Command, opts *rootOptions, mode trace.Mode, extractor trace.Extractor) error {
	before, after, err := opts.window()
	if err != nil {
		return err
	}
	input, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	src, err := lookupSource(cmd, opts)
	if err != nil {
		return err
	}
	metrics.ObserveLookup(string(mode))
	printer := locate.NewPrinter(cmd.OutOrStdout())
	printer.Headers = src.Kind == archive.KindAll
	for _, hit := range src.Trace(extractor.Extract(string(input)), before, after) {
		if err := printer.Label(hit.Entry.Label); err != nil {
			return err
		}
		if err := printer.Groups(hit.Groups); err != nil {
			return err
		}
	}
	return nil
}

// lookupSource refreshes the archive opportunistically and resolves the
// selected artifact.
func lookupSource(cmd *cobra.Command, opts *rootOptions) (locate.Source, error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return locate.Source{}, err
	}
	sel, err := opts.selector()
	if err != nil {
		return locate.Source{}, err
	}
	manualRefresh(cmd.Context(), appInstance)
	src, err := appInstance.Resolver().Resolve(cmd.Context(), sel)
	if err != nil {
		return locate.Source{}, fmt.Errorf("locate %s.%s@%s: %w", sel.Domain, sel.Kind, sel.Tag, err)
	}
	return src, nil
}

// manualRefresh runs a best-effort refresh ahead of a lookup. Failures are
// logged and never fail the lookup.
func manualRefresh(ctx context.Context, appInstance App) {
	logger := appInstance.GetLogger()
	report, err := appInstance.Planner().Run(ctx, refresh.Options{Trigger: refresh.TriggerManual})
	if err != nil {
		logger.Warn("refresh before lookup failed", zap.Error(err))
		return
	}
	if report.Failed() {
		logger.Warn("refresh before lookup reported problems",
			zap.Int("warnings", report.WarningCount()),
			zap.String("run_id", report.RunID),
		)
	}
}
