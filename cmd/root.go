// Package cmd defines and implements the CLI commands for the bundlearchiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/app"
	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/config"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/lock"
	"github.com/JakeFAU/bundle-archiver/internal/logging"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows tests to inject an App built around fake collaborators.
type App interface {
	Close()
	Config() config.Config
	GetLogger() *zap.Logger
	Store() archive.Store
	Index() *versionindex.Index
	Locker() *lock.FileLocker
	Resolver() *locate.Resolver
	Planner() *refresh.Planner
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	archiveDir string
	domain     string
	kind       string
	version    string
	before     int
	after      int

	app App
}

// selector builds the lookup selector from the persistent flags.
func (o *rootOptions) selector() (locate.Selector, error) {
	kind, err := archive.ParseKind(o.kind)
	if err != nil {
		return locate.Selector{}, err
	}
	return locate.Selector{Tag: o.version, Domain: o.domain, Kind: kind}, nil
}

func (o *rootOptions) window() (int, int, error) {
	if o.before < 0 || o.after < 0 {
		return 0, 0, fmt.Errorf("--before and --after must be >= 0")
	}
	return o.before, o.after, nil
}

func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// newRootCmd creates and configures the root command. Without a subcommand it
// archives the configured sites, or prints the code at a line when given a
// single number.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "bundlearchiver [line]",
		Short: "Archives deployed JavaScript bundles and maps error lines back to source.",
		Long: `bundlearchiver keeps a versioned local archive of the script bundles a web
application serves, captured with headless Chrome, and prints the archived source
around the line numbers reported by browser stack traces and log scans.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the application once, before the selected command runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.archiveDir != "" {
				cfg.Archive.Path = opts.archiveDir
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Shut services down once the command is done.
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			opts.close()
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runArchive(cmd, refresh.Options{Trigger: refresh.TriggerExplicit})
			}
			line, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("unknown argument %q: expected a line number", args[0])
			}
			return runLocate(cmd, opts, line)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (YAML)")
	flags.StringVar(&opts.archiveDir, "archive-dir", "", "archive root; overrides archive.path")
	flags.StringVarP(&opts.domain, "domain", "d", "meganz", "domain whose artifacts are looked up")
	flags.StringVarP(&opts.kind, "file", "f", string(archive.KindMain), "artifact kind to look up, or \"all\"")
	flags.StringVarP(&opts.version, "version", "v", archive.LastTag, "version tag to look up")
	flags.IntVarP(&opts.before, "before", "B", locate.DefaultBefore, "lines of leading context")
	flags.IntVarP(&opts.after, "after", "A", locate.DefaultAfter, "lines of trailing context")

	cmd.AddCommand(
		newArchiveCmd(),
		newLocateCmd(opts),
		newDumpCmd(opts),
		newScanCmd(opts),
		newVersionsCmd(),
		newDiffCmd(opts),
		newLockCmd(),
		newSelfTestCmd(),
		newServeCmd(),
	)
	return cmd, opts
}

// Execute is the main entry point. Any command error exits with status 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, opts := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	opts.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
