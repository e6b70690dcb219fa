package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bundle-archiver/internal/api"
	"github.com/JakeFAU/bundle-archiver/internal/refresh"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand, which exposes lookups over HTTP and
// refreshes the archive in the background.
func newServeCmd() *cobra.Command {
	var (
		port     int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve source lookups over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if port <= 0 {
				port = appInstance.Config().Server.Port
			}
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), appInstance, ln, interval)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port; overrides server.port")
	cmd.Flags().DurationVar(&interval, "refresh-interval", time.Hour, "how often to check for a stale archive; 0 disables")
	return cmd
}

// serve runs the HTTP API on ln until ctx is done, checking staleness every
// interval in the background.
func serve(ctx context.Context, appInstance App, ln net.Listener, interval time.Duration) error {
	logger := appInstance.GetLogger()
	apiServer := api.NewServer(appInstance.Index(), appInstance.Resolver(), logger)
	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if interval > 0 {
		g.Go(func() error {
			scheduledRefresh(gctx, appInstance, interval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	logger.Info("shutdown complete")
	return err
}

// scheduledRefresh checks the archive every interval until ctx is done. Refresh
// problems are logged only.
func scheduledRefresh(ctx context.Context, appInstance App, interval time.Duration) {
	logger := appInstance.GetLogger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := appInstance.Planner().Run(ctx, refresh.Options{Trigger: refresh.TriggerScheduled})
			if err != nil {
				logger.Warn("scheduled refresh failed", zap.Error(err))
				continue
			}
			if report.Failed() {
				logger.Warn("scheduled refresh reported problems", zap.Int("warnings", report.WarningCount()))
			}
		}
	}
}
