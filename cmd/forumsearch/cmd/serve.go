package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/logging"
	"github.com/xHumanityRO/forumsearch/internal/output"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon in the foreground",
		Long: `Run the search daemon. It owns the index, answers queries over a
unix socket and applies post events and reindex jobs.

When the index is missing or unusable it is recreated and rebuilt from the
database in the background; queries are answered from the partial index
while the rebuild runs.

Examples:
  forumsearch serve
  forumsearch serve --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Daemon.MetricsAddr = metricsAddr
			}
			return runServe(ctx, cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics (overrides daemon.metrics_addr)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := output.New(cmd.OutOrStdout())
	dcfg := daemon.FromConfig(cfg)

	if daemon.NewClient(dcfg).IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	logCfg := logging.DaemonConfig(cfg.Logging.Level)
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup daemon logging: %w", err)
	}
	defer cleanup()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("shutdown_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	// The index outlives requests, so its rebuild runs on the serve context.
	if err := st.open(ctx); err != nil {
		return err
	}

	d, err := daemon.NewDaemon(dcfg, daemon.Deps{
		Manager:   st.manager,
		Reindexer: st.rx,
		Posts:     st.posts,
		Jobs:      st.jobs,
		Metrics:   st.metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	out.Statusf("", "Socket: %s", dcfg.SocketPath)
	out.Statusf("", "Logs: %s", logCfg.FilePath)
	if cfg.Daemon.MetricsAddr != "" {
		out.Statusf("", "Metrics: http://%s/metrics", cfg.Daemon.MetricsAddr)
	}
	out.Status("", "Press Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Serve(gctx)
	})
	if cfg.Daemon.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Daemon.MetricsAddr,
			Handler:           metricsMux(st),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			return serveMetrics(gctx, srv, logger)
		})
	}

	return g.Wait()
}

func metricsMux(st *stack) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", st.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, st.manager.State())
	})
	return mux
}

// serveMetrics runs srv until ctx is cancelled.
func serveMetrics(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics_listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
