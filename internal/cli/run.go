package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/preview"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the background maintenance jobs",
		Long: `Run the scheduled maintenance of a dataver database until interrupted:

- delete expired preview tokens on DATAVER_PREVIEW_SWEEP_SCHEDULE
- fail versions abandoned mid-stage, checked every DATAVER_STALE_AFTER

With --metrics-addr the Prometheus metrics are served at /metrics.

Example:
  dataver run --db ./dataver.db --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(opts.RootOptions, func(e *env) error {
				return runDaemon(opts, e, cmd)
			})
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address to serve /metrics on (disabled when empty)")

	return cmd
}

func runDaemon(opts *RunOptions, e *env, cmd *cobra.Command) error {
	logger := opts.Logger

	sweeper, err := preview.NewSweeper(e.store, e.cfg.PreviewSweepSchedule, e.cfg.PreviewGrace,
		preview.WithSweeperLogger(logger),
		preview.WithSweeperMetrics(e.metrics))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sweep schedule", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	recovery := cron.New()
	if _, err := recovery.AddFunc(fmt.Sprintf("@every %s", e.cfg.StaleAfter), func() {
		ids, err := e.pipeline.Recover(ctx, e.cfg.StaleAfter)
		if err != nil {
			logger.Warn("recovery failed", "error", err)
			return
		}
		if len(ids) > 0 {
			logger.Info("abandoned versions failed", "count", len(ids))
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, "invalid recovery interval", err)
	}

	var srv *http.Server
	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
				cancel()
			}
		}()
		logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	sweeper.Start()
	recovery.Start()
	logger.Info("maintenance started",
		"db", e.cfg.DBPath,
		"sweep_schedule", e.cfg.PreviewSweepSchedule,
		"stale_after", e.cfg.StaleAfter)
	fmt.Fprintln(cmd.OutOrStdout(), "Maintenance jobs running. Press Ctrl-C to stop.")

	<-ctx.Done()

	<-recovery.Stop().Done()
	sweeper.Stop()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}

	logger.Info("maintenance stopped gracefully")
	return nil
}
