package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/igorvidecnik/databox-integration/internal/api"
	"github.com/igorvidecnik/databox-integration/internal/schedule"
)

var (
	listenAddr   string
	scheduleSpec string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on a schedule and serve health and metrics",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&scheduleSpec, "schedule", "", "cron spec with seconds field (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides.
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if scheduleSpec != "" {
		cfg.Schedule.Cron = scheduleSpec
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	slog.Info("starting databox-integration",
		"listen_addr", cfg.ListenAddr,
		"storage_driver", cfg.Storage.Driver,
		"providers", a.runner.Providers(),
		"schedule", cfg.Schedule.Cron,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job := func(ctx context.Context) {
		if _, err := a.runner.Run(ctx, "", ""); err != nil {
			slog.Error("scheduled run failed", "error", err)
		}
	}

	sched := schedule.New(ctx, slog.Default())
	entry, err := sched.Add(cfg.Schedule.Cron, job)
	if err != nil {
		return err
	}

	srv := api.NewServer(a.store, a.runner, slog.Default())
	srv.SetVersion(Version)
	storagePath := cfg.DSN()
	if cfg.Storage.Driver == "postgres" {
		storagePath = redactDSN(storagePath)
	}
	srv.SetStorageInfo(cfg.Storage.Driver, storagePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.ListenAddr) })
	if cfg.Schedule.RunOnStartup {
		g.Go(func() error { return sched.RunNow(entry) })
	}
	sched.Start()

	slog.Info("databox-integration ready", "addr", cfg.ListenAddr)

	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		slog.Error("databox-integration exited with error", "error", waitErr)
	}

	// Always run graceful cleanup, even on error.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()

	slog.Info("databox-integration shutdown complete")
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}
