package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tether/pkg/audit/recorder"
	"mercator-hq/tether/pkg/audit/retention"
	"mercator-hq/tether/pkg/audit/storage"
	"mercator-hq/tether/pkg/authority"
	"mercator-hq/tether/pkg/cli"
	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/policy/engine"
	"mercator-hq/tether/pkg/policy/manager"
	"mercator-hq/tether/pkg/store"
	"mercator-hq/tether/pkg/telemetry/health"
	"mercator-hq/tether/pkg/telemetry/metrics"
	"mercator-hq/tether/pkg/telemetry/tracing"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the policy engine",
	Long: `Run the policy engine with the built-in policies on a simulated host.

Enabled policy records are loaded from the configured store and ticked at the
configured interval until SIGINT or SIGTERM. With store.watch set, edits to
the policy file are picked up while running.

Examples:
  # Run with the default config
  tether run

  # Run with a custom config and debug logging
  tether run --config /etc/tether/config.yaml --log-level debug`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	fmt.Fprintf(out, "Tether v%s\n", Version)

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to create tracer: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	backend, err := store.Open(cfg.Store)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open policy store: %w", err))
	}
	defer backend.Close()
	fmt.Fprintf(out, "✓ Policy store opened (%s)\n", cfg.Store.Backend)

	resolver, _, err := authority.FromConfig(cfg.Engine.LocalActor, cfg.Authority)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	host, err := newDemoHost(collector)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	environment := conditions.NewStaticSource()
	environment.Enter(cfg.Engine.LocalActor)

	opts := []engine.Option{
		engine.WithStore(backend),
		engine.WithResolver(resolver),
		engine.WithEnvironment(environment),
		engine.WithMetrics(collector),
		engine.WithTracer(tracer),
	}

	if cfg.Audit.Enabled {
		auditStorage, err := storage.Open(cfg.Audit)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open audit storage: %w", err))
		}
		defer auditStorage.Close()

		rec := recorder.NewRecorder(auditStorage, recorder.FromConfig(cfg.Audit), collector)
		defer rec.Close()
		opts = append(opts, engine.WithSink(rec))

		scheduler := retention.NewScheduler(retention.NewPruner(auditStorage, retention.FromConfig(cfg.Audit), collector))
		if err := scheduler.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}
		fmt.Fprintf(out, "✓ Audit trail initialized (%s)\n", cfg.Audit.Backend)
	}

	eng := engine.New(engine.FromConfig(cfg.Engine), host.catalog, opts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := eng.Close(shutdownCtx); err != nil {
			slog.Error("engine shutdown failed", "error", err)
		}
	}()

	mgr := manager.New(host.catalog, eng)
	if err := mgr.Sync(ctx); err != nil {
		slog.Warn("some policies failed to load", "error", err)
	}
	fmt.Fprintf(out, "✓ Policies loaded (%d registered, %d active)\n", host.catalog.Count(), len(eng.Active()))

	if cfg.Store.Watch {
		go func() {
			if err := mgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("policy store watch stopped", "error", err)
			}
		}()
	}

	if err := eng.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Engine ticking every %s\n", cfg.Engine.TickInterval)

	errChan := make(chan error, 1)
	var srv *http.Server
	if collector != nil && cfg.Telemetry.Metrics.ListenAddress != "" {
		srv = newMetricsServer(cfg.Telemetry.Metrics, collector, newHealthChecker(backend, mgr, eng))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case <-ctx.Done():
	}

	fmt.Fprintln(out, "\nShutting down gracefully...")
	eng.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	fmt.Fprintln(out, "✓ Stopped")
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, collector *metrics.Collector, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, collector.Handler())
	checker.Mount(mux)
	return &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// newHealthChecker reports the store, the last sync and degraded policies
// on /ready.
func newHealthChecker(backend store.Backend, mgr *manager.Manager, eng *engine.Engine) *health.Checker {
	checker := health.New(0)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, err := backend.List(ctx)
		return err
	})
	checker.RegisterCheck("sync", func(ctx context.Context) error {
		return mgr.Status().LastError
	})
	checker.RegisterCheck("policies", func(ctx context.Context) error {
		var degraded []string
		for _, id := range eng.Active() {
			if rt, ok := eng.Get(id); ok && rt.Degraded() {
				degraded = append(degraded, id)
			}
		}
		if len(degraded) > 0 {
			return fmt.Errorf("degraded policies: %v", degraded)
		}
		return nil
	})
	return checker
}
