package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/statecell/internal/config"
	"github.com/vango-dev/statecell/internal/scenario"
	"github.com/vango-dev/statecell/pkg/devtools"
	"github.com/vango-dev/statecell/pkg/microtask"
	"github.com/vango-dev/statecell/pkg/store"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		port       int
		host       string
		allowPatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve <scenario>",
		Short: "Serve the devtools inspector over a scenario's store",
		Long: `Serve applies the steps of a scenario and keeps its store open behind
the devtools HTTP inspector until interrupted.

Endpoints:
  GET  /state    current snapshot
  POST /patch    JSON merge patch (requires --allow-patch)
  GET  /ws       snapshot stream
  GET  /metrics  Prometheus metrics

Examples:
  statecell serve testdata/counter.yaml
  statecell serve counter.yaml --port=8080 --allow-patch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Devtools.Port = port
			}
			if host != "" {
				cfg.Devtools.Host = host
			}
			if allowPatch {
				cfg.Devtools.AllowPatch = true
			}
			return serve(cmd, cfg, args[0])
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&allowPatch, "allow-patch", false, "Enable POST /patch")
	return cmd
}

func serve(cmd *cobra.Command, cfg *config.Config, path string) error {
	logger := cfg.Logger(cmd.ErrOrStderr())

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := store.NewMetrics(
		store.WithNamespace(cfg.Metrics.Namespace),
		store.WithRegistry(registry),
	)
	var sched microtask.Scheduler = microtask.NewQueue()
	if cfg.Scheduler.Mode == config.SchedulerLoop {
		sched = microtask.NewLoop(logger)
	}
	session, err := scenario.NewSession(sc,
		scenario.WithLogger(logger),
		scenario.WithMetrics(metrics),
		scenario.WithScheduler(sched),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	for i, step := range sc.Steps {
		if err := session.Apply(step); err != nil {
			logger.Warn("scenario step failed", "step", i, "kind", step.Kind(), "error", err)
		}
	}
	session.Store().Flush()

	tools := devtools.New(session.Store(),
		devtools.AllowPatch(cfg.Devtools.AllowPatch),
		devtools.WithGatherer(registry),
		devtools.WithLogger(logger),
	)
	defer tools.Close()

	server := &http.Server{
		Addr:              cfg.DevtoolsAddress(),
		Handler:           tools.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("statecell devtools"))
	fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", dimStyle.Render("scenario"), sc.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  %s  http://%s\n", dimStyle.Render("listening"), server.Addr)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("devtools server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down devtools")
	return server.Shutdown(shutdownCtx)
}
