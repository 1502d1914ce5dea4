package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/statecell/internal/config"
	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/internal/scenario"
	"github.com/vango-dev/statecell/pkg/store"
)

func runCmd(load func() (*config.Config, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run scenario files and check their expectations",
		Long: `Run replays each scenario against a fresh store and prints what every
selector emitted. Arguments may be files or glob patterns.

Examples:
  statecell run testdata/counter.yaml
  statecell run 'scenarios/*.yaml' --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			paths, err := expand(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScenarios(ctx, cmd, cfg, paths, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	return cmd
}

// expand resolves glob patterns; plain paths are kept as given.
func expand(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			paths = append(paths, arg)
			continue
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func runScenarios(ctx context.Context, cmd *cobra.Command, cfg *config.Config, paths []string, asJSON bool) error {
	logger := cfg.Logger(cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	// Scenarios always replay on a host-flushed queue so that debounced
	// selectors settle only at flush steps.
	opts := []scenario.Option{scenario.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		opts = append(opts, scenario.WithMetrics(store.NewMetrics(
			store.WithNamespace(cfg.Metrics.Namespace),
			store.WithRegistry(prometheus.NewRegistry()),
		)))
	}
	runner := scenario.NewRunner(opts...)

	passed := 0
	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		report, err := runner.Run(ctx, sc)
		if err != nil {
			return err
		}
		if report.Passed() {
			passed++
		}

		if asJSON {
			data, err := report.JSON()
			if err != nil {
				return err
			}
			out.Write(data)
			continue
		}
		fmt.Fprintln(out, renderReport(report))
	}

	if !asJSON && len(paths) > 1 {
		fmt.Fprintln(out, summary(passed, len(paths)))
	}
	if failed := len(paths) - passed; failed > 0 {
		return errors.New(errors.CodeScenarioExpect).
			WithDetailf("%d of %d scenarios failed", failed, len(paths))
	}
	return nil
}
