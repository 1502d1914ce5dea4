package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/statecell/internal/config"
	"github.com/vango-dev/statecell/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "statecell",
		Short: "Run and inspect reactive state stores",
		Long: `statecell drives reactive stores from scenario files.

A scenario declares an initial state, selectors, effects and a list
of steps. The run command replays it and checks its expectations;
the serve command keeps the resulting store open behind the devtools
inspector.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: nearest statecell.toml)")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}
	root.AddCommand(
		runCmd(load),
		serveCmd(load),
		versionCmd(),
	)
	return root
}

// loadConfig reads path, or the nearest project config, or defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	dir, err := config.FindProjectRoot(wd)
	if err != nil {
		return config.New(), nil
	}
	return config.Load(dir)
}
