// Package cmd defines the dealerintel command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/savvydealer-adam/dealership-intel/internal/app"
	"github.com/savvydealer-adam/dealership-intel/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
}

// newApp builds the application services. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (*app.App, error) {
	return app.New(ctx, cfg, opts)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "dealerintel",
		Short: "Collects staff contacts and site facts for car dealerships.",
		Long: `dealerintel crawls dealership websites with a pool of stealth browsers,
falls back to an enrichment API when the site yields too few contacts, and
validates and scores every contact it finds.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./dealerintel.yaml or $HOME/.dealerintel/dealerintel.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// loadEnvFile exports the variables in path. A missing file is ignored;
// variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
