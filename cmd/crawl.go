package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/app"
	"github.com/savvydealer-adam/dealership-intel/internal/config"
	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/progress/sinks"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/jsonl"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/local"
)

const shutdownTimeout = 15 * time.Second

type crawlOptions struct {
	input      string
	out        string
	archiveDir string
	noFallback bool
	poolSize   int
	progress   bool
}

func newCrawlCmd(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl [urls...]",
		Short: "Process dealership websites and write one record per target",
		Long: `Crawls each target, runs the enrichment fallback when the site yields
too few contacts, validates and scores the contacts and writes the records as
JSON lines to stdout or --out. Targets come from the arguments and from
--input (YAML, CSV or one URL per line).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "targets file (.yaml, .csv or .txt)")
	flags.StringVarP(&opts.out, "out", "o", "", "JSON lines output file (default stdout)")
	flags.StringVar(&opts.archiveDir, "archive-dir", "", "also archive each record as JSON below this directory")
	flags.BoolVar(&opts.noFallback, "no-fallback", false, "never call the enrichment API")
	flags.IntVar(&opts.poolSize, "pool-size", 0, "browser sessions, overriding pool.size")
	flags.BoolVar(&opts.progress, "progress", true, "draw a progress bar on stderr")
	return cmd
}

func (o *crawlOptions) overrides() map[string]any {
	out := map[string]any{}
	if o.noFallback {
		out["fallback.enabled"] = false
	}
	if o.poolSize > 0 {
		out["pool.size"] = o.poolSize
	}
	return out
}

func runCrawl(cmd *cobra.Command, args []string, root *rootOptions, opts *crawlOptions) (err error) {
	targets, err := loadTargets(args, opts.input)
	if err != nil {
		return err
	}
	cfg, err := config.LoadWithOverrides(root.configPath, opts.overrides())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var appOpts app.Options
	out := jsonl.NewWriter(cmd.OutOrStdout())
	if opts.out != "" {
		if out, err = jsonl.Create(opts.out); err != nil {
			return err
		}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	appOpts.RecordSinks = append(appOpts.RecordSinks, out)

	if opts.archiveDir != "" {
		blobs, err := local.New(local.Config{BaseDir: opts.archiveDir})
		if err != nil {
			return fmt.Errorf("open archive dir: %w", err)
		}
		archiver, err := storage.NewArchiver(blobs, "")
		if err != nil {
			return err
		}
		appOpts.RecordSinks = append(appOpts.RecordSinks, archiver)
	}
	if opts.progress {
		appOpts.ProgressSinks = append(appOpts.ProgressSinks, sinks.NewBarSink(cmd.ErrOrStderr()))
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOpts)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			a.Logger().Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	records, runErr := a.Runner().Run(ctx, targets)
	if runErr != nil && records == nil {
		return fmt.Errorf("run: %w", runErr)
	}
	counts := summarize(records)
	a.Logger().Info("crawl finished",
		zap.Int("targets", len(records)),
		zap.Int("success", counts[intel.StatusSuccess]),
		zap.Int("partial", counts[intel.StatusPartial]),
		zap.Int("failed", counts[intel.StatusFailed]),
	)
	if runErr != nil {
		return fmt.Errorf("deliver records: %w", runErr)
	}
	return nil
}

func summarize(records []intel.DealershipIntel) map[intel.Status]int {
	counts := make(map[intel.Status]int, 3)
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}
