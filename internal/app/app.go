// Package app builds the long-lived services of dealership-intel from a
// config.Config and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/api"
	"github.com/savvydealer-adam/dealership-intel/internal/browser"
	"github.com/savvydealer-adam/dealership-intel/internal/chain"
	"github.com/savvydealer-adam/dealership-intel/internal/clock/system"
	"github.com/savvydealer-adam/dealership-intel/internal/config"
	"github.com/savvydealer-adam/dealership-intel/internal/crawl"
	"github.com/savvydealer-adam/dealership-intel/internal/fallback"
	"github.com/savvydealer-adam/dealership-intel/internal/id/uuid"
	"github.com/savvydealer-adam/dealership-intel/internal/logging"
	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
	"github.com/savvydealer-adam/dealership-intel/internal/pipeline"
	"github.com/savvydealer-adam/dealership-intel/internal/policy/ratelimit"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
	"github.com/savvydealer-adam/dealership-intel/internal/progress/sinks"
	"github.com/savvydealer-adam/dealership-intel/internal/publisher"
	pubsubpublisher "github.com/savvydealer-adam/dealership-intel/internal/publisher/pubsub"
	"github.com/savvydealer-adam/dealership-intel/internal/roles"
	"github.com/savvydealer-adam/dealership-intel/internal/scoring"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/gcs"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/memory"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/postgres"
	"github.com/savvydealer-adam/dealership-intel/internal/validate"
)

// Options inject collaborators that New would otherwise build from config.
type Options struct {
	// Logger replaces the logger built from cfg.Logging. App does not sync it.
	Logger *zap.Logger
	// Launcher replaces the chromedp launcher.
	Launcher browser.Launcher
	// MemoryProbe replaces the gopsutil memory probe of the browser pool.
	MemoryProbe browser.MemoryProbe
	// Searcher replaces the enrichment API client.
	Searcher chain.Searcher
	// ValidatorOptions are passed to validate.New.
	ValidatorOptions []validate.Option
	// ProgressSinks receive run events in addition to the log and metrics sinks.
	ProgressSinks []progress.Sink
	// RecordSinks receive finished records in addition to the configured stores.
	RecordSinks []pipeline.Sink
}

// App holds the shared services. It is created once per process.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runner  *pipeline.Runner
	pool    *browser.Pool
	hub     *progress.Hub
	records api.RecordReader
	checks  map[string]api.ReadinessCheck

	ownLogger bool
	closers   []func() error
}

// New wires every component described by cfg. Resources opened before a
// failure are released before New returns.
func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: opts.Logger,
		checks: map[string]api.ReadinessCheck{},
	}
	if a.logger == nil {
		if a.logger, err = logging.New(cfg.Logging); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.ownLogger = true
	}
	defer func() {
		if err == nil {
			return
		}
		if a.hub != nil {
			_ = a.hub.Close(context.Background())
		}
		a.release()
	}()

	metrics.Init()
	a.logger.Info("initializing application services")

	recordSinks, runStore, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	recordSinks = append(recordSinks, opts.RecordSinks...)

	progressSinks := []progress.Sink{
		sinks.NewLogSink(a.logger.Named("progress")),
		sinks.NewMetricsSink(),
	}
	if runStore != nil {
		progressSinks = append(progressSinks, runStore)
	}
	progressSinks = append(progressSinks, opts.ProgressSinks...)
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, progressSinks...)

	if err = a.buildPool(opts); err != nil {
		return nil, err
	}

	orchestrator, err := crawl.New(crawl.Config{
		MaxPages:         cfg.Crawl.MaxPages,
		MinStaffContacts: cfg.Crawl.MinStaffContacts,
		AcquireTimeout:   cfg.Pool.AcquireTimeout,
		SitemapTimeout:   cfg.Crawl.SitemapTimeout,
		InventoryEnabled: cfg.Crawl.InventoryEnabled,
		ReviewsEnabled:   cfg.Crawl.ReviewsEnabled,
		ReviewSources:    cfg.Crawl.ReviewSources,
	},
		a.pool,
		ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Crawl.PerHostRPS, DefaultBurst: cfg.Crawl.PerHostBurst}),
		a.logger.Named("crawl"),
		crawl.WithSitemap(crawl.NewSitemapFetcher(crawl.SitemapConfig{Timeout: cfg.Crawl.SitemapTimeout}, a.logger.Named("sitemap"))),
		crawl.WithEmitter(a.hub),
	)
	if err != nil {
		return nil, fmt.Errorf("init crawler: %w", err)
	}

	searcher, err := a.buildSearcher(ctx, opts)
	if err != nil {
		return nil, err
	}
	resolver := chain.New(chain.Config{
		Enabled:   cfg.Fallback.Enabled,
		Threshold: cfg.Fallback.Threshold,
	}, searcher, a.logger.Named("chain"))

	validator := validate.New(validate.Config{
		MXCheck:        cfg.Validation.MXCheck,
		MXTimeout:      cfg.Validation.MXTimeout,
		MailboxProbe:   cfg.Validation.MailboxProbe,
		MailboxTimeout: cfg.Validation.MailboxTimeout,
		Region:         cfg.Validation.Region,
	}, a.logger.Named("validate"), opts.ValidatorOptions...)

	a.runner, err = pipeline.New(pipeline.Config{
		Concurrency:   cfg.Pool.Size,
		TargetTimeout: cfg.Pipeline.TargetTimeout,
	}, pipeline.Deps{
		Crawler:   orchestrator,
		Resolver:  resolver,
		Validator: validator,
		Scorer:    scoring.New(cfg.Scoring, roles.NewClassifier()),
		IDs:       uuid.New(),
		Clock:     system.New(),
		Sinks:     recordSinks,
		Events:    a.hub,
		Logger:    a.logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	a.logger.Info("application services initialized",
		zap.Int("pool_size", cfg.Pool.Size),
		zap.Bool("fallback", cfg.Fallback.Enabled),
		zap.Int("record_sinks", len(recordSinks)),
	)
	return a, nil
}

// openStores connects the configured record stores. The in-memory store is
// always present; Postgres, GCS and Pub/Sub are added when configured.
func (a *App) openStores(ctx context.Context) ([]pipeline.Sink, *postgres.RunStore, error) {
	mem := memory.NewRecordStore()
	a.records = mem
	out := []pipeline.Sink{mem}
	var runStore *postgres.RunStore

	if pg := a.cfg.Storage.Postgres; pg.DSN != "" {
		pool, err := postgres.Open(ctx, postgres.Config{DSN: pg.DSN, TablePrefix: pg.TablePrefix})
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.NewIntelStore(pool, pg.TablePrefix)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		if runStore, err = postgres.NewRunStore(pool, pg.TablePrefix); err != nil {
			return nil, nil, err
		}
		a.records = store
		a.checks["postgres"] = store.Ping
		out = append(out, store)
		a.logger.Info("postgres record store enabled", zap.String("table_prefix", pg.TablePrefix))
	}

	if bucket := a.cfg.Storage.GCS.Bucket; bucket != "" {
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: bucket})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, blobs.Close)
		archiver, err := storage.NewArchiver(blobs, a.cfg.Storage.GCS.Prefix)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, archiver)
		a.logger.Info("gcs archive enabled", zap.String("bucket", bucket))
	}

	if ps := a.cfg.PubSub; ps.Topic != "" {
		pub, err := pubsubpublisher.Open(ctx, ps.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pub.Close)
		if err := pub.CheckTopic(ctx, ps.Topic); err != nil {
			return nil, nil, err
		}
		sink, err := publisher.NewSink(pub, ps.Topic)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, sink)
		a.logger.Info("pubsub publishing enabled", zap.String("topic", ps.Topic))
	}
	return out, runStore, nil
}

func (a *App) buildPool(opts Options) error {
	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewChromedpLauncher(browser.ChromedpConfig{
			ExecPath:          a.cfg.Browser.ExecPath,
			Headless:          a.cfg.Browser.Headless,
			NavigationTimeout: a.cfg.Browser.NavTimeout,
			SettleDelay:       a.cfg.Browser.SettleDelay,
		}, a.logger.Named("chromedp"))
	}
	var poolOpts []browser.PoolOption
	if opts.MemoryProbe != nil {
		poolOpts = append(poolOpts, browser.WithMemoryProbe(opts.MemoryProbe))
	}
	identities := stealth.NewGenerator(stealth.Config{
		DelayMin: a.cfg.Stealth.DelayMin,
		DelayMax: a.cfg.Stealth.DelayMax,
	})
	pool, err := browser.NewPool(browser.PoolConfig{
		Size:                  a.cfg.Pool.Size,
		MaxPagesPerSession:    a.cfg.Pool.MaxPagesPerSession,
		MaxSessionAge:         a.cfg.Pool.MaxSessionAge,
		MemoryPressurePercent: a.cfg.Pool.MemoryPressurePercent,
	}, launcher, identities, a.logger.Named("browser"), poolOpts...)
	if err != nil {
		return fmt.Errorf("init browser pool: %w", err)
	}
	a.pool = pool
	a.checks["browser_pool"] = func(context.Context) error {
		if pool.IsClosed() {
			return errors.New("browser pool closed")
		}
		return nil
	}
	return nil
}

// buildSearcher returns the fallback searcher, or nil when the fallback is
// disabled.
func (a *App) buildSearcher(ctx context.Context, opts Options) (chain.Searcher, error) {
	if !a.cfg.Fallback.Enabled {
		return nil, nil
	}
	if opts.Searcher != nil {
		return opts.Searcher, nil
	}
	fb := a.cfg.Fallback
	client, err := fallback.NewClient(fallback.Config{
		BaseURL:        fb.BaseURL,
		APIKey:         fb.APIKey,
		PerPage:        fb.PerPage,
		RequestTimeout: fb.RequestTimeout,
		RateLimitRPS:   fb.RateLimitRPS,
		RateLimitBurst: fb.RateLimitBurst,
		Cooldown:       fb.Cooldown,
		Strategies:     a.cfg.FallbackStrategies(),
		Retry: fallback.RetryPolicy{
			MaxRetries: a.cfg.Retry.MaxRetries,
			BaseDelay:  a.cfg.Retry.BackoffInitial,
			MaxDelay:   a.cfg.Retry.BackoffMax,
		},
	}, a.logger.Named("fallback"))
	if err != nil {
		return nil, fmt.Errorf("init fallback client: %w", err)
	}
	if fb.VerifyOnStart {
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("fallback credentials verified")
	}
	return client, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Records returns the reader backing the record endpoints.
func (a *App) Records() api.RecordReader {
	return a.records
}

// Server builds the HTTP API over the runner and record store.
func (a *App) Server() *api.Server {
	var key string
	if a.cfg.Auth.Enabled {
		key = a.cfg.Auth.APIKey
	}
	return api.NewServer(a.runner, api.Options{
		APIKey:  key,
		Records: a.records,
		Checks:  a.checks,
		Logger:  a.logger.Named("api"),
	})
}

// Close flushes pending progress events, stops the browsers and releases
// every store. It returns the first error encountered.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	errs = append(errs, a.release()...)
	if a.ownLogger {
		// Sync fails on some terminals; nothing useful can be done about it.
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *App) release() []error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser pool: %w", err))
		}
		a.pool = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
