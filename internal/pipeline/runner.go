// Package pipeline runs crawl, fallback, merge, validation and scoring for a
// batch of dealership targets and produces one record per target.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/savvydealer-adam/dealership-intel/internal/chain"
	"github.com/savvydealer-adam/dealership-intel/internal/crawl"
	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
	"github.com/savvydealer-adam/dealership-intel/internal/validate"
)

// Crawler visits a target with a browser session.
type Crawler interface {
	Crawl(ctx context.Context, runID string, target intel.Target) (*intel.CrawlResult, error)
}

// Resolver applies the fallback decision and merges contacts.
type Resolver interface {
	Resolve(ctx context.Context, target intel.Target, crawled *intel.CrawlResult) chain.Outcome
}

// Validator checks one contact.
type Validator interface {
	Validate(ctx context.Context, c intel.ContactCandidate) validate.Result
}

// Scorer turns a validated contact into its final record.
type Scorer interface {
	Build(c intel.ContactCandidate, targetDomain, company string, v validate.Result) intel.ScoredContact
}

// IDGenerator issues run and record identifiers.
type IDGenerator interface {
	NewRunID() (string, error)
	TargetID(domain string) string
}

// Clock stamps records.
type Clock interface {
	Now() time.Time
}

// Sink receives every finished record. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, record intel.DealershipIntel) error
}

// Config bounds a run.
type Config struct {
	// Concurrency is the number of targets in flight; it should equal the
	// browser pool size.
	Concurrency   int
	TargetTimeout time.Duration
}

// Runner executes pipeline runs. It is safe to reuse across runs.
type Runner struct {
	cfg       Config
	crawler   Crawler
	resolver  Resolver
	validator Validator
	scorer    Scorer
	ids       IDGenerator
	clock     Clock
	sinks     []Sink
	events    progress.Emitter
	logger    *zap.Logger
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Crawler   Crawler
	Resolver  Resolver
	Validator Validator
	Scorer    Scorer
	IDs       IDGenerator
	Clock     Clock
	Sinks     []Sink
	Events    progress.Emitter
	Logger    *zap.Logger
}

// New builds a Runner.
func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Crawler == nil:
		return nil, errors.New("pipeline: crawler is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: resolver is required")
	case deps.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("pipeline: concurrency must be > 0, got %d", cfg.Concurrency)
	}
	if deps.Events == nil {
		deps.Events = progress.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		crawler:   deps.Crawler,
		resolver:  deps.Resolver,
		validator: deps.Validator,
		scorer:    deps.Scorer,
		ids:       deps.IDs,
		clock:     deps.Clock,
		sinks:     deps.Sinks,
		events:    deps.Events,
		logger:    deps.Logger,
	}, nil
}

// Run processes targets with at most Concurrency in flight and returns one
// record per target, in input order. Target failures are reported in the
// records; the returned error only carries sink failures.
func (r *Runner) Run(ctx context.Context, targets []intel.Target) ([]intel.DealershipIntel, error) {
	runID, err := r.ids.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	log := r.logger.With(zap.String("run_id", runID))
	log.Info("run started", zap.Int("targets", len(targets)), zap.Int("concurrency", r.cfg.Concurrency))
	r.events.Emit(progress.Event{RunID: runID, TS: r.clock.Now(), Stage: progress.StageRunStart, Total: len(targets)})

	records := make([]intel.DealershipIntel, len(targets))
	sinkErrs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			records[i] = r.Process(ctx, runID, target)
			sinkErrs[i] = r.deliver(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()

	r.events.Emit(progress.Event{RunID: runID, TS: r.clock.Now(), Stage: progress.StageRunDone, Total: len(targets)})
	log.Info("run finished", zap.Int("targets", len(targets)))
	return records, errors.Join(sinkErrs...)
}

// Process runs every stage for one target under the per-target timeout. It
// always returns a record.
func (r *Runner) Process(ctx context.Context, runID string, target intel.Target) intel.DealershipIntel {
	domain := target.Domain()
	rec := intel.DealershipIntel{
		ID:          r.ids.TargetID(domain),
		RunID:       runID,
		Target:      target,
		Domain:      domain,
		CompanyName: target.Name,
		StartedAt:   r.clock.Now(),
	}
	log := r.logger.With(zap.String("run_id", runID), zap.String("target", target.URL), zap.String("domain", domain))
	r.events.Emit(progress.Event{RunID: runID, TS: rec.StartedAt, Stage: progress.StageTargetStart, Target: target.URL, Domain: domain})

	tctx := ctx
	if r.cfg.TargetTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.cfg.TargetTimeout)
		defer cancel()
	}

	crawled, crawlErr := r.crawler.Crawl(tctx, runID, target)
	if crawled == nil {
		crawled = intel.NewCrawlResult()
	}
	applyCrawl(&rec, crawled)
	if crawlErr != nil {
		rec.Errors = append(rec.Errors, crawlErr.Error())
		log.Warn("crawl failed", zap.Error(crawlErr))
	}

	if crawlErr != nil && !errors.Is(crawlErr, crawl.ErrAllPagesFailed) {
		// No session, no usable domain or out of time: nothing else can run.
		rec.Status = intel.StatusFailed
		return r.finish(runID, rec, log)
	}

	out := r.resolver.Resolve(tctx, target, crawled)
	rec.Fallback = out.Usage
	rec.Organization = out.Organization
	if out.Usage.Invoked {
		r.events.Emit(progress.Event{
			RunID:    runID,
			TS:       r.clock.Now(),
			Stage:    progress.StageFallback,
			Target:   target.URL,
			Domain:   domain,
			Contacts: len(out.Contacts),
			Note:     string(out.Usage.Strategy),
		})
	}
	if rec.CompanyName == "" && out.Organization != nil {
		rec.CompanyName = out.Organization.Name
	}
	if rec.CompanyName == "" {
		rec.CompanyName = intel.CompanyNameFromDomain(domain)
	}

	rec.Contacts = make([]intel.ScoredContact, 0, len(out.Contacts))
	for _, c := range out.Contacts {
		if tctx.Err() != nil {
			break
		}
		v := r.validator.Validate(tctx, c)
		sc := r.scorer.Build(c, domain, rec.CompanyName, v)
		metrics.ObserveContactScore(sc.Score)
		rec.Contacts = append(rec.Contacts, sc)
	}
	sort.SliceStable(rec.Contacts, func(i, j int) bool {
		return rec.Contacts[i].Score > rec.Contacts[j].Score
	})

	if err := tctx.Err(); err != nil {
		rec.Errors = append(rec.Errors, fmt.Sprintf("target aborted: %v", err))
		rec.Status = intel.StatusFailed
		return r.finish(runID, rec, log)
	}
	rec.Status = decideStatus(crawlErr == nil, out)
	return r.finish(runID, rec, log)
}

// decideStatus maps the crawl and fallback outcome to the target status.
func decideStatus(crawlOK bool, out chain.Outcome) intel.Status {
	fallbackDelivered := out.Usage.Invoked && out.Err == nil
	switch {
	case !crawlOK && fallbackDelivered:
		return intel.StatusPartial
	case !crawlOK:
		return intel.StatusFailed
	case !out.Usage.Needed, fallbackDelivered:
		return intel.StatusSuccess
	default:
		return intel.StatusPartial
	}
}

func applyCrawl(rec *intel.DealershipIntel, crawled *intel.CrawlResult) {
	rec.Platform = crawled.Platform
	rec.InventoryNew = crawled.InventoryNew
	rec.InventoryUsed = crawled.InventoryUsed
	rec.SocialLinks = crawled.SocialLinks
	rec.Reviews = crawled.Reviews
	rec.PagesVisited = crawled.PagesVisited
	for _, e := range crawled.Errors {
		rec.Errors = append(rec.Errors, fmt.Sprintf("%s %s: %s", e.Kind, e.URL, e.Message))
	}
}

func (r *Runner) finish(runID string, rec intel.DealershipIntel, log *zap.Logger) intel.DealershipIntel {
	if rec.Contacts == nil {
		rec.Contacts = []intel.ScoredContact{}
	}
	rec.CompletedAt = r.clock.Now()
	r.events.Emit(progress.Event{
		RunID:    runID,
		TS:       rec.CompletedAt,
		Stage:    progress.StageTargetDone,
		Target:   rec.Target.URL,
		Domain:   rec.Domain,
		Status:   rec.Status,
		Contacts: len(rec.Contacts),
		Dur:      max(0, rec.CompletedAt.Sub(rec.StartedAt)),
	})
	log.Info("target finished",
		zap.String("status", string(rec.Status)),
		zap.Int("contacts", len(rec.Contacts)),
		zap.Bool("fallback", rec.Fallback.Invoked),
		zap.Int("pages", rec.PagesVisited),
	)
	return rec
}

func (r *Runner) deliver(ctx context.Context, rec intel.DealershipIntel) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, rec); err != nil {
			r.logger.Error("record sink failed",
				zap.String("target", rec.Target.URL),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("write %s: %w", rec.Domain, err))
		}
	}
	return errors.Join(errs...)
}
