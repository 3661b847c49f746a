// Package crawl drives one leased browser session through a dealership site:
// platform detection, staff page discovery, contact extraction, inventory and
// reviews.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/browser"
	"github.com/savvydealer-adam/dealership-intel/internal/extract"
	hashsha "github.com/savvydealer-adam/dealership-intel/internal/hash/sha256"
	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/policy/ratelimit"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
)

var (
	// ErrAllPagesFailed is returned when not a single page of a target loaded.
	ErrAllPagesFailed = errors.New("crawl: every page failed to load")
	// ErrInvalidTarget is returned for targets without a usable domain.
	ErrInvalidTarget = errors.New("crawl: target has no usable domain")
)

// Inventory listings tried per condition before giving up.
const inventoryAttempts = 3

// SessionPool leases browser sessions.
type SessionPool interface {
	Acquire(ctx context.Context, timeout time.Duration) (*browser.Session, error)
	Release(s *browser.Session)
	Retire(s *browser.Session, reason string)
}

// Config bounds a crawl.
type Config struct {
	// MaxPages bounds the pages loaded while looking for staff and contacts.
	MaxPages int
	// MinStaffContacts triggers the contact-page pass when not reached.
	MinStaffContacts int
	AcquireTimeout   time.Duration
	SitemapTimeout   time.Duration
	InventoryEnabled bool
	ReviewsEnabled   bool
	ReviewSources    []string
}

// Orchestrator runs the per-target crawl state machine. One Orchestrator is
// shared by all workers; per-target state lives in a walk.
type Orchestrator struct {
	cfg     Config
	pool    SessionPool
	limiter *ratelimit.Limiter
	sitemap SitemapSource
	hasher  *hashsha.Hasher
	events  progress.Emitter
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithSitemap sets the sitemap source consulted last during staff discovery.
func WithSitemap(s SitemapSource) Option {
	return func(o *Orchestrator) { o.sitemap = s }
}

// WithEmitter routes state and page events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.events = e
		}
	}
}

// WithSleeper replaces the human-delay sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an Orchestrator. A nil limiter disables per-host pacing.
func New(cfg Config, pool SessionPool, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if pool == nil {
		return nil, errors.New("session pool is required")
	}
	if cfg.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be > 0, got %d", cfg.MaxPages)
	}
	if cfg.SitemapTimeout <= 0 {
		cfg.SitemapTimeout = 10 * time.Second
	}
	if cfg.ReviewSources == nil {
		cfg.ReviewSources = extract.ReviewSources
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:     cfg,
		pool:    pool,
		limiter: limiter,
		hasher:  hashsha.New(),
		events:  progress.Discard{},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Crawl visits target with one leased session and returns what it found. The
// result is never nil; its State is done or failed. A failed crawl returns
// the cause: an acquire error, ErrAllPagesFailed, ErrInvalidTarget or the
// context error.
func (o *Orchestrator) Crawl(ctx context.Context, runID string, target intel.Target) (*intel.CrawlResult, error) {
	w := &walk{
		o:        o,
		runID:    runID,
		target:   target,
		domain:   target.Domain(),
		base:     target.BaseURL(),
		result:   intel.NewCrawlResult(),
		budget:   o.cfg.MaxPages,
		seenURL:  map[string]struct{}{},
		seenBody: map[string]struct{}{},
		log:      o.logger.With(zap.String("target", target.URL)),
	}
	w.emitState()
	if w.base == "" {
		w.transition(intel.StateFailed)
		return w.result, fmt.Errorf("crawl %q: %w", target.URL, ErrInvalidTarget)
	}

	sess, err := o.pool.Acquire(ctx, o.cfg.AcquireTimeout)
	if err != nil {
		w.transition(intel.StateFailed)
		return w.result, fmt.Errorf("acquire session for %s: %w", w.domain, err)
	}
	w.session = sess
	defer func() { o.pool.Release(w.session) }()

	w.transition(intel.StateDiscovering)
	home := w.visit(ctx, w.base+"/", true)
	if home != nil {
		extract.Run(home, w.result, extract.PlatformDetector{}, extract.Social{})
	}
	w.discoverStaff(ctx, home)
	if len(w.result.Contacts) < o.cfg.MinStaffContacts {
		w.contactPass(ctx)
	}

	w.transition(intel.StateExtracting)
	if o.cfg.InventoryEnabled {
		w.inventory(ctx, extract.ConditionNew)
		w.inventory(ctx, extract.ConditionUsed)
	}
	if o.cfg.ReviewsEnabled {
		w.reviews(ctx)
	}

	if err := ctx.Err(); err != nil {
		w.transition(intel.StateFailed)
		return w.result, fmt.Errorf("crawl %s: %w", w.domain, err)
	}
	if w.loaded == 0 {
		w.transition(intel.StateFailed)
		return w.result, fmt.Errorf("crawl %s: %w", w.domain, ErrAllPagesFailed)
	}
	w.transition(intel.StateDone)
	w.log.Info("crawl finished",
		zap.String("domain", w.domain),
		zap.String("platform", w.result.Platform.Name),
		zap.Int("pages", w.result.PagesVisited),
		zap.Int("contacts", len(w.result.Contacts)),
	)
	return w.result, nil
}

// walk is the state of one target's crawl.
type walk struct {
	o      *Orchestrator
	runID  string
	target intel.Target
	domain string
	base   string
	result *intel.CrawlResult
	log    *zap.Logger

	session    *browser.Session
	reacquired bool
	// lost is set once the session crashed twice; no further pages load.
	lost             bool
	cookiesDismissed bool

	budget   int
	loaded   int
	seenURL  map[string]struct{}
	seenBody map[string]struct{}
}

func (w *walk) transition(state intel.CrawlState) {
	w.result.State = state
	w.log.Debug("crawl state", zap.String("state", string(state)))
	w.emitState()
}

func (w *walk) emitState() {
	w.o.events.Emit(progress.Event{
		RunID:    w.runID,
		TS:       w.o.now(),
		Stage:    progress.StageTargetState,
		Target:   w.target.URL,
		Domain:   w.domain,
		State:    w.result.State,
		Contacts: len(w.result.Contacts),
	})
}

func (w *walk) halted(ctx context.Context) bool {
	return w.lost || ctx.Err() != nil
}

// discoverStaff tries platform and generic staff paths, then navigation links
// from the homepage, then sitemap locations, stopping at the first page that
// yields a contact.
func (w *walk) discoverStaff(ctx context.Context, home *extract.Document) {
	for _, path := range extract.StaffCandidatePaths(w.result.Platform.Name) {
		if w.halted(ctx) || w.budget <= 0 {
			return
		}
		if w.staffPage(ctx, w.base+path) {
			return
		}
	}
	if home != nil {
		for _, link := range extract.StaffNavLinks(home, w.domain) {
			if w.halted(ctx) || w.budget <= 0 {
				return
			}
			if w.staffPage(ctx, link) {
				return
			}
		}
	}
	for _, loc := range w.sitemapStaffURLs(ctx) {
		if w.halted(ctx) || w.budget <= 0 {
			return
		}
		if w.staffPage(ctx, loc) {
			return
		}
	}
}

func (w *walk) contactPass(ctx context.Context) {
	for _, path := range extract.ContactCandidatePaths(w.result.Platform.Name) {
		if w.halted(ctx) || w.budget <= 0 || len(w.result.Contacts) >= w.o.cfg.MinStaffContacts {
			return
		}
		w.staffPage(ctx, w.base+path)
	}
}

func (w *walk) staffPage(ctx context.Context, rawURL string) bool {
	doc := w.visit(ctx, rawURL, true)
	if doc == nil {
		return false
	}
	staff := extract.Staff{Domain: w.domain, Platform: w.result.Platform.Name}
	return len(extract.Run(doc, w.result, staff)) > 0
}

func (w *walk) sitemapStaffURLs(ctx context.Context) []string {
	if w.o.sitemap == nil || w.halted(ctx) {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, w.o.cfg.SitemapTimeout)
	defer cancel()
	locs, err := w.o.sitemap.Locations(sctx, w.base)
	if err != nil {
		w.log.Debug("sitemap unavailable", zap.Error(err))
		return nil
	}
	var out []string
	for _, loc := range locs {
		if !intel.SameOrSubdomain(intel.DomainOf(loc), w.domain) {
			continue
		}
		lower := strings.ToLower(loc)
		for _, kw := range extract.SitemapStaffKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, loc)
				break
			}
		}
	}
	return out
}

func (w *walk) inventory(ctx context.Context, condition string) {
	ex := extract.Inventory{Condition: condition, Platform: w.result.Platform.Name}
	for i, path := range extract.InventoryCandidatePaths(w.result.Platform.Name, condition) {
		if i >= inventoryAttempts || w.halted(ctx) {
			return
		}
		doc := w.visit(ctx, w.base+path, false)
		if doc != nil && len(extract.Run(doc, w.result, ex)) > 0 {
			return
		}
	}
}

func (w *walk) reviews(ctx context.Context) {
	name := w.target.Name
	if name == "" {
		name = intel.CompanyNameFromDomain(w.domain)
	}
	for _, source := range w.o.cfg.ReviewSources {
		if w.halted(ctx) {
			return
		}
		u := extract.ReviewSearchURL(source, name, "")
		if u == "" {
			continue
		}
		if doc := w.visit(ctx, u, false); doc != nil {
			extract.Run(doc, w.result, extract.Review{Source: source})
		}
	}
}

// visit loads rawURL and returns its parsed document, or nil when the page
// was skipped, failed, was challenged or repeats an already extracted body.
// Budgeted visits count against MaxPages.
func (w *walk) visit(ctx context.Context, rawURL string, budgeted bool) *extract.Document {
	if w.halted(ctx) || (budgeted && w.budget <= 0) {
		return nil
	}
	key := strings.TrimRight(rawURL, "/")
	if _, ok := w.seenURL[key]; ok {
		return nil
	}
	w.seenURL[key] = struct{}{}
	if budgeted {
		w.budget--
	}

	page, err := w.fetch(ctx, rawURL)
	w.result.PagesVisited++
	if err != nil {
		kind := pageErrorKind(ctx, err)
		if kind != intel.PageErrorCrash {
			w.record(rawURL, kind, err.Error())
		}
		w.emitPage(rawURL, progress.StatusError, page.Elapsed)
		return nil
	}
	w.o.limiter.ReportResult(rawURL, page.StatusCode)

	if challenged, signal := stealth.DetectChallenge(page.StatusCode, page.Headers, page.HTML); challenged {
		w.session.MarkDegraded()
		w.record(rawURL, intel.PageErrorChallenge, signal)
		w.emitPage(rawURL, progress.StatusChallenge, page.Elapsed)
		return nil
	}
	if page.StatusCode >= 400 {
		w.record(rawURL, intel.PageErrorStatus, fmt.Sprintf("HTTP %d", page.StatusCode))
		w.emitPage(rawURL, progress.ClassifyStatus(page.StatusCode), page.Elapsed)
		return nil
	}
	w.loaded++
	class := progress.Status2xx
	if page.StatusCode != 0 {
		class = progress.ClassifyStatus(page.StatusCode)
	}
	w.emitPage(rawURL, class, page.Elapsed)

	if !w.cookiesDismissed {
		w.cookiesDismissed = true
		w.session.DismissCookies(ctx)
	}
	fp := w.o.hasher.Fingerprint(page.HTML)
	if _, ok := w.seenBody[fp]; ok {
		w.log.Debug("duplicate page skipped", zap.String("url", rawURL))
		return nil
	}
	w.seenBody[fp] = struct{}{}
	return extract.Parse(page)
}

// fetch paces and loads one page. A crashed session is retired and replaced
// once per target; a second crash loses the session for the rest of the walk.
func (w *walk) fetch(ctx context.Context, rawURL string) (intel.Page, error) {
	if err := w.o.limiter.Wait(ctx, rawURL); err != nil {
		return intel.Page{}, err
	}
	if err := w.o.sleep(ctx, w.session.Identity.Delay.Sample()); err != nil {
		return intel.Page{}, err
	}
	for {
		page, err := w.session.Fetch(ctx, rawURL)
		if err == nil || !errors.Is(err, browser.ErrSessionCrashed) {
			return page, err
		}
		w.record(rawURL, intel.PageErrorCrash, err.Error())
		w.o.pool.Retire(w.session, browser.ReasonCrashed)
		if w.reacquired {
			w.lost = true
			w.session = nil
			return intel.Page{}, err
		}
		w.reacquired = true
		sess, aerr := w.o.pool.Acquire(ctx, w.o.cfg.AcquireTimeout)
		if aerr != nil {
			w.lost = true
			w.session = nil
			w.log.Warn("session lost after crash", zap.Error(aerr))
			return intel.Page{}, fmt.Errorf("replace crashed session: %w", aerr)
		}
		w.log.Info("crashed session replaced", zap.String("session_id", sess.ID))
		w.session = sess
		w.cookiesDismissed = false
	}
}

func (w *walk) record(rawURL string, kind intel.PageErrorKind, msg string) {
	w.result.Errors = append(w.result.Errors, intel.PageError{URL: rawURL, Kind: kind, Message: msg})
	w.log.Debug("page failed",
		zap.String("url", rawURL),
		zap.String("kind", string(kind)),
		zap.String("error", msg),
	)
}

func (w *walk) emitPage(rawURL string, class progress.StatusClass, d time.Duration) {
	w.o.events.Emit(progress.Event{
		RunID:       w.runID,
		TS:          w.o.now(),
		Stage:       progress.StagePageDone,
		Target:      w.target.URL,
		Domain:      w.domain,
		URL:         rawURL,
		StatusClass: class,
		Dur:         d,
		Contacts:    len(w.result.Contacts),
	})
}

func pageErrorKind(ctx context.Context, err error) intel.PageErrorKind {
	switch {
	case errors.Is(err, browser.ErrSessionCrashed):
		return intel.PageErrorCrash
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return intel.PageErrorTimeout
	default:
		return intel.PageErrorNavigation
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
