package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/browser"
	"github.com/savvydealer-adam/dealership-intel/internal/chain"
	"github.com/savvydealer-adam/dealership-intel/internal/crawl"
	"github.com/savvydealer-adam/dealership-intel/internal/fallback"
	"github.com/savvydealer-adam/dealership-intel/internal/id/uuid"
	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
	"github.com/savvydealer-adam/dealership-intel/internal/scoring"
	"github.com/savvydealer-adam/dealership-intel/internal/validate"
)

var exampleTarget = intel.Target{URL: "https://www.example-motors.com/", Name: "Example Motors"}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// crawlFunc adapts a function to Crawler.
type crawlFunc func(ctx context.Context, target intel.Target) (*intel.CrawlResult, error)

func (f crawlFunc) Crawl(ctx context.Context, _ string, target intel.Target) (*intel.CrawlResult, error) {
	return f(ctx, target)
}

func crawlReturning(contacts ...intel.ContactCandidate) crawlFunc {
	return func(context.Context, intel.Target) (*intel.CrawlResult, error) {
		res := intel.NewCrawlResult()
		res.State = intel.StateDone
		res.Contacts = contacts
		res.PagesVisited = 3
		return res, nil
	}
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) SearchAll(ctx context.Context, target intel.Target) (intel.FallbackResult, error) {
	args := m.Called(ctx, target)
	res, _ := args.Get(0).(intel.FallbackResult)
	return res, args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, target intel.Target, crawled *intel.CrawlResult) chain.Outcome {
	args := m.Called(ctx, target, crawled)
	out, _ := args.Get(0).(chain.Outcome)
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	records []intel.DealershipIntel
	err     error
}

func (s *recordingSink) Write(_ context.Context, rec intel.DealershipIntel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

type recorder struct {
	mu     sync.Mutex
	stages []progress.Stage
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, evt.Stage)
}

func (r *recorder) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Stage(nil), r.stages...)
}

func newRunner(t *testing.T, cfg Config, crawler Crawler, resolver Resolver, opts ...func(*Deps)) *Runner {
	t.Helper()
	deps := Deps{
		Crawler:   crawler,
		Resolver:  resolver,
		Validator: validate.New(validate.Config{Region: "US"}, nil),
		Scorer:    scoring.New(scoring.DefaultConfig(), nil),
		IDs:       uuid.New(),
		Clock:     fixedClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	r, err := New(cfg, deps)
	require.NoError(t, err)
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Concurrency: 1}, Deps{})
	require.Error(t, err)

	r := newRunner(t, Config{Concurrency: 1}, crawlReturning(), &MockResolver{})
	_, err = New(Config{}, Deps{
		Crawler: r.crawler, Resolver: r.resolver, Validator: r.validator,
		Scorer: r.scorer, IDs: r.ids, Clock: r.clock,
	})
	require.Error(t, err)
}

func TestRunMergesFallbackContacts(t *testing.T) {
	t.Parallel()

	crawled := intel.ContactCandidate{
		Name: "Jane Doe", Title: "General Manager", Email: "jane@example-motors.com",
		Source: intel.SourceCrawl, SourceURL: "https://example-motors.com/staff", RawConfidence: 0.6,
	}
	searcher := &MockSearcher{}
	searcher.On("SearchAll", mock.Anything, exampleTarget).Return(intel.FallbackResult{
		StrategyUsed: intel.StrategyDomain,
		APICallsMade: 2,
		Contacts: []intel.ContactCandidate{
			{Name: "Jane Doe", Email: "jane@example-motors.com", Phone: "555-1234", Source: intel.SourceFallback, RawConfidence: 0.7},
			{Name: "Tom Lee", Email: "tom@example-motors.com", Title: "Sales Associate", Source: intel.SourceFallback, RawConfidence: 0.7},
		},
	}, nil).Once()
	resolver := chain.New(chain.Config{Enabled: true, Threshold: chain.DefaultThreshold}, searcher, nil)
	sink := &recordingSink{}
	events := &recorder{}

	r := newRunner(t, Config{Concurrency: 2, TargetTimeout: time.Minute}, crawlReturning(crawled), resolver, func(d *Deps) {
		d.Sinks = []Sink{sink}
		d.Events = events
	})
	records, err := r.Run(context.Background(), []intel.Target{exampleTarget})
	require.NoError(t, err)
	require.Len(t, records, 1)
	searcher.AssertExpectations(t)

	rec := records[0]
	assert.Equal(t, intel.StatusSuccess, rec.Status)
	assert.Equal(t, "example-motors.com", rec.Domain)
	assert.Equal(t, "Example Motors", rec.CompanyName)
	assert.Equal(t, uuid.New().TargetID("example-motors.com"), rec.ID)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, 3, rec.PagesVisited)
	assert.True(t, rec.Fallback.Needed)
	assert.True(t, rec.Fallback.Invoked)
	assert.Equal(t, intel.StrategyDomain, rec.Fallback.Strategy)
	assert.Equal(t, 2, rec.Fallback.APICalls)

	require.Len(t, rec.Contacts, 2)
	jane, tom := rec.Contacts[0], rec.Contacts[1]
	require.Equal(t, "Jane Doe", jane.Name)
	require.Equal(t, "Tom Lee", tom.Name)

	assert.Equal(t, "General Manager", jane.Title)
	assert.Equal(t, "555-1234", jane.Phone)
	assert.Equal(t, []intel.Source{intel.SourceCrawl, intel.SourceFallback}, jane.Sources)
	assert.Equal(t, intel.ValidationUnverified, jane.Validation, "the short phone number fails its check")
	assert.Equal(t, intel.ValidationValid, tom.Validation)

	for _, c := range rec.Contacts {
		assert.InDelta(t, 20, c.Breakdown.DomainMatch, 1e-9)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 100.0)
	}
	assert.Greater(t, jane.Score, tom.Score)

	require.Len(t, sink.records, 1)
	assert.Equal(t, rec.ID, sink.records[0].ID)
	assert.Equal(t, []progress.Stage{
		progress.StageRunStart, progress.StageTargetStart, progress.StageFallback,
		progress.StageTargetDone, progress.StageRunDone,
	}, events.Stages())
}

func TestProcessSkipsFallbackWhenCrawlSuffices(t *testing.T) {
	t.Parallel()

	searcher := &MockSearcher{}
	resolver := chain.New(chain.Config{Enabled: true, Threshold: 2}, searcher, nil)
	r := newRunner(t, Config{Concurrency: 1}, crawlReturning(
		intel.ContactCandidate{Name: "Jane Doe", Email: "jane@example-motors.com", Source: intel.SourceCrawl},
		intel.ContactCandidate{Name: "Tom Lee", Email: "tom@example-motors.com", Source: intel.SourceCrawl},
	), resolver)

	rec := r.Process(context.Background(), "run-1", exampleTarget)
	assert.Equal(t, intel.StatusSuccess, rec.Status)
	assert.False(t, rec.Fallback.Needed)
	assert.Len(t, rec.Contacts, 2)
	searcher.AssertNotCalled(t, "SearchAll", mock.Anything, mock.Anything)
}

func TestProcessAcquireTimeoutFailsWithoutFallback(t *testing.T) {
	t.Parallel()

	resolver := &MockResolver{}
	crawler := crawlFunc(func(context.Context, intel.Target) (*intel.CrawlResult, error) {
		res := intel.NewCrawlResult()
		res.State = intel.StateFailed
		return res, fmt.Errorf("acquire session: %w", browser.ErrAcquireTimeout)
	})
	r := newRunner(t, Config{Concurrency: 1}, crawler, resolver)

	rec := r.Process(context.Background(), "run-1", exampleTarget)
	assert.Equal(t, intel.StatusFailed, rec.Status)
	assert.Empty(t, rec.Contacts)
	assert.NotNil(t, rec.Contacts)
	require.NotEmpty(t, rec.Errors)
	assert.Contains(t, rec.Errors[len(rec.Errors)-1], "acquire timed out")
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessAllPagesFailed(t *testing.T) {
	t.Parallel()

	crawler := crawlFunc(func(context.Context, intel.Target) (*intel.CrawlResult, error) {
		res := intel.NewCrawlResult()
		res.State = intel.StateFailed
		res.PagesVisited = 2
		res.Errors = []intel.PageError{{URL: "https://example-motors.com/", Kind: intel.PageErrorStatus, Message: "HTTP 500"}}
		return res, fmt.Errorf("crawl example-motors.com: %w", crawl.ErrAllPagesFailed)
	})

	t.Run("fallback delivers", func(t *testing.T) {
		t.Parallel()
		searcher := &MockSearcher{}
		searcher.On("SearchAll", mock.Anything, exampleTarget).Return(intel.FallbackResult{
			StrategyUsed: intel.StrategyCompanyName,
			Contacts:     []intel.ContactCandidate{{Name: "Tom Lee", Email: "tom@example-motors.com", Source: intel.SourceFallback}},
		}, nil)
		r := newRunner(t, Config{Concurrency: 1}, crawler, chain.New(chain.Config{Enabled: true, Threshold: 2}, searcher, nil))

		rec := r.Process(context.Background(), "run-1", exampleTarget)
		assert.Equal(t, intel.StatusPartial, rec.Status)
		assert.Len(t, rec.Contacts, 1)
		assert.Contains(t, rec.Errors, "status https://example-motors.com/: HTTP 500")
	})

	t.Run("fallback empty", func(t *testing.T) {
		t.Parallel()
		searcher := &MockSearcher{}
		searcher.On("SearchAll", mock.Anything, exampleTarget).Return(intel.FallbackResult{APICallsMade: 6}, fallback.ErrNoResults)
		r := newRunner(t, Config{Concurrency: 1}, crawler, chain.New(chain.Config{Enabled: true, Threshold: 2}, searcher, nil))

		rec := r.Process(context.Background(), "run-1", exampleTarget)
		assert.Equal(t, intel.StatusFailed, rec.Status)
		assert.Equal(t, 6, rec.Fallback.APICalls)
		assert.NotEmpty(t, rec.Fallback.Error)
	})
}

func TestProcessTargetTimeout(t *testing.T) {
	t.Parallel()

	crawler := crawlFunc(func(ctx context.Context, _ intel.Target) (*intel.CrawlResult, error) {
		<-ctx.Done()
		res := intel.NewCrawlResult()
		res.State = intel.StateFailed
		return res, fmt.Errorf("crawl: %w", ctx.Err())
	})
	resolver := &MockResolver{}
	r := newRunner(t, Config{Concurrency: 1, TargetTimeout: 20 * time.Millisecond}, crawler, resolver)

	rec := r.Process(context.Background(), "run-1", exampleTarget)
	assert.Equal(t, intel.StatusFailed, rec.Status)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideStatus(t *testing.T) {
	t.Parallel()

	noResults := fmt.Errorf("search: %w", fallback.ErrNoResults)
	tests := []struct {
		name    string
		crawlOK bool
		usage   intel.FallbackUsage
		err     error
		want    intel.Status
	}{
		{name: "not needed", crawlOK: true, want: intel.StatusSuccess},
		{name: "needed but disabled", crawlOK: true, usage: intel.FallbackUsage{Needed: true}, want: intel.StatusPartial},
		{name: "fallback errored", crawlOK: true, usage: intel.FallbackUsage{Needed: true, Invoked: true}, err: errors.New("boom"), want: intel.StatusPartial},
		{name: "fallback empty", crawlOK: true, usage: intel.FallbackUsage{Needed: true, Invoked: true}, err: noResults, want: intel.StatusPartial},
		{name: "fallback delivered", crawlOK: true, usage: intel.FallbackUsage{Needed: true, Invoked: true}, want: intel.StatusSuccess},
		{name: "pages failed, fallback delivered", usage: intel.FallbackUsage{Needed: true, Invoked: true}, want: intel.StatusPartial},
		{name: "pages failed, fallback disabled", usage: intel.FallbackUsage{Needed: true}, want: intel.StatusFailed},
		{name: "pages failed, fallback empty", usage: intel.FallbackUsage{Needed: true, Invoked: true}, err: noResults, want: intel.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, decideStatus(tt.crawlOK, chain.Outcome{Usage: tt.usage, Err: tt.err}))
		})
	}
}

func TestRunBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	crawler := crawlFunc(func(context.Context, intel.Target) (*intel.CrawlResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		res := intel.NewCrawlResult()
		res.State = intel.StateDone
		return res, nil
	})
	r := newRunner(t, Config{Concurrency: 2}, crawler, chain.New(chain.Config{Threshold: 0}, nil, nil))

	targets := make([]intel.Target, 6)
	for i := range targets {
		targets[i] = intel.Target{URL: fmt.Sprintf("https://dealer-%d.com", i)}
	}
	records, err := r.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, records, len(targets))
	for i, rec := range records {
		assert.Equal(t, targets[i].URL, rec.Target.URL)
		assert.Equal(t, intel.StatusSuccess, rec.Status)
		assert.Equal(t, fmt.Sprintf("Dealer %d", i), rec.CompanyName)
	}
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestRunReportsSinkErrors(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{err: errors.New("disk full")}
	r := newRunner(t, Config{Concurrency: 1}, crawlReturning(), chain.New(chain.Config{}, nil, nil), func(d *Deps) {
		d.Sinks = []Sink{sink}
	})
	records, err := r.Run(context.Background(), []intel.Target{exampleTarget})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, records, 1)
	assert.Len(t, sink.records, 1)
}
