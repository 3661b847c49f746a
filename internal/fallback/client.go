// Package fallback queries an Apollo-compatible people-search API for
// dealership contacts when the crawl finds too few.
//
// All calls share one Client: its rate limiter and rate-limit cool-down are
// global across workers. Each call is retried under a RetryPolicy.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
)

const (
	organizationsPath = "/organizations/search"
	peoplePath        = "/mixed_people/search"
	authPath          = "/auth/me"
	maxPerPage        = 25
	maxErrorBody      = 200
)

// DefaultStrategies is the order strategies are tried in when none is configured.
var DefaultStrategies = []intel.Strategy{intel.StrategyDomain, intel.StrategyCompanyName, intel.StrategyBroadened}

// Config configures a Client.
type Config struct {
	BaseURL        string
	APIKey         string
	PerPage        int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	// Cooldown applies after a 429 that carries no Retry-After.
	Cooldown   time.Duration
	Strategies []intel.Strategy
	Retry      RetryPolicy
}

// Client talks to the enrichment API.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time

	mu            sync.Mutex
	cooldownUntil time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithSleeper replaces the backoff and cool-down sleep.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithClock replaces the clock used for cool-down bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a Client. The API key is required.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("fallback: api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("fallback: base url is required")
	}
	if cfg.PerPage <= 0 || cfg.PerPage > maxPerPage {
		cfg.PerPage = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	limit := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("X-Api-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Cache-Control", "no-cache")
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("fallback api response",
			zap.String("method", resp.Request.Method),
			zap.String("path", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", resp.Time()),
		)
		return nil
	})

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Strategies returns the configured strategy order.
func (c *Client) Strategies() []intel.Strategy {
	return append([]intel.Strategy(nil), c.cfg.Strategies...)
}

// Ping checks the credentials against the API.
func (c *Client) Ping(ctx context.Context) error {
	var calls int
	err := c.do(ctx, "ping", &calls, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get(authPath)
	}, nil)
	if err != nil {
		return fmt.Errorf("credential check: %w", err)
	}
	return nil
}

// SearchAll tries the configured strategies in order and returns the first
// result with contacts. Non-retryable failures end the search immediately;
// exhausted transient failures move on to the next strategy. ErrNoResults is
// returned when no strategy found contacts.
func (c *Client) SearchAll(ctx context.Context, target intel.Target) (intel.FallbackResult, error) {
	var (
		total   intel.FallbackResult
		lastErr error
	)
	for _, strategy := range c.cfg.Strategies {
		res, err := c.Search(ctx, target, strategy)
		total.APICallsMade += res.APICallsMade
		total.StrategyUsed = strategy
		if total.Organization == nil {
			total.Organization = res.Organization
		}
		if err != nil {
			if ctx.Err() != nil || !isTransient(err) {
				return total, err
			}
			c.logger.Warn("fallback strategy failed",
				zap.String("domain", target.Domain()),
				zap.String("strategy", string(strategy)),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if len(res.Contacts) > 0 {
			total.Contacts = res.Contacts
			return total, nil
		}
	}
	if lastErr != nil {
		return total, lastErr
	}
	return total, ErrNoResults
}

// Search runs a single strategy. An empty contact list with a nil error means
// the strategy ran and found nobody.
func (c *Client) Search(ctx context.Context, target intel.Target, strategy intel.Strategy) (intel.FallbackResult, error) {
	res := intel.FallbackResult{StrategyUsed: strategy}
	domain := target.Domain()
	name := strings.TrimSpace(target.Name)
	if name == "" {
		name = intel.CompanyNameFromDomain(domain)
	}

	switch strategy {
	case intel.StrategyDomain:
		if domain == "" {
			return res, fmt.Errorf("%s strategy: target %q has no domain", strategy, target.URL)
		}
		org, err := c.findOrganization(ctx, strategy, organizationSearchRequest{
			OrganizationDomains: []string{domain}, PerPage: 1, Page: 1,
		}, &res.APICallsMade)
		if err != nil {
			return res, err
		}
		res.Organization = org
		req := c.peopleRequest(defaultSeniorities, defaultTitles)
		if org != nil && org.ID != "" {
			req.OrganizationIDs = []string{org.ID}
		} else {
			req.OrganizationDomains = []string{domain}
		}
		res.Contacts, err = c.findPeople(ctx, strategy, req, &res.APICallsMade)
		return res, err

	case intel.StrategyCompanyName:
		if name == "" {
			return res, nil
		}
		org, err := c.findOrganization(ctx, strategy, organizationSearchRequest{
			OrganizationName: name, PerPage: 3, Page: 1,
		}, &res.APICallsMade)
		if err != nil || org == nil || org.ID == "" {
			return res, err
		}
		res.Organization = org
		req := c.peopleRequest(defaultSeniorities, defaultTitles)
		req.OrganizationIDs = []string{org.ID}
		res.Contacts, err = c.findPeople(ctx, strategy, req, &res.APICallsMade)
		return res, err

	case intel.StrategyBroadened:
		for _, variation := range DomainVariations(domain) {
			req := c.peopleRequest(defaultSeniorities, nil)
			req.OrganizationDomains = []string{variation}
			contacts, err := c.findPeople(ctx, strategy, req, &res.APICallsMade)
			if err != nil {
				return res, err
			}
			if len(contacts) > 0 {
				res.Contacts = contacts
				break
			}
		}
		return res, nil

	default:
		return res, fmt.Errorf("unknown fallback strategy %q", strategy)
	}
}

func (c *Client) peopleRequest(seniorities, titles []string) peopleSearchRequest {
	return peopleSearchRequest{
		PersonSeniorities: seniorities,
		PersonTitles:      titles,
		PerPage:           c.cfg.PerPage,
		Page:              1,
	}
}

func (c *Client) findOrganization(ctx context.Context, strategy intel.Strategy, req organizationSearchRequest, calls *int) (*intel.Organization, error) {
	var out organizationSearchResponse
	if err := c.post(ctx, strategy, organizationsPath, req, &out, calls); err != nil {
		return nil, err
	}
	if len(out.Organizations) == 0 {
		return nil, nil
	}
	return out.Organizations[0].toOrganization(), nil
}

func (c *Client) findPeople(ctx context.Context, strategy intel.Strategy, req peopleSearchRequest, calls *int) ([]intel.ContactCandidate, error) {
	var out peopleSearchResponse
	if err := c.post(ctx, strategy, peoplePath, req, &out, calls); err != nil {
		return nil, err
	}
	contacts := make([]intel.ContactCandidate, 0, len(out.People))
	for _, p := range out.People {
		cand := p.toCandidate()
		if cand.Name == "" && cand.Email == "" {
			continue
		}
		contacts = append(contacts, cand)
	}
	return contacts, nil
}

func (c *Client) post(ctx context.Context, strategy intel.Strategy, path string, body, out any, calls *int) error {
	return c.do(ctx, string(strategy), calls, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetBody(body).Post(path)
	}, out)
}

// do runs one logical API call with retries. calls counts every HTTP attempt.
func (c *Client) do(ctx context.Context, label string, calls *int, send func() (*resty.Response, error), out any) error {
	for attempt := 0; ; attempt++ {
		if err := c.awaitTurn(ctx); err != nil {
			return err
		}
		*calls++
		err := c.exchange(ctx, send, out)
		metrics.ObserveFallbackCall(label, outcome(err))
		if err == nil {
			return nil
		}
		if !c.cfg.Retry.ShouldRetry(err, attempt) {
			return err
		}
		delay := c.cfg.Retry.Delay(err, attempt)
		metrics.ObserveFallbackRetry()
		c.logger.Info("retrying fallback call",
			zap.String("strategy", label),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) exchange(ctx context.Context, send func() (*resty.Response, error), out any) error {
	resp, err := send()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("fallback api: %w", ctxErr)
		}
		return &TransientError{Err: err}
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &TransientError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}

	apiErr := &APIError{
		StatusCode: status,
		RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"), c.now()),
		Body:       truncate(strings.TrimSpace(string(resp.Body())), maxErrorBody),
	}
	switch status {
	case http.StatusTooManyRequests:
		c.startCooldown(apiErr.RetryAfter)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	}
	return apiErr
}

// awaitTurn waits out any shared cool-down, then for a limiter token.
func (c *Client) awaitTurn(ctx context.Context) error {
	if wait := c.cooldownRemaining(); wait > 0 {
		metrics.ObserveRateLimitDelay("fallback_cooldown", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("fallback rate limit: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay("fallback", d)
	}
	return nil
}

func (c *Client) startCooldown(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = c.cfg.Cooldown
	}
	until := c.now().Add(retryAfter)
	c.mu.Lock()
	defer c.mu.Unlock()
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
}

func (c *Client) cooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownUntil.Sub(c.now())
}

func isTransient(err error) bool {
	return RetryPolicy{MaxRetries: 1}.ShouldRetry(err, 0)
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "http_error"
	default:
		return "error"
	}
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fallback backoff: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
