// Package ratelimit paces page loads per dealership host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
)

// minSlowdown bounds how far ReportResult may throttle a host below its default rate.
const minSlowdown = 0.125

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*hostLimiter
	defaultRate  rate.Limit
	defaultBurst int
}

type hostLimiter struct {
	limiter *rate.Limiter
	factor  float64
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter. A non-positive rate disables pacing.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*hostLimiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the host of rawURL, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostKey(rawURL)
	hl := l.get(host)

	start := time.Now()
	if err := hl.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay("host", d)
	}
	return nil
}

// ReportResult slows a host down after throttling responses and restores its
// rate gradually after successful ones.
func (l *Limiter) ReportResult(rawURL string, status int) {
	if l.defaultRate == rate.Inf {
		return
	}
	hl := l.get(hostKey(rawURL))

	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		hl.factor /= 2
		if hl.factor < minSlowdown {
			hl.factor = minSlowdown
		}
	case status >= 200 && status < 400 && hl.factor < 1:
		hl.factor *= 2
		if hl.factor > 1 {
			hl.factor = 1
		}
	default:
		return
	}
	hl.limiter.SetLimit(l.defaultRate * rate.Limit(hl.factor))
}

// CurrentLimit returns the effective rate for the host of rawURL.
func (l *Limiter) CurrentLimit(rawURL string) rate.Limit {
	return l.get(hostKey(rawURL)).limiter.Limit()
}

func (l *Limiter) get(host string) *hostLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	hl, ok := l.limiters[host]
	if !ok {
		hl = &hostLimiter{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst), factor: 1}
		l.limiters[host] = hl
	}
	return hl
}

func hostKey(rawURL string) string {
	if host := intel.DomainOf(rawURL); host != "" {
		return host
	}
	return "unknown"
}
