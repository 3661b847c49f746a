// Package browser owns the fixed-size pool of headless browser sessions leased
// to crawl workers.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
)

var (
	// ErrAcquireTimeout is returned when no session frees up within the acquire timeout.
	ErrAcquireTimeout = errors.New("browser: acquire timed out")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("browser: pool closed")
	// ErrSessionCrashed marks a failure of the browser process itself rather than the page.
	ErrSessionCrashed = errors.New("browser: session crashed")
)

// Health is the condition of a session.
type Health int32

// Session health values.
const (
	Healthy Health = iota
	Degraded
	Dead
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "dead"
	}
}

// Driver controls one browser process.
type Driver interface {
	// Navigate loads url and returns the rendered document. Errors wrapping
	// ErrSessionCrashed mean the driver is unusable.
	Navigate(ctx context.Context, url string) (intel.Page, error)
	// DismissCookies clicks the first visible consent button, if any.
	DismissCookies(ctx context.Context) bool
	Close() error
}

// Launcher starts browser processes presenting a given identity. ctx bounds
// startup only; the returned driver outlives it.
type Launcher interface {
	Launch(ctx context.Context, identity stealth.IdentityProfile) (Driver, error)
}

// Session is a browser leased to exactly one caller at a time.
type Session struct {
	ID        string
	Identity  stealth.IdentityProfile
	CreatedAt time.Time

	driver  Driver
	pages   atomic.Int64
	health  atomic.Int32
	retired atomic.Bool
	leased  atomic.Bool
}

// Pages returns how many navigations the session has served.
func (s *Session) Pages() int64 {
	return s.pages.Load()
}

// Health returns the current health of the session.
func (s *Session) Health() Health {
	return Health(s.health.Load())
}

// MarkDegraded flags the session for retirement on release.
func (s *Session) MarkDegraded() {
	s.health.CompareAndSwap(int32(Healthy), int32(Degraded))
}

// Fetch navigates to url. A crash marks the session dead.
func (s *Session) Fetch(ctx context.Context, url string) (intel.Page, error) {
	if s.Health() == Dead {
		return intel.Page{}, fmt.Errorf("session %s: %w", s.ID, ErrSessionCrashed)
	}
	s.pages.Add(1)
	page, err := s.driver.Navigate(ctx, url)
	if err != nil {
		if errors.Is(err, ErrSessionCrashed) {
			s.health.Store(int32(Dead))
		}
		return intel.Page{}, err
	}
	return page, nil
}

// DismissCookies delegates to the driver.
func (s *Session) DismissCookies(ctx context.Context) bool {
	return s.driver.DismissCookies(ctx)
}
