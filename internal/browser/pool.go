package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
)

// Retirement reasons.
const (
	ReasonRotation = "rotation"
	ReasonAge      = "age"
	ReasonDegraded = "degraded"
	ReasonCrashed  = "crashed"
	ReasonMemory   = "memory"
	ReasonClosed   = "closed"
)

// IdentitySource produces one identity per created session.
type IdentitySource interface {
	NewIdentity() stealth.IdentityProfile
}

// MemoryProbe returns the host memory usage in percent.
type MemoryProbe func() (float64, error)

// SystemMemory reads host memory usage via gopsutil.
func SystemMemory() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

// PoolConfig controls pool size and session rotation.
type PoolConfig struct {
	Size                  int
	MaxPagesPerSession    int
	MaxSessionAge         time.Duration
	MemoryPressurePercent float64
}

// Pool leases a fixed number of browser sessions.
//
// A token in tokens is the right to create a session; idle holds released,
// reusable sessions. Live sessions (idle or leased) plus free tokens always
// equal Size.
type Pool struct {
	cfg        PoolConfig
	launcher   Launcher
	identities IdentitySource
	logger     *zap.Logger
	memory     MemoryProbe
	now        func() time.Time

	tokens chan struct{}
	idle   chan *Session
	closed chan struct{}
	once   sync.Once
	seq    atomic.Int64
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithMemoryProbe overrides the host memory probe.
func WithMemoryProbe(probe MemoryProbe) PoolOption {
	return func(p *Pool) { p.memory = probe }
}

// WithClock overrides the time source used for session age.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a pool. Sessions are launched lazily on Acquire.
func NewPool(cfg PoolConfig, launcher Launcher, identities IdentitySource, logger *zap.Logger, opts ...PoolOption) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0")
	}
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:        cfg,
		launcher:   launcher,
		identities: identities,
		logger:     logger,
		memory:     SystemMemory,
		now:        time.Now,
		tokens:     make(chan struct{}, cfg.Size),
		idle:       make(chan *Session, cfg.Size),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < cfg.Size; i++ {
		p.tokens <- struct{}{}
	}
	return p, nil
}

// Size returns the fixed pool size.
func (p *Pool) Size() int {
	return p.cfg.Size
}

// Acquire leases a session, waiting at most timeout. Idle sessions are preferred
// over launching new ones.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Session, error) {
	start := p.now()
	defer func() { metrics.ObserveAcquireWait(p.now().Sub(start)) }()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		select {
		case <-p.closed:
			return nil, ErrPoolClosed
		default:
		}

		select {
		case s := <-p.idle:
			if s = p.checkIdle(s); s != nil {
				s.leased.Store(true)
				return s, nil
			}
			continue
		default:
		}

		select {
		case <-p.closed:
			return nil, ErrPoolClosed
		case s := <-p.idle:
			if s = p.checkIdle(s); s != nil {
				s.leased.Store(true)
				return s, nil
			}
		case <-p.tokens:
			s, err := p.launch(waitCtx)
			if err != nil {
				p.tokens <- struct{}{}
				if ctx.Err() == nil && waitCtx.Err() != nil {
					return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, err)
				}
				return nil, err
			}
			s.leased.Store(true)
			return s, nil
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("acquire session: %w", ctx.Err())
			}
			return nil, ErrAcquireTimeout
		}
	}
}

// checkIdle retires an idle session that aged out while waiting.
func (p *Pool) checkIdle(s *Session) *Session {
	if p.cfg.MaxSessionAge > 0 && p.now().Sub(s.CreatedAt) >= p.cfg.MaxSessionAge {
		p.Retire(s, ReasonAge)
		return nil
	}
	return s
}

func (p *Pool) launch(ctx context.Context) (*Session, error) {
	identity := p.identities.NewIdentity()
	driver, err := p.launcher.Launch(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	s := &Session{
		ID:        fmt.Sprintf("session-%d", p.seq.Add(1)),
		Identity:  identity,
		CreatedAt: p.now(),
		driver:    driver,
	}
	metrics.IncActiveSessions()
	p.logger.Debug("browser session launched",
		zap.String("session_id", s.ID),
		zap.String("user_agent", identity.UserAgent),
		zap.String("timezone", identity.Timezone),
	)
	return s, nil
}

// Release returns a leased session. Sessions that are worn out, degraded or
// released under memory pressure are retired instead of reused. Releasing a
// retired or already released session is a no-op, so callers may always defer
// Release.
func (p *Pool) Release(s *Session) {
	if s == nil || s.retired.Load() {
		return
	}
	if !s.leased.CompareAndSwap(true, false) {
		return
	}
	if reason := p.retireReason(s); reason != "" {
		p.Retire(s, reason)
		return
	}
	select {
	case <-p.closed:
		p.Retire(s, ReasonClosed)
		return
	default:
	}
	select {
	case p.idle <- s:
	default:
		// Unreachable while the token invariant holds.
		p.Retire(s, ReasonClosed)
	}
}

func (p *Pool) retireReason(s *Session) string {
	switch s.Health() {
	case Dead:
		return ReasonCrashed
	case Degraded:
		return ReasonDegraded
	}
	if p.cfg.MaxPagesPerSession > 0 && s.Pages() >= int64(p.cfg.MaxPagesPerSession) {
		return ReasonRotation
	}
	if p.cfg.MaxSessionAge > 0 && p.now().Sub(s.CreatedAt) >= p.cfg.MaxSessionAge {
		return ReasonAge
	}
	if p.cfg.MemoryPressurePercent > 0 && p.memory != nil {
		used, err := p.memory()
		if err != nil {
			p.logger.Debug("memory probe failed", zap.Error(err))
		} else if used >= p.cfg.MemoryPressurePercent {
			return ReasonMemory
		}
	}
	return ""
}

// Retire closes the session and frees its slot for a lazily created
// replacement. It is idempotent.
func (p *Pool) Retire(s *Session, reason string) {
	if s == nil || !s.retired.CompareAndSwap(false, true) {
		return
	}
	s.health.Store(int32(Dead))
	if err := s.driver.Close(); err != nil {
		p.logger.Warn("close browser session", zap.String("session_id", s.ID), zap.Error(err))
	}
	metrics.ObserveSessionRetired(reason)
	p.logger.Info("browser session retired",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int64("pages", s.Pages()),
	)
	p.tokens <- struct{}{}
}

// Close stops handing out sessions and closes the idle ones. Leased sessions
// are closed when they are released.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.closed)
	})
	for {
		select {
		case s := <-p.idle:
			p.Retire(s, ReasonClosed)
		default:
			return nil
		}
	}
}

// IsClosed reports whether Close was called.
func (p *Pool) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is an acquire timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAcquireTimeout)
}
