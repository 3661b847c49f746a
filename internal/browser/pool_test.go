package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/stealth"
)

type fakeDriver struct {
	closed   atomic.Bool
	navErr   error
	navCount atomic.Int64
}

func (d *fakeDriver) Navigate(_ context.Context, url string) (intel.Page, error) {
	d.navCount.Add(1)
	if d.navErr != nil {
		return intel.Page{}, d.navErr
	}
	return intel.Page{URL: url, FinalURL: url, StatusCode: 200, HTML: "<html></html>"}, nil
}

func (d *fakeDriver) DismissCookies(context.Context) bool { return false }

func (d *fakeDriver) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	drivers  []*fakeDriver
	err      error
	launches atomic.Int64
	// hang makes Launch wait for its context, like a browser that never starts.
	hang atomic.Bool
}

func (l *fakeLauncher) Launch(ctx context.Context, _ stealth.IdentityProfile) (Driver, error) {
	l.launches.Add(1)
	if l.hang.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	d := &fakeDriver{}
	l.mu.Lock()
	l.drivers = append(l.drivers, d)
	l.mu.Unlock()
	return d, nil
}

func newTestPool(t *testing.T, cfg PoolConfig, opts ...PoolOption) (*Pool, *fakeLauncher) {
	t.Helper()
	launcher := &fakeLauncher{}
	opts = append([]PoolOption{WithMemoryProbe(func() (float64, error) { return 10, nil })}, opts...)
	pool, err := NewPool(cfg, launcher, stealth.NewGenerator(stealth.Config{Seed: 1}), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool, launcher
}

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPool(PoolConfig{Size: 0}, &fakeLauncher{}, stealth.NewGenerator(stealth.Config{}), nil)
	require.Error(t, err)
	_, err = NewPool(PoolConfig{Size: 1}, nil, stealth.NewGenerator(stealth.Config{}), nil)
	require.Error(t, err)
	_, err = NewPool(PoolConfig{Size: 1}, &fakeLauncher{}, nil, nil)
	require.Error(t, err)
}

func TestAcquireReusesReleasedSession(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 2, MaxPagesPerSession: 10})
	ctx := context.Background()

	s1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	pool.Release(s1)

	s2, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.Same(t, s1, s2)
	require.EqualValues(t, 1, launcher.launches.Load())
	pool.Release(s2)
}

func TestAcquireBlocksExcessCallersUntilRelease(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, PoolConfig{Size: 2})
	ctx := context.Background()

	s1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	s2, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)

	got := make(chan *Session, 1)
	go func() {
		s, acquireErr := pool.Acquire(ctx, 5*time.Second)
		if acquireErr != nil {
			got <- nil
			return
		}
		got <- s
	}()

	select {
	case <-got:
		t.Fatal("third acquire should block while both sessions are leased")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(s1)
	select {
	case s := <-got:
		require.Same(t, s1, s)
		pool.Release(s)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked acquire was not woken by release")
	}
	pool.Release(s2)
}

func TestAcquireTimesOut(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, PoolConfig{Size: 1})
	s, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer pool.Release(s)

	_, err = pool.Acquire(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	require.True(t, IsTimeout(err))
}

func TestAcquireTimeoutCoversSlowLaunch(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 1})
	launcher.hang.Store(true)

	start := time.Now()
	_, err := pool.Acquire(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)

	launcher.hang.Store(false)
	s, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err, "the slot is returned after an abandoned launch")
	pool.Release(s)
}

func TestDoubleReleaseLeasesSessionOnce(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 2})
	ctx := context.Background()

	s1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	pool.Release(s1)
	pool.Release(s1)

	a, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.EqualValues(t, 2, launcher.launches.Load())

	pool.Release(a)
	pool.Release(b)
}

func TestAcquireHonoursCallerCancellation(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, PoolConfig{Size: 1})
	s, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer pool.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrAcquireTimeout)
}

func TestRetiredSessionIsNeverReissued(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 1, MaxPagesPerSession: 1})
	ctx := context.Background()

	s1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	_, err = s1.Fetch(ctx, "https://example-motors.com/")
	require.NoError(t, err)
	pool.Release(s1)
	require.Equal(t, Dead, s1.Health())

	s2, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.NotSame(t, s1, s2)
	require.EqualValues(t, 2, launcher.launches.Load())
	require.True(t, launcher.drivers[0].closed.Load())
	pool.Release(s2)
}

func TestReleaseRetiresDegradedSession(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, PoolConfig{Size: 1})
	s1, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	s1.MarkDegraded()
	pool.Release(s1)

	s2, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotSame(t, s1, s2)
	pool.Release(s2)
}

func TestReleaseRetiresAgedSession(t *testing.T) {
	t.Parallel()

	var now atomic.Int64
	now.Store(time.Unix(1_700_000_000, 0).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	pool, _ := newTestPool(t, PoolConfig{Size: 1, MaxSessionAge: time.Minute}, WithClock(clock))
	s1, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	now.Add(int64(2 * time.Minute))
	pool.Release(s1)

	s2, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotSame(t, s1, s2)
	pool.Release(s2)
}

func TestReleaseRetiresUnderMemoryPressure(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, PoolConfig{Size: 1, MemoryPressurePercent: 80},
		WithMemoryProbe(func() (float64, error) { return 95, nil }))
	s1, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	pool.Release(s1)
	require.Equal(t, Dead, s1.Health())
}

func TestCrashedSessionRetiredOnceAndReleaseIsNoop(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 1})

	s1, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	launcher.drivers[0].navErr = errors.Join(ErrSessionCrashed, errors.New("websocket closed"))

	_, err = s1.Fetch(context.Background(), "https://example-motors.com/staff")
	require.ErrorIs(t, err, ErrSessionCrashed)
	require.Equal(t, Dead, s1.Health())

	pool.Retire(s1, ReasonCrashed)
	pool.Retire(s1, ReasonCrashed)
	pool.Release(s1)

	s2, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotSame(t, s1, s2)

	// The only token is leased again, so the pool is full.
	_, err = pool.Acquire(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	pool.Release(s2)
}

func TestLaunchFailureReturnsToken(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 1})
	launcher.err = errors.New("chrome not found")
	_, err := pool.Acquire(context.Background(), time.Second)
	require.ErrorContains(t, err, "chrome not found")

	launcher.err = nil
	s, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	pool.Release(s)
}

func TestCloseRejectsAcquireAndRetiresLeased(t *testing.T) {
	t.Parallel()

	pool, launcher := newTestPool(t, PoolConfig{Size: 2})
	leased, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	idle, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	pool.Release(idle)

	require.NoError(t, pool.Close())
	require.True(t, pool.IsClosed())
	_, err = pool.Acquire(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrPoolClosed)

	pool.Release(leased)
	for _, d := range launcher.drivers {
		require.True(t, d.closed.Load())
	}
}

func TestConcurrentLeasesNeverExceedSize(t *testing.T) {
	t.Parallel()

	const size = 3
	pool, launcher := newTestPool(t, PoolConfig{Size: size, MaxPagesPerSession: 2})

	var (
		inFlight atomic.Int64
		peak     atomic.Int64
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := pool.Acquire(context.Background(), 5*time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			defer pool.Release(s)
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			_, _ = s.Fetch(context.Background(), "https://example-motors.com/")
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int64(size))
	require.GreaterOrEqual(t, launcher.launches.Load(), int64(size))
}
