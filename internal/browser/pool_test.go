package browser_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obikwelu/resulthawk/internal/browser"
	"github.com/obikwelu/resulthawk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a scriptable Session for pool tests.
type fakeSession struct {
	resetErr error
	closed   atomic.Bool
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeSession) Reset(ctx context.Context) error                { return f.resetErr }
func (f *fakeSession) Click(ctx context.Context, sel string) error    { return nil }
func (f *fakeSession) SendKeys(ctx context.Context, sel, v string) error {
	return nil
}
func (f *fakeSession) SetValue(ctx context.Context, sel, v string) error { return nil }
func (f *fakeSession) KeyPress(ctx context.Context, key string) error    { return nil }
func (f *fakeSession) Exists(ctx context.Context, sel string) (bool, error) {
	return false, nil
}
func (f *fakeSession) Text(ctx context.Context, sel string) (string, error) { return "", nil }
func (f *fakeSession) Location(ctx context.Context) (string, error)         { return "", nil }
func (f *fakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	return nil
}
func (f *fakeSession) AdoptNewTarget(ctx context.Context) (bool, error) { return false, nil }
func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error)   { return nil, nil }
func (f *fakeSession) PrintPDF(ctx context.Context) ([]byte, error)     { return nil, nil }
func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

// fakeFactory counts creations and can be made to fail on specific calls.
type fakeFactory struct {
	created atomic.Int64
	failOn  map[int64]bool
	last    *fakeSession
}

func (f *fakeFactory) factory(ctx context.Context) (browser.Session, error) {
	n := f.created.Add(1)
	if f.failOn[n] {
		return nil, errors.New("chrome refused to start")
	}
	s := &fakeSession{}
	f.last = s
	return s, nil
}

func poolConfig() config.BrowserConfig {
	return config.BrowserConfig{
		PoolSize:     2,
		PoolMax:      3,
		InitBatch:    2,
		MaxAge:       30 * time.Minute,
		AcquireWait:  time.Second,
		ResetTimeout: time.Second,
	}
}

func TestPool_InitializeWarmsToTarget(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()

	require.NoError(t, p.Initialize(context.Background()))

	stats := p.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Available)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, int64(2), ff.created.Load())
}

func TestPool_InitializeSurvivesFailures(t *testing.T) {
	ff := &fakeFactory{failOn: map[int64]bool{1: true}}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()

	require.NoError(t, p.Initialize(context.Background()))

	// One creation failed; the other still joined the pool.
	assert.Equal(t, 1, p.Stats().Total)
}

func TestPool_AcquirePrefersIdle(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	lease, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 1, stats.Available)
	// No new session was created for an acquire that found an idle one.
	assert.Equal(t, int64(2), ff.created.Load())

	lease.Release()
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestPool_AcquireGrowsToMax(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	var leases []*browser.Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(context.Background(), 0)
		require.NoError(t, err)
		leases = append(leases, lease)
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.InUse)
	assert.Equal(t, int64(3), ff.created.Load())

	for _, l := range leases {
		l.Release()
	}
}

func TestPool_AcquireFailsFastWhenFullAndBusy(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(context.Background(), 0)
		require.NoError(t, err)
	}

	_, err := p.Acquire(context.Background(), 0)
	require.ErrorIs(t, err, browser.ErrPoolExhausted)
	// The failed acquire must not have created a session past the maximum.
	assert.Equal(t, 3, p.Stats().Total)
	assert.Equal(t, int64(3), ff.created.Load())
}

func TestPool_AcquireWaitsForFreedSession(t *testing.T) {
	cfg := poolConfig()
	cfg.PoolSize = 1
	cfg.PoolMax = 1
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, cfg)
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	lease, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(300 * time.Millisecond)
		lease.Release()
	}()

	second, err := p.Acquire(context.Background(), 3*time.Second)
	require.NoError(t, err)
	second.Release()
}

func TestPool_FailedResetDiscardsSession(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	lease, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	broken := lease.Session().(*fakeSession)
	broken.resetErr = errors.New("navigation hung")
	lease.Release()

	assert.True(t, broken.closed.Load())
	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.InUse)

	// The discarded session is never handed out again.
	next, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)
	assert.NotSame(t, broken, next.Session())
	next.Release()
}

func TestPool_AgedSessionRetiredNotLeased(t *testing.T) {
	cfg := poolConfig()
	cfg.MaxAge = 10 * time.Millisecond
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, cfg)
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	time.Sleep(20 * time.Millisecond)

	// Both warm sessions are past max age: acquire retires them and creates
	// a replacement instead of leasing a degraded session.
	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ff.created.Load())
	lease.Release()
}

func TestPool_DiscardRemovesSession(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	defer p.Cleanup()
	require.NoError(t, p.Initialize(context.Background()))

	lease, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)
	discarded := lease.Session().(*fakeSession)

	lease.Discard()
	assert.True(t, discarded.closed.Load())
	assert.Equal(t, 1, p.Stats().Total)
}

func TestPool_CleanupClosesEverything(t *testing.T) {
	ff := &fakeFactory{}
	p := browser.NewPool(ff.factory, poolConfig())
	require.NoError(t, p.Initialize(context.Background()))

	p.Cleanup()
	assert.Equal(t, 0, p.Stats().Total)

	_, err := p.Acquire(context.Background(), 0)
	assert.ErrorIs(t, err, browser.ErrPoolClosed)
}
