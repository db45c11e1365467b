package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obikwelu/resulthawk/internal/config"
	"github.com/obikwelu/resulthawk/pkg/models"
)

var (
	ErrPoolExhausted = errors.New("browser pool exhausted")
	ErrPoolClosed    = errors.New("browser pool closed")
)

// acquirePollInterval is how often a blocked Acquire re-checks for a freed
// session within its wait budget.
const acquirePollInterval = 250 * time.Millisecond

type pooledSession struct {
	session   Session
	createdAt time.Time
	lastUsed  time.Time
	busy      bool
}

// Pool owns a bounded set of browser sessions under a lease/release
// discipline. Sessions are expensive to create and degrade over long
// lifetimes, so the pool amortizes creation and retires sessions by age.
// All acquire/release decisions are serialized on an internal mutex.
type Pool struct {
	mu       sync.Mutex
	sessions []*pooledSession
	factory  Factory
	cfg      config.BrowserConfig
	closed   bool
}

// NewPool creates an empty pool. Call Initialize to warm it up.
func NewPool(factory Factory, cfg config.BrowserConfig) *Pool {
	return &Pool{factory: factory, cfg: cfg}
}

// Initialize brings the pool up to its target size, creating sessions in
// bounded batches so startup latency is amortized. Individual creation
// failures are logged and do not abort the rest of the warm-up.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	missing := p.cfg.PoolSize - len(p.sessions)
	p.mu.Unlock()

	for missing > 0 {
		batch := p.cfg.InitBatch
		if batch > missing {
			batch = missing
		}

		var wg sync.WaitGroup
		for i := 0; i < batch; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sess, err := p.factory(ctx)
				if err != nil {
					slog.Error("browser session creation failed", "error", err)
					return
				}
				now := time.Now()
				p.mu.Lock()
				if p.closed {
					p.mu.Unlock()
					_ = sess.Close()
					return
				}
				p.sessions = append(p.sessions, &pooledSession{
					session:   sess,
					createdAt: now,
					lastUsed:  now,
				})
				p.mu.Unlock()
			}()
		}
		wg.Wait()
		missing -= batch
	}

	p.mu.Lock()
	ready := len(p.sessions)
	p.mu.Unlock()
	slog.Info("browser pool initialized", "ready", ready, "target", p.cfg.PoolSize)
	return nil
}

// Acquire returns a lease on an idle session, creating one on demand while
// the pool is below its maximum size. It polls until maxWait expires, then
// fails with ErrPoolExhausted. A session past its maximum age is retired
// here rather than leased again.
func (p *Pool) Acquire(ctx context.Context, maxWait time.Duration) (*Lease, error) {
	deadline := time.Now().Add(maxWait)

	for {
		lease, grow, err := p.tryAcquire()
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		if grow {
			lease, err := p.createLeased(ctx)
			if err == nil {
				return lease, nil
			}
			slog.Error("on-demand browser session creation failed", "error", err)
		}

		if !time.Now().Before(deadline) {
			return nil, ErrPoolExhausted
		}

		wait := acquirePollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire scans for an idle session under the lock. It returns a lease,
// or grow=true when the pool may create a new session for the caller.
func (p *Pool) tryAcquire() (*Lease, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}

	for i := 0; i < len(p.sessions); {
		ps := p.sessions[i]
		if ps.busy {
			i++
			continue
		}
		if time.Since(ps.createdAt) > p.cfg.MaxAge {
			// Aged out: retire instead of leasing a degraded session.
			p.removeLocked(ps)
			go func() { _ = ps.session.Close() }()
			continue
		}
		ps.busy = true
		ps.lastUsed = time.Now()
		return &Lease{pool: p, ps: ps}, false, nil
	}

	return nil, len(p.sessions) < p.cfg.PoolMax, nil
}

// createLeased makes a new session already marked busy. The slot is reserved
// first so concurrent callers cannot overshoot the maximum size while the
// session is starting.
func (p *Pool) createLeased(ctx context.Context) (*Lease, error) {
	now := time.Now()
	placeholder := &pooledSession{createdAt: now, lastUsed: now, busy: true}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.sessions) >= p.cfg.PoolMax {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.sessions = append(p.sessions, placeholder)
	p.mu.Unlock()

	sess, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.removeLocked(placeholder)
		p.mu.Unlock()
		return nil, fmt.Errorf("create browser session: %w", err)
	}

	p.mu.Lock()
	placeholder.session = sess
	p.mu.Unlock()
	return &Lease{pool: p, ps: placeholder}, nil
}

func (p *Pool) removeLocked(target *pooledSession) {
	for i, ps := range p.sessions {
		if ps == target {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			return
		}
	}
}

// Cleanup tears down every session. Used at process shutdown.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.closed = true
	p.mu.Unlock()

	for _, ps := range sessions {
		if ps.session != nil {
			_ = ps.session.Close()
		}
	}
	slog.Info("browser pool cleaned up", "closed", len(sessions))
}

// Stats returns a point-in-time snapshot for operational visibility.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := models.PoolStats{
		Total: len(p.sessions),
		Max:   p.cfg.PoolMax,
	}
	for _, ps := range p.sessions {
		if ps.busy {
			stats.InUse++
		} else {
			stats.Available++
		}
	}
	return stats
}

// Lease is a temporary exclusive claim on one pooled session. Exactly one of
// Release or Discard must be called when the holder finishes.
type Lease struct {
	pool *Pool
	ps   *pooledSession
	done bool
}

// Session returns the leased session.
func (l *Lease) Session() Session {
	return l.ps.session
}

// Release attempts to reset the session to a blank page and return it to the
// idle set. A session that fails or hangs on reset is torn down instead; a
// stuck session must never silently re-enter rotation.
func (l *Lease) Release() {
	if l.done {
		return
	}
	l.done = true

	ctx, cancel := context.WithTimeout(context.Background(), l.pool.cfg.ResetTimeout)
	defer cancel()

	if err := l.ps.session.Reset(ctx); err != nil {
		slog.Warn("browser session reset failed, discarding", "error", err)
		l.remove()
		return
	}

	l.pool.mu.Lock()
	l.ps.busy = false
	l.ps.lastUsed = time.Now()
	l.pool.mu.Unlock()
}

// Discard tears the session down without attempting a reset. Used when the
// holder has reason to believe the session is corrupted, e.g. after a job
// deadline fired mid-interaction.
func (l *Lease) Discard() {
	if l.done {
		return
	}
	l.done = true
	l.remove()
}

func (l *Lease) remove() {
	l.pool.mu.Lock()
	l.pool.removeLocked(l.ps)
	l.pool.mu.Unlock()
	_ = l.ps.session.Close()
}
