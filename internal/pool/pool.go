// Package pool provides bounded resource pooling for browsers and pages.
//
// A Pool owns up to Max resources created lazily through a factory. Acquire
// hands out an idle resource, creates a new one while below the bound, or
// parks the caller on a waiter channel until a resource is released. The
// two-tier browser/page arrangement is built on top of this in the browser
// package.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolClosed is returned when trying to use a closed pool.
var ErrPoolClosed = errors.New("resource pool closed")

// ErrAcquireTimeout is returned when no resource became available in time.
var ErrAcquireTimeout = errors.New("resource pool acquire timed out")

// Config configures a Pool.
type Config[T any] struct {
	// Min is the number of resources created during warmup.
	Min int
	// Max is the hard bound on live resources.
	Max int
	// AcquireTimeout bounds how long Acquire waits for a slot. Zero means
	// wait until the context is done.
	AcquireTimeout time.Duration
	// Create constructs a new resource.
	Create func(ctx context.Context) (T, error)
	// Destroy disposes a resource removed from the pool.
	Destroy func(T)
}

// Pool is a bounded lazily-populated resource pool.
type Pool[T any] struct {
	cfg Config[T]

	mu      sync.Mutex
	idle    []T
	total   int // live resources, idle + handed out
	closed  bool
	warmed  bool
	waiters []chan T
}

// New creates a pool. Resources are not created until Warmup or the first
// Acquire.
func New[T any](cfg Config[T]) *Pool[T] {
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Min < 0 {
		cfg.Min = 0
	}
	if cfg.Min > cfg.Max {
		cfg.Min = cfg.Max
	}
	return &Pool[T]{cfg: cfg}
}

// Warmup creates Min resources ahead of demand. It runs at most once; later
// calls are no-ops. The first Acquire triggers it implicitly.
func (p *Pool[T]) Warmup(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.warmed {
		p.mu.Unlock()
		return nil
	}
	p.warmed = true
	need := p.cfg.Min - p.total
	p.total += need
	p.mu.Unlock()

	for i := 0; i < need; i++ {
		res, err := p.cfg.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return err
		}
		p.mu.Lock()
		p.idle = append(p.idle, res)
		p.mu.Unlock()
	}
	return nil
}

// Acquire returns a resource, creating one if the pool is below its bound.
// When the pool is saturated the caller waits for a release.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	if err := p.Warmup(ctx); err != nil {
		return zero, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		res := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return res, nil
	}

	if p.total < p.cfg.Max {
		p.total++
		p.mu.Unlock()

		res, err := p.cfg.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.promoteWaiterLocked()
			p.mu.Unlock()
			return zero, err
		}
		return res, nil
	}

	// Saturated: park until a release hands a resource over.
	waiter := make(chan T, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	waitCtx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case res, ok := <-waiter:
		if !ok {
			return zero, ErrPoolClosed
		}
		return res, nil
	case <-waitCtx.Done():
		p.mu.Lock()
		p.removeWaiterLocked(waiter)
		p.mu.Unlock()
		// A release may have raced the timeout.
		select {
		case res, ok := <-waiter:
			if ok {
				return res, nil
			}
		default:
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrAcquireTimeout
	}
}

// Release returns a resource to the pool, handing it directly to the oldest
// waiter when one is parked.
func (p *Pool[T]) Release(res T) {
	p.mu.Lock()
	if p.closed {
		p.total--
		p.mu.Unlock()
		if p.cfg.Destroy != nil {
			p.cfg.Destroy(res)
		}
		return
	}

	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		waiter <- res
		return
	}

	p.idle = append(p.idle, res)
	p.mu.Unlock()
}

// Discard removes a resource from the pool without returning it, freeing a
// slot for a future Acquire. Used when a resource became unusable.
func (p *Pool[T]) Discard(res T) {
	p.mu.Lock()
	p.total--
	p.promoteWaiterLocked()
	p.mu.Unlock()

	if p.cfg.Destroy != nil {
		p.cfg.Destroy(res)
	}
}

// promoteWaiterLocked unparks one waiter after a slot opened up, letting it
// re-enter Acquire through a fresh create. Called with p.mu held.
func (p *Pool[T]) promoteWaiterLocked() {
	if len(p.waiters) == 0 || p.total >= p.cfg.Max {
		return
	}
	waiter := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.total++

	go func() {
		res, err := p.cfg.Create(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			close(waiter)
			return
		}
		waiter <- res
	}()
}

// Saturated reports whether every slot is live and handed out.
func (p *Pool[T]) Saturated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total >= p.cfg.Max && len(p.idle) == 0
}

// Stats returns live and idle resource counts.
func (p *Pool[T]) Stats() (total, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, len(p.idle)
}

// Close destroys idle resources and fails parked waiters. Resources handed
// out are destroyed on Release.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if p.cfg.Destroy != nil {
		for _, res := range idle {
			p.cfg.Destroy(res)
		}
	}
}

// removeWaiterLocked removes a waiter channel from the queue.
func (p *Pool[T]) removeWaiterLocked(waiter chan T) {
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}
