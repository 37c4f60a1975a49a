// Package engine wraps the embedded DuckDB query engine behind a
// checkout pool. A handle is never shared across concurrent callers:
// each operation acquires one handle for its whole duration and returns
// it on completion, mirroring connection-per-worker pooling with an
// in-process engine instead of a socket.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Pool manages a bounded set of in-memory DuckDB handles.
type Pool struct {
	mu sync.Mutex

	// idle holds handles not currently checked out
	idle []*Handle

	// total tracks handles in existence, checked out or idle
	total int

	// maxHandles is the cap on total handles
	maxHandles int

	// idleTimeout is how long a handle can sit idle before being closed
	idleTimeout time.Duration

	// closed indicates the pool has been shut down
	closed bool

	stopCleanup chan struct{}
}

// Handle owns one DuckDB instance. It must be used by one operation at a
// time and returned to the pool with Release.
type Handle struct {
	db       *sql.DB
	lastUsed time.Time
}

// PoolConfig holds configuration for the engine pool.
type PoolConfig struct {
	// MaxHandles is the maximum number of live engine handles (default: 8)
	MaxHandles int

	// IdleTimeout is how long a handle can be idle before being closed (default: 5 minutes)
	IdleTimeout time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxHandles:  8,
		IdleTimeout: 5 * time.Minute,
	}
}

// NewPool creates a new engine pool with the given configuration.
func NewPool(config PoolConfig) *Pool {
	if config.MaxHandles <= 0 {
		config.MaxHandles = 8
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}

	p := &Pool{
		maxHandles:  config.MaxHandles,
		idleTimeout: config.IdleTimeout,
		stopCleanup: make(chan struct{}),
	}

	go p.cleanupLoop()

	return p
}

// Acquire checks out a handle for exclusive use. The caller must call
// Release exactly once when the operation completes, success or failure.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("engine: pool is closed")
	}

	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return h, nil
	}

	if p.total >= p.maxHandles {
		p.mu.Unlock()
		return nil, fmt.Errorf("engine: maximum handles reached (%d)", p.maxHandles)
	}
	p.total++
	p.mu.Unlock()

	h, err := openHandle(ctx)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// Release returns a handle to the pool.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		h.db.Close()
		p.total--
		return
	}

	h.lastUsed = time.Now()
	p.idle = append(p.idle, h)
}

// openHandle opens a fresh in-memory DuckDB instance. Partition files
// are attached per query via read_parquet, so the instance itself holds
// no state between operations.
func openHandle(ctx context.Context) (*Handle, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open duckdb: %w", err)
	}

	// One operation at a time per handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: failed to ping duckdb: %w", err)
	}

	return &Handle{db: db, lastUsed: time.Now()}, nil
}

// cleanupLoop periodically closes handles that have been idle too long.
func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCleanup:
			return
		case <-ticker.C:
			p.closeIdleHandles()
		}
	}
}

// closeIdleHandles closes idle handles past the idle timeout.
func (p *Pool) closeIdleHandles() {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	kept := p.idle[:0]
	for _, h := range p.idle {
		if now.Sub(h.lastUsed) > p.idleTimeout {
			h.db.Close()
			p.total--
			continue
		}
		kept = append(kept, h)
	}
	p.idle = kept
}

// Close closes all idle handles and marks the pool closed. Handles
// checked out at close time are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopCleanup)

	var lastErr error
	for _, h := range p.idle {
		if err := h.db.Close(); err != nil {
			lastErr = err
		}
		p.total--
	}
	p.idle = nil
	return lastErr
}

// PoolStats describes the pool's current state.
type PoolStats struct {
	TotalHandles int
	IdleHandles  int
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		TotalHandles: p.total,
		IdleHandles:  len(p.idle),
	}
}
