// Package db provides a bounded connection pool over single pgx connections.
//
// The pool holds up to PoolSize reusable connections plus up to MaxOverflow
// transient connections opened on demand. Overflow connections are closed on
// release instead of returning to the idle set. Acquire blocks until a slot is
// free or AcquireTimeout elapses, then fails with ErrPoolExhausted so callers
// can back off instead of hanging.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrPoolExhausted is returned when Acquire waits longer than AcquireTimeout
	// for a free slot. Retryable by the caller.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrConnectionUnhealthy is returned when no healthy connection could be
	// produced for a lease (liveness probe failed and the replacement dial failed too).
	ErrConnectionUnhealthy = errors.New("connection unhealthy")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool closed")
)

// Querier is the query surface handed out to repositories. Both a pooled
// connection and an open transaction satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is an open transaction on a pooled connection.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is the subset of a database connection the pool manages.
type Conn interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a new connection. The pool calls it for initial fills,
// overflow, and replacement of connections that fail the liveness probe.
type Dialer func(ctx context.Context) (Conn, error)

// PgxDialer returns a Dialer that opens pgx connections for the given DSN.
func PgxDialer(dsn string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		c, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &pgxConn{c}, nil
	}
}

type pgxConn struct {
	*pgx.Conn
}

func (c *pgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.Conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Options configures pool capacity and timing.
type Options struct {
	// PoolSize is the number of always-available slots. Default 10.
	PoolSize int
	// MaxOverflow is the number of additional transient slots. Zero disables overflow.
	MaxOverflow int
	// AcquireTimeout bounds how long Acquire blocks for a slot. Default 30s.
	AcquireTimeout time.Duration
	// RecycleAfter is the idle age past which a connection is probed before
	// reuse. Default 1h.
	RecycleAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.MaxOverflow < 0 {
		o.MaxOverflow = 0
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 30 * time.Second
	}
	if o.RecycleAfter <= 0 {
		o.RecycleAfter = time.Hour
	}
	return o
}

type pooled struct {
	conn     Conn
	lastUsed time.Time
}

// Pool is a bounded, concurrency-safe connection pool.
// The number of concurrently leased connections never exceeds PoolSize+MaxOverflow.
type Pool struct {
	dial Dialer
	opts Options

	slots chan struct{}

	mu     sync.Mutex
	idle   []*pooled
	leased int
	closed bool
}

// NewPool returns a pool using dial to open connections. No connections are
// opened until first Acquire.
func NewPool(dial Dialer, opts Options) *Pool {
	opts = opts.withDefaults()
	capacity := opts.PoolSize + opts.MaxOverflow
	slots := make(chan struct{}, capacity)
	for i := 0; i < capacity; i++ {
		slots <- struct{}{}
	}
	return &Pool{dial: dial, opts: opts, slots: slots}
}

// Lease is a leased connection. Release must be called on every exit path;
// it is idempotent.
type Lease struct {
	pool *Pool
	conn Conn

	mu       sync.Mutex
	released bool
}

// Conn returns the leased connection's query surface.
func (l *Lease) Conn() Conn {
	return l.conn
}

// Release returns the connection to the pool. Overflow connections are closed
// rather than pooled. Safe to call more than once.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()
	l.pool.release(l.conn)
}

// Acquire leases a connection, blocking until a slot frees up or
// AcquireTimeout elapses (ErrPoolExhausted). A connection idle past
// RecycleAfter is probed first; on probe failure it is discarded and replaced.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
	case <-timer.C:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.checkout(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, err
	}

	p.mu.Lock()
	p.leased++
	p.mu.Unlock()
	return &Lease{pool: p, conn: conn}, nil
}

// checkout produces a healthy connection for a slot that has already been taken.
func (p *Pool) checkout(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	var pc *pooled
	if n := len(p.idle); n > 0 {
		pc = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if pc != nil {
		if time.Since(pc.lastUsed) <= p.opts.RecycleAfter {
			return pc.conn, nil
		}
		// Idle past the recycle threshold: probe before handing out.
		if err := pc.conn.Ping(ctx); err == nil {
			return pc.conn, nil
		}
		_ = pc.conn.Close(ctx)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnhealthy, err)
	}
	return conn, nil
}

func (p *Pool) release(conn Conn) {
	p.mu.Lock()
	p.leased--
	keep := !p.closed && len(p.idle) < p.opts.PoolSize
	if keep {
		p.idle = append(p.idle, &pooled{conn: conn, lastUsed: time.Now()})
	}
	p.mu.Unlock()

	if !keep {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.Close(ctx)
		cancel()
	}
	p.slots <- struct{}{}
}

// WithConn acquires a connection, runs fn, and always releases the connection.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(ctx, lease.conn)
}

// WithTx acquires a connection, begins a transaction, runs fn, commits on
// success and rolls back on any error. The connection is released on every
// exit path.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	tx, err := lease.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after commit

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping verifies database connectivity through a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return lease.conn.Ping(ctx)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	PoolSize    int
	MaxOverflow int
	Idle        int
	Leased      int
	Overflow    int
}

// Stats returns the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	open := p.leased + len(p.idle)
	overflow := open - p.opts.PoolSize
	if overflow < 0 {
		overflow = 0
	}
	return Stats{
		PoolSize:    p.opts.PoolSize,
		MaxOverflow: p.opts.MaxOverflow,
		Idle:        len(p.idle),
		Leased:      p.leased,
		Overflow:    overflow,
	}
}

// Close closes all idle connections and rejects further Acquires.
// Leased connections are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pc := range idle {
		_ = pc.conn.Close(ctx)
	}
}
