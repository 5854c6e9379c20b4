package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeConn struct {
	mu      sync.Mutex
	pingErr error
	pings   int
	closed  bool
	lastTx  *fakeTx
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (c *fakeConn) Begin(ctx context.Context) (Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTx = &fakeTx{}
	return c.lastTx, nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) closedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		c.mu.Lock()
		if c.closed {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

func TestPoolAcquireBlocksThenExhausts(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 2, MaxOverflow: 1, AcquireTimeout: 50 * time.Millisecond})
	defer p.Close()
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		l, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		leases = append(leases, l)
	}

	if _, err := p.Acquire(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire beyond capacity: want ErrPoolExhausted, got %v", err)
	}

	// A release must unblock a waiting Acquire.
	got := make(chan error, 1)
	go func() {
		l, err := p.Acquire(ctx)
		if err == nil {
			l.Release()
		}
		got <- err
	}()
	time.Sleep(10 * time.Millisecond)
	leases[0].Release()
	if err := <-got; err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}

	for _, l := range leases[1:] {
		l.Release()
	}
}

func TestPoolLeasedNeverExceedsCapacity(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 3, MaxOverflow: 2, AcquireTimeout: time.Second})
	defer p.Close()

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&current, -1)
			l.Release()
		}()
	}
	wg.Wait()

	if peak > 5 {
		t.Errorf("peak leased = %d, want <= pool_size+max_overflow = 5", peak)
	}
}

func TestPoolOverflowDiscardedOnRelease(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, MaxOverflow: 1, AcquireTimeout: time.Second})
	defer p.Close()
	ctx := context.Background()

	l1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire overflow: %v", err)
	}
	l1.Release()
	l2.Release()

	if got := d.dialed(); got != 2 {
		t.Errorf("dialed = %d, want 2", got)
	}
	if got := d.closedCount(); got != 1 {
		t.Errorf("closed = %d, want 1 (overflow connection discarded)", got)
	}
	if s := p.Stats(); s.Idle != 1 || s.Leased != 0 {
		t.Errorf("stats after release = %+v, want 1 idle, 0 leased", s)
	}
}

func TestPoolRecycleProbeReplacesDeadConn(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second, RecycleAfter: time.Nanosecond})
	defer p.Close()
	ctx := context.Background()

	l, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := d.conns[0]
	first.mu.Lock()
	first.pingErr = errors.New("connection reset")
	first.mu.Unlock()
	l.Release()

	time.Sleep(time.Millisecond) // exceed RecycleAfter

	l2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after idle: %v", err)
	}
	defer l2.Release()

	if first.pings == 0 {
		t.Error("idle connection past recycle threshold was not probed")
	}
	if !first.closed {
		t.Error("dead connection was not discarded")
	}
	if got := d.dialed(); got != 2 {
		t.Errorf("dialed = %d, want 2 (replacement opened)", got)
	}
	if l2.Conn() == Conn(first) {
		t.Error("dead connection was handed out again")
	}
}

func TestPoolDialFailureIsUnhealthy(t *testing.T) {
	d := &fakeDialer{err: errors.New("dns failure")}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second})
	defer p.Close()

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrConnectionUnhealthy) {
		t.Fatalf("Acquire with failing dialer: want ErrConnectionUnhealthy, got %v", err)
	}
	// The slot must be returned on failure.
	if s := p.Stats(); s.Leased != 0 {
		t.Errorf("leased = %d after failed acquire, want 0", s.Leased)
	}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second})
	defer p.Close()

	err := p.WithTx(context.Background(), func(ctx context.Context, q Querier) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	tx := d.conns[0].lastTx
	if !tx.committed {
		t.Error("transaction not committed on success")
	}
	if tx.rolledBack {
		t.Error("transaction rolled back after commit")
	}
	if s := p.Stats(); s.Leased != 0 {
		t.Errorf("leased = %d after WithTx, want 0", s.Leased)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second})
	defer p.Close()

	boom := errors.New("boom")
	err := p.WithTx(context.Background(), func(ctx context.Context, q Querier) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx: want wrapped fn error, got %v", err)
	}
	tx := d.conns[0].lastTx
	if tx.committed {
		t.Error("transaction committed despite error")
	}
	if !tx.rolledBack {
		t.Error("transaction not rolled back on error")
	}
	if s := p.Stats(); s.Leased != 0 {
		t.Errorf("leased = %d after failed WithTx, want 0 (connection must be released)", s.Leased)
	}
}

func TestPoolReleaseIdempotent(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second})
	defer p.Close()

	l, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l.Release()
	l.Release()
	if s := p.Stats(); s.Leased != 0 || s.Idle != 1 {
		t.Errorf("stats after double release = %+v, want 0 leased, 1 idle", s)
	}
}

func TestPoolCloseRejectsAcquire(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool(d.dial, Options{PoolSize: 1, AcquireTimeout: time.Second})
	l, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l.Release()
	p.Close()

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Acquire after Close: want ErrPoolClosed, got %v", err)
	}
	if got := d.closedCount(); got != 1 {
		t.Errorf("closed = %d after Close, want 1", got)
	}
}
