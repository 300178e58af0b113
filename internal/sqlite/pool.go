// Package sqlite implements the embedded persistence engine: a dialect
// query translator, a single-writer connection pool, and a table-oriented
// repository built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/internal/paths"
	"github.com/notedeck/notedeck/pkg/types"

	_ "modernc.org/sqlite"
)

const (
	defaultWriteTimeout = 30 * time.Second
	defaultMaxReaders   = 8
	writeQueueDepth     = 64

	writerBusyTimeoutMS = 5000
	readerBusyTimeoutMS = 30000
)

// writerDSN configures the single writable connection: WAL journaling,
// normal synchronous durability, foreign keys on, 5s busy timeout.
func writerDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, writerBusyTimeoutMS)
}

// readerDSN configures read connections: same journaling mode as the writer,
// a longer busy timeout so reads never stall indefinitely behind a writer,
// and query_only so a stray statement cannot write outside the queue.
func readerDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=query_only(1)", path, readerBusyTimeoutMS)
}

// WriteFunc is one unit of work executed on the writer connection by the
// write loop. It must not retain db past its return.
type WriteFunc func(db *sql.DB) (sql.Result, error)

type writeResult struct {
	res sql.Result
	err error
}

type writeRequest struct {
	fn    WriteFunc
	reply chan writeResult
}

// writeQueue is one generation of the write queue. Rebind and Close retire
// the current generation; ch is closed only after every registered sender
// has finished, so a parked sender can never hit a closed channel.
type writeQueue struct {
	ch   chan writeRequest
	stop chan struct{} // closed to kick parked senders off the send
	done chan struct{} // closed when the loop has drained ch and exited

	// senders counts callers between registration and the end of their
	// send attempt.
	senders sync.WaitGroup
}

// retire stops intake on q: parked senders are released via stop, and once
// all of them have finished ch is closed so the loop drains and exits.
func (q *writeQueue) retire() {
	close(q.stop)
	q.senders.Wait()
	close(q.ch)
}

// Pool owns the only writable connection to one database file and funnels
// every write through a FIFO queue served by a single goroutine, while reads
// run concurrently on short-lived read-only connections. Initialization is
// lazy: the first read or write opens the connections and applies the
// persisted schema.
type Pool struct {
	path         string
	logger       *zap.Logger
	writeTimeout time.Duration
	maxReaders   int
	schema       []string

	mu          sync.Mutex
	writer      *sql.DB
	readers     *sql.DB
	queue       *writeQueue
	initialized bool
	closed      bool
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithLogger sets the pool's logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// WithWriteTimeout bounds how long a caller waits for a queued write. The
// timeout does not cancel the write itself.
func WithWriteTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

// WithMaxReaders caps concurrent read connections.
func WithMaxReaders(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxReaders = n
		}
	}
}

// WithSchema replaces the DDL statements applied at initialization.
func WithSchema(ddl []string) PoolOption {
	return func(p *Pool) { p.schema = ddl }
}

// NewPool returns an uninitialized pool for the database at path.
func NewPool(path string, opts ...PoolOption) *Pool {
	p := &Pool{
		path:         path,
		logger:       zap.NewNop(),
		writeTimeout: defaultWriteTimeout,
		maxReaders:   defaultMaxReaders,
		schema:       SchemaDDL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// initLocked opens the writer and reader handles, applies the persisted
// schema, and starts the write loop. Caller holds p.mu.
func (p *Pool) initLocked() error {
	if err := paths.EnsureParentDir(p.path); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	writer, err := sql.Open("sqlite", writerDSN(p.path))
	if err != nil {
		return fmt.Errorf("opening writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	for _, ddl := range p.schema {
		if _, err := writer.Exec(ddl); err != nil {
			writer.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	readers, err := sql.Open("sqlite", readerDSN(p.path))
	if err != nil {
		writer.Close()
		return fmt.Errorf("opening reader connections: %w", err)
	}
	readers.SetMaxOpenConns(p.maxReaders)
	// Reads get a freshly opened connection, closed after use.
	readers.SetMaxIdleConns(0)

	p.writer = writer
	p.readers = readers
	p.startLoopLocked()
	p.initialized = true
	p.logger.Info("connection pool initialized",
		zap.String("path", p.path),
		zap.Int("max_readers", p.maxReaders))
	return nil
}

func (p *Pool) startLoopLocked() {
	p.queue = &writeQueue{
		ch:   make(chan writeRequest, writeQueueDepth),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.processWrites(p.queue, p.writer)
}

// processWrites serves the write queue one unit at a time until the queue
// generation is retired. It is the only code path allowed to touch the
// writer connection.
func (p *Pool) processWrites(q *writeQueue, writer *sql.DB) {
	defer close(q.done)
	for req := range q.ch {
		res, err := runWrite(writer, req.fn)
		req.reply <- writeResult{res, err}
	}
}

// runWrite executes one unit, converting a panic into an error so a bad
// unit cannot kill the loop.
func runWrite(db *sql.DB, fn WriteFunc) (res sql.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write unit panicked: %v", r)
		}
	}()
	return fn(db)
}

// acquireQueue lazily initializes the pool, restarts the write loop if it
// has terminated unexpectedly, and registers the caller as a sender on the
// current queue generation. Every returned queue requires exactly one send
// attempt to balance the sender registration.
func (p *Pool) acquireQueue() (*writeQueue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, types.ErrPoolClosed
	}
	if !p.initialized {
		if err := p.initLocked(); err != nil {
			return nil, err
		}
	} else {
		select {
		case <-p.queue.done:
			p.logger.Warn("write loop not running, restarting", zap.String("path", p.path))
			p.startLoopLocked()
		default:
		}
	}
	q := p.queue
	q.senders.Add(1)
	return q, nil
}

// send attempts one enqueue onto q and releases the sender registration.
// sent=false with a nil error means the generation was retired mid-send;
// the caller retries on the replacement queue.
func (p *Pool) send(ctx context.Context, q *writeQueue, req writeRequest, timer *time.Timer) (bool, error) {
	defer q.senders.Done()
	select {
	case q.ch <- req:
		return true, nil
	case <-q.stop:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		p.logger.Error("write enqueue timed out", zap.Duration("timeout", p.writeTimeout))
		return false, types.ErrWriteTimeout
	}
}

// Write enqueues fn onto the write queue and waits for its result. The wait
// is bounded by the pool's write timeout; on timeout the unit may still
// execute in the background, and the caller gets ErrWriteTimeout.
func (p *Pool) Write(ctx context.Context, fn WriteFunc) (sql.Result, error) {
	// Buffered so the loop never blocks replying to a caller that gave up.
	req := writeRequest{fn: fn, reply: make(chan writeResult, 1)}
	timer := time.NewTimer(p.writeTimeout)
	defer timer.Stop()

	for {
		q, err := p.acquireQueue()
		if err != nil {
			return nil, err
		}
		sent, err := p.send(ctx, q, req, timer)
		if err != nil {
			return nil, err
		}
		if sent {
			break
		}
		// Generation retired while parked on the send: Rebind hands the
		// write to the replacement queue, Close surfaces ErrPoolClosed on
		// the next acquire.
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.logger.Error("write operation timed out", zap.Duration("timeout", p.writeTimeout))
		return nil, types.ErrWriteTimeout
	}
}

// ExecWrite runs a single statement through the write queue. The statement
// is not bound to ctx: once enqueued it runs to completion, the context
// bounds only the caller's wait.
func (p *Pool) ExecWrite(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.Write(ctx, func(db *sql.DB) (sql.Result, error) {
		return db.Exec(query, args...)
	})
}

// Reader returns the read-only handle. Connections are opened per read and
// closed when the caller's rows are drained.
func (p *Pool) Reader() (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, types.ErrPoolClosed
	}
	if !p.initialized {
		if err := p.initLocked(); err != nil {
			return nil, err
		}
	}
	return p.readers, nil
}

// Rebind restarts the write loop. Hosting runtimes call it after recycling
// their concurrency runtime instead of relying on the pool to infer a stale
// scheduling context. Queued writes are drained by the outgoing loop; both
// loops serialize on the single writer connection.
func (p *Pool) Rebind() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return types.ErrPoolClosed
	}
	if !p.initialized {
		defer p.mu.Unlock()
		return p.initLocked()
	}
	old := p.queue
	p.startLoopLocked()
	p.mu.Unlock()

	// Retire outside the lock: retire waits for parked senders, and those
	// senders re-acquire the mutex to move onto the replacement queue.
	old.retire()
	p.logger.Info("write loop rebound", zap.String("path", p.path))
	return nil
}

// Close drains the write queue, checkpoints the WAL into the main database
// file, and closes all connections. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	initialized := p.initialized
	q := p.queue
	writer, readers := p.writer, p.readers
	p.mu.Unlock()

	if !initialized {
		return nil
	}

	q.retire()
	<-q.done

	if _, err := writer.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		p.logger.Warn("WAL checkpoint on close failed", zap.Error(err))
	}

	rerr := readers.Close()
	werr := writer.Close()
	p.logger.Info("connection pool closed", zap.String("path", p.path))
	if werr != nil {
		return fmt.Errorf("closing writer: %w", werr)
	}
	if rerr != nil {
		return fmt.Errorf("closing readers: %w", rerr)
	}
	return nil
}

// PoolManager keys pools by database path. Its lifecycle belongs to the
// process entry point, which passes it to collaborators explicitly; there is
// no package-level registry.
type PoolManager struct {
	mu    sync.Mutex
	pools map[string]*Pool
	opts  []PoolOption
}

// NewPoolManager returns an empty manager. opts apply to every pool it
// creates.
func NewPoolManager(opts ...PoolOption) *PoolManager {
	return &PoolManager{pools: map[string]*Pool{}, opts: opts}
}

// Get returns the pool for path, creating it on first request. The pool
// itself initializes lazily on first use. opts extend the manager's options
// and apply only when the pool is created here.
func (m *PoolManager) Get(path string, opts ...PoolOption) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[path]; ok {
		return p
	}
	p := NewPool(path, append(append([]PoolOption{}, m.opts...), opts...)...)
	m.pools[path] = p
	return p
}

// CloseAll closes every managed pool and forgets them. The first error is
// returned; remaining pools are still closed.
func (m *PoolManager) CloseAll() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = map[string]*Pool{}
	m.mu.Unlock()

	var first error
	for _, p := range pools {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
