package db

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/logging"
)

// DefaultWriteQueueSize is the default buffer for pending async writes.
const DefaultWriteQueueSize = 256

// execOp is one queued SQL write, or a flush marker when done is set.
type execOp struct {
	query    string
	args     []interface{}
	queuedAt time.Time
	done     chan struct{}
}

// AsyncWriter applies SQL writes from a buffered channel on a single
// background goroutine. Event ingestion runs at keystroke frequency,
// so the hot path only pays for a channel send; the disk write happens
// behind it. Failed writes are logged and dropped, which is acceptable
// for telemetry but not for anything transactional.
type AsyncWriter struct {
	conn   *sql.DB
	ops    chan execOp
	logger *logging.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewAsyncWriter creates a writer over the database with the default
// queue size. Call Start before handing it to stores.
func NewAsyncWriter(database *Database, logger *logging.Logger) *AsyncWriter {
	return NewAsyncWriterWithCapacity(database, logger, DefaultWriteQueueSize)
}

// NewAsyncWriterWithCapacity creates a writer with a custom queue size.
func NewAsyncWriterWithCapacity(database *Database, logger *logging.Logger, capacity int) *AsyncWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter{
		conn:   database.Conn(),
		ops:    make(chan execOp, capacity),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the background goroutine. Calling Start twice is a
// no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	w.wg.Add(1)
	go w.run()
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case op := <-w.ops:
			w.apply(op)
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (w *AsyncWriter) drain() {
	for {
		select {
		case op := <-w.ops:
			w.apply(op)
		default:
			return
		}
	}
}

func (w *AsyncWriter) apply(op execOp) {
	if op.done != nil {
		close(op.done)
		return
	}
	if _, err := w.conn.Exec(op.query, op.args...); err != nil {
		w.logger.Errorw("async write failed",
			zap.Error(err),
			zap.Duration("queued_for", time.Since(op.queuedAt)))
	}
}

// enqueue queues a write. Returns false when the writer is not started
// or the buffer is full; callers fall back to a synchronous write.
func (w *AsyncWriter) enqueue(query string, args []interface{}) bool {
	if !w.IsStarted() {
		return false
	}

	select {
	case w.ops <- execOp{query: query, args: args, queuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

// Flush blocks until every write queued before the call has been
// applied. Readers that need to see their own writes call this before
// querying. Returns immediately when the writer is not running; during
// shutdown the Stop drain applies the remaining writes instead.
func (w *AsyncWriter) Flush() {
	if !w.IsStarted() {
		return
	}

	done := make(chan struct{})
	select {
	case w.ops <- execOp{done: done}:
	case <-w.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-w.ctx.Done():
	}
}

// Pending returns the number of writes waiting in the buffer.
func (w *AsyncWriter) Pending() int {
	return len(w.ops)
}

// IsStarted reports whether the background goroutine is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Stop drains pending writes and waits for the goroutine to exit.
func (w *AsyncWriter) Stop() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
}

// StopWithTimeout stops the writer, giving the drain at most timeout.
// Returns false if the drain did not finish in time.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return true
	case <-time.After(timeout):
		return false
	}
}
