// Package queue serializes inference calls under the rate limiter's
// admission policy, adding priority ordering, bounded depth, and
// exponential-backoff retry for throttling errors.
//
// Decoupling admission (ratelimit) from serialization and retry (this
// package) lets priority and backoff logic evolve independently of the
// numeric throttling math.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sagars2004/Flowstate/ratelimit"
)

// ErrQueueFull is returned by Enqueue when the queue already holds
// MaxQueueSize pending requests. It protects against unbounded memory
// growth when the external API is persistently unavailable.
var ErrQueueFull = errors.New("request queue full")

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("request queue closed")

// ExecuteFunc is the execution closure for a queued request.
type ExecuteFunc func(ctx context.Context) (string, error)

// Result is the terminal outcome of a queued request, delivered once
// on the channel returned by Enqueue.
type Result struct {
	// Value is the response text on success
	Value string
	// Err is the terminal error on failure (throttling errors only
	// after retries are exhausted)
	Err error
}

// Options configure a single enqueued request.
type Options struct {
	// Priority orders execution; higher runs first, FIFO within a tier
	Priority int
	// MaxRetries bounds automatic retries of throttling errors
	MaxRetries int
}

// Config holds queue-wide configuration.
type Config struct {
	// MaxQueueSize bounds pending depth; Enqueue beyond it fails fast
	MaxQueueSize int

	// RetryDelay is the base backoff; attempt n waits RetryDelay*2^(n-1)
	RetryDelay time.Duration

	// DefaultTokenEstimate is the token cost presented to the limiter
	// per request
	DefaultTokenEstimate int

	// PollInterval is how long the drain loop sleeps after an
	// admission denial before retrying the head item
	PollInterval time.Duration

	// IsThrottle classifies errors that warrant automatic retry.
	// Non-throttling errors are surfaced immediately.
	IsThrottle func(error) bool
}

// DefaultConfig returns the standard queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:         50,
		RetryDelay:           time.Second,
		DefaultTokenEstimate: 500,
		PollInterval:         2 * time.Second,
		IsThrottle:           func(error) bool { return false },
	}
}

// request is one pending call and its result handle.
type request struct {
	fn         ExecuteFunc
	priority   int
	enqueuedAt time.Time
	retries    int
	maxRetries int
	result     chan Result
}

// Queue is an in-memory priority queue with a single drain loop.
// The pending list is exclusively owned by the queue; external code
// interacts only through Enqueue. At most one drain goroutine runs at
// a time; re-entrant Enqueue calls while a drain is active never spawn
// a second one.
type Queue struct {
	mu       sync.Mutex
	items    []*request
	draining bool
	closed   bool

	limiter *ratelimit.Limiter
	config  Config

	done chan struct{}
}

// New creates a Queue serializing calls through the given limiter.
func New(limiter *ratelimit.Limiter, config Config) *Queue {
	if config.IsThrottle == nil {
		config.IsThrottle = func(error) bool { return false }
	}
	return &Queue{
		limiter: limiter,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Enqueue inserts a request in priority order and starts the drain
// loop if it is idle. It fails immediately with ErrQueueFull when the
// queue is at capacity; the closure is never executed in that case.
//
// The returned channel receives exactly one Result on terminal
// resolution: success, a non-throttling error, or a throttling error
// with retries exhausted.
func (q *Queue) Enqueue(fn ExecuteFunc, opts Options) (<-chan Result, error) {
	req := &request{
		fn:         fn,
		priority:   opts.Priority,
		enqueuedAt: time.Now(),
		maxRetries: opts.MaxRetries,
		result:     make(chan Result, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	if len(q.items) >= q.config.MaxQueueSize {
		q.mu.Unlock()
		return nil, ErrQueueFull
	}
	q.insertLocked(req)
	q.mu.Unlock()

	q.kick()
	return req.result, nil
}

// Do is the blocking convenience wrapper around Enqueue. It waits for
// the terminal result or context cancellation (the request itself is
// not cancelled; its eventual result is discarded).
func (q *Queue) Do(ctx context.Context, fn ExecuteFunc, opts Options) (string, error) {
	resultCh, err := q.Enqueue(fn, opts)
	if err != nil {
		return "", err
	}
	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Size returns the number of pending requests.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the drain loop and rejects all pending requests with
// ErrQueueClosed. Enqueue after Close fails with the same error.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	close(q.done)
	for _, req := range pending {
		req.result <- Result{Err: ErrQueueClosed}
	}
}

// insertLocked places req at the first position held by a strictly
// lower priority, keeping FIFO order within a priority tier.
func (q *Queue) insertLocked(req *request) {
	idx := len(q.items)
	for i, existing := range q.items {
		if existing.priority < req.priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = req
}

// kick starts the drain loop unless one is already running.
func (q *Queue) kick() {
	q.mu.Lock()
	if q.draining || q.closed || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	go q.drain()
}

// drain processes the queue head-first until empty. Admission denials
// sleep PollInterval and re-check the same head; priority order is
// preserved deliberately, head-of-line blocking included.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed {
			q.draining = false
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}

		if !q.limiter.Acquire(q.config.DefaultTokenEstimate) {
			q.mu.Unlock()
			select {
			case <-time.After(q.config.PollInterval):
				continue
			case <-q.done:
				return
			}
		}

		req := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.execute(req)
	}
}

// execute runs one request and resolves or schedules a retry.
func (q *Queue) execute(req *request) {
	value, err := req.fn(context.Background())
	if err == nil {
		req.result <- Result{Value: value}
		return
	}

	if q.config.IsThrottle(err) && req.retries < req.maxRetries {
		req.retries++
		// Re-insert at the front after the backoff elapses. The drain
		// loop keeps serving other items in the meantime.
		backoff := q.config.RetryDelay * (1 << (req.retries - 1))
		time.AfterFunc(backoff, func() {
			q.requeueFront(req)
		})
		return
	}

	req.result <- Result{Err: err}
}

// requeueFront reinstates a retried request at the head of the queue
// so it is the next item considered.
func (q *Queue) requeueFront(req *request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		req.result <- Result{Err: ErrQueueClosed}
		return
	}
	q.items = append([]*request{req}, q.items...)
	q.mu.Unlock()

	q.kick()
}
