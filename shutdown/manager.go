// Package shutdown coordinates graceful teardown: SIGINT/SIGTERM
// cancel a shared context, then registered cleanup functions run in
// priority order under a deadline. A second signal forces exit.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/logging"
)

// Func is one cleanup step. It should respect ctx's deadline.
type Func func(ctx context.Context) error

// handler is a registered cleanup step.
type handler struct {
	name     string
	priority int
	order    int // registration order breaks priority ties
	fn       Func
}

// Manager owns the shutdown context and the ordered cleanup registry.
//
// Usage:
//
//	manager := shutdown.NewManager(logger, 30*time.Second)
//	manager.Register("http server", 10, server.Shutdown)
//	manager.Register("database", 30, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//	manager.Wait()
//	manager.Shutdown()
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers []handler
	started  bool
	done     bool

	sigChan chan os.Signal
}

// NewManager creates a manager. timeout bounds the whole cleanup
// sequence.
func NewManager(logger *logging.Logger, timeout time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
	}
}

// Context is cancelled when shutdown begins. Long-running components
// watch it to stop their loops.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step. Lower priority runs first; equal
// priorities run in registration order.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler{
		name:     name,
		priority: priority,
		order:    len(m.handlers),
		fn:       fn,
	})
}

// Start begins listening for SIGINT and SIGTERM. The first signal
// cancels the context; the second exits immediately.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		count := 0
		for sig := range m.sigChan {
			count++
			if count == 1 {
				m.logger.Info("shutdown signal received",
					zap.String("signal", sig.String()))
				m.cancel()
				continue
			}
			m.logger.Warn("second signal received, forcing exit")
			os.Exit(1)
		}
	}()
}

// Trigger initiates shutdown without an OS signal.
func (m *Manager) Trigger() {
	m.cancel()
}

// Wait blocks until shutdown has been initiated.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// Shutdown runs the cleanup steps in order under the configured
// timeout and reports how many failed. Idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	handlers := make([]handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		if handlers[i].priority != handlers[j].priority {
			return handlers[i].priority < handlers[j].priority
		}
		return handlers[i].order < handlers[j].order
	})

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info("shutting down", zap.Int("cleanup_steps", len(handlers)))

	var failures int
	for _, h := range handlers {
		if err := h.fn(ctx); err != nil {
			failures++
			m.logger.Errorw("cleanup step failed",
				zap.String("step", h.name), zap.Error(err))
		}
	}

	signal.Stop(m.sigChan)

	if failures > 0 {
		m.logger.Error("shutdown finished with failures",
			zap.Int("failures", failures),
			zap.Duration("duration", time.Since(start)))
		return fmt.Errorf("shutdown had %d failed cleanup steps", failures)
	}

	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}
