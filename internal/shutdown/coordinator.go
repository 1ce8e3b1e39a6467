// Package shutdown implements graceful-shutdown signal handling: drain
// in-flight tasks, then run cleanup callbacks in registration order
// (spec §4.8).
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Coordinator handles SIGINT/SIGTERM, drains registered in-flight work,
// and runs cleanup callbacks once draining completes. Grounded on
// utils/shutdown.py's GracefulShutdown (done-set drain, ordered cleanup
// callbacks, idempotent re-entry) with asyncio.Event replaced by a
// closed-channel signal and the asyncio.Task done-set replaced by a
// sync.WaitGroup.
type Coordinator struct {
	logger *slog.Logger

	once      sync.Once
	triggered chan struct{}

	wg sync.WaitGroup

	cleanupMu sync.Mutex
	cleanups  []func()
}

// New builds a Coordinator.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, triggered: make(chan struct{})}
}

// ListenForSignals spawns a goroutine that triggers Shutdown on SIGINT or
// SIGTERM.
func (c *Coordinator) ListenForSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		c.logger.Info("shutdown signal received", "signal", sig.String())
		c.Shutdown()
	}()
}

// IsShutdownRequested reports whether shutdown has been triggered; new
// scheduler ticks consult this to become no-ops.
func (c *Coordinator) IsShutdownRequested() bool {
	select {
	case <-c.triggered:
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until shutdown is triggered or ctx is done,
// mirroring utils/shutdown.py's wait_for_shutdown awaitable.
func (c *Coordinator) WaitForShutdown(ctx context.Context) {
	select {
	case <-c.triggered:
	case <-ctx.Done():
	}
}

// BeginTask registers one in-flight unit of work with the drain set and
// returns the function the caller must defer to mark it done.
func (c *Coordinator) BeginTask() func() {
	c.wg.Add(1)
	return c.wg.Done
}

// AddCleanupCallback registers a callback to run, in registration order,
// once the in-flight set has drained.
func (c *Coordinator) AddCleanupCallback(fn func()) {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Shutdown flips the shutdown flag, waits for every registered in-flight
// task to finish (no timeout — escalation is the operator's job via
// container-level kill), then runs cleanup callbacks in order. Re-entry
// is idempotent: a second call observes the first call's effects exactly
// once.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		close(c.triggered)
		c.logger.Info("starting graceful shutdown")

		c.wg.Wait()
		c.logger.Info("in-flight tasks drained")

		c.cleanupMu.Lock()
		cleanups := c.cleanups
		c.cleanupMu.Unlock()

		for _, fn := range cleanups {
			runCleanup(c.logger, fn)
		}
		c.logger.Info("graceful shutdown completed")
	})
}

func runCleanup(logger *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cleanup callback panicked", "panic", r)
		}
	}()
	fn()
}
