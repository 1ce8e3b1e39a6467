// Package scheduler drives the periodic poll-fetch-dispatch loop: a
// ticker fires ticks, each tick admits through the rate limiter, fetches
// a batch of pending tasks, and dispatches them through a bounded
// semaphore. Grounded on scheduler.py's TaskScheduler (_poll_and_process_
// tasks / _process_single_task), with APScheduler's IntervalTrigger
// replaced by a time.Ticker and the asyncio.Semaphore replaced by a
// buffered channel.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
	"github.com/aletheiafact/ai-task-worker/internal/shutdown"
)

// fetchMultiplier is the over-fetch factor applied to concurrency_limit
// when pulling pending tasks (spec §4.7 step 3).
const fetchMultiplier = 2

// Scheduler is the periodic poll-fetch-dispatch driver.
type Scheduler struct {
	pollInterval time.Duration
	concurrency  int

	controlPlane domain.ControlPlaneClient
	limiter      domain.RateLimiter
	registry     Dispatcher
	shutdown     *shutdown.Coordinator
	metrics      *observability.Metrics
	logger       *slog.Logger

	ticking int32 // guards against overlapping ticks (max_instances=1/coalesce)

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// Dispatcher is the subset of processor.Registry the scheduler depends
// on, kept as an interface so tests can substitute a fake.
type Dispatcher interface {
	Dispatch(ctx domain.Context, task domain.Task) domain.TaskResult
}

// New builds a Scheduler.
func New(cfg config.Config, controlPlane domain.ControlPlaneClient, limiter domain.RateLimiter, registry Dispatcher, coordinator *shutdown.Coordinator, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pollInterval: cfg.PollingIntervalSeconds,
		concurrency:  cfg.ConcurrencyLimit,
		controlPlane: controlPlane,
		limiter:      limiter,
		registry:     registry,
		shutdown:     coordinator,
		metrics:      metrics,
		logger:       logger,
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Run starts the ticker loop and blocks until Stop is called or ctx is
// done. Intended to run on its own goroutine from cmd/worker.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("task scheduler started", "polling_interval", s.pollInterval, "concurrency_limit", s.concurrency)
	defer close(s.stopped)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the ticker loop. Registered as a shutdown cleanup callback
// so it runs before the observability server stops.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.stopped
		s.logger.Info("task scheduler stopped")
	})
}

// tick runs one poll-fetch-dispatch cycle, serialized against any tick
// still in flight (the Go equivalent of max_instances=1 with coalesce:
// an overlapping tick is simply skipped rather than queued).
func (s *Scheduler) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.ticking, 0, 1) {
		s.logger.Debug("previous tick still in flight, skipping")
		return
	}
	defer atomic.StoreInt32(&s.ticking, 0)

	if s.shutdown.IsShutdownRequested() {
		s.logger.Info("shutdown requested, skipping task polling")
		return
	}

	decision, err := s.limiter.Check(ctx, s.concurrency)
	if err != nil {
		s.logger.Error("rate limit pre-check failed", "error", err)
		return
	}
	available := availableBudget(decision, s.concurrency)
	if available <= 0 {
		s.logger.Warn("rate limit exceeded, skipping task processing", "period_exceeded", decision.Tier)
		return
	}

	tasks, err := s.controlPlane.GetPending(ctx, s.concurrency*fetchMultiplier)
	if err != nil {
		s.logger.Error("error in task polling cycle", "error", err)
		return
	}
	if len(tasks) == 0 {
		s.logger.Debug("no pending tasks found")
		return
	}

	batchSize := len(tasks)
	if batchSize > available {
		batchSize = available
	}
	batch := tasks[:batchSize]

	decision, err = s.limiter.Check(ctx, batchSize)
	if err != nil {
		s.logger.Error("rate limit re-check failed", "error", err)
		return
	}
	if !decision.Allowed {
		s.logger.Warn("rate limit exceeded for actual batch, skipping task processing", "batch_size", batchSize, "period_exceeded", decision.Tier)
		return
	}

	s.logger.Info("found pending tasks", "task_count", len(tasks), "processing_batch", batchSize)
	s.dispatchBatch(ctx, batch)
}

// availableBudget derives how many tasks can be admitted this tick: the
// smallest remaining headroom across every tier reported in decision's
// usage snapshot, capped at ceiling (concurrency_limit). A tier that
// reports no usage (disabled, or the limiter itself disabled) imposes no
// cap. This lets one tick admit a partial batch when only some of
// concurrency_limit's headroom remains, rather than treating any
// over-capacity precheck as an all-or-nothing skip.
func availableBudget(decision domain.Decision, ceiling int) int {
	available := ceiling
	for _, usage := range decision.Usage {
		if remaining := int(usage.Remaining); remaining < available {
			available = remaining
		}
	}
	return available
}

// dispatchBatch launches each task in batch through the concurrency
// semaphore and credits the rate limiter with the count of successful
// completions once every launched worker returns.
func (s *Scheduler) dispatchBatch(ctx context.Context, batch []domain.Task) {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	succeededByKind := map[domain.TaskKind][]string{}

	for _, task := range batch {
		if s.shutdown.IsShutdownRequested() {
			break
		}

		done := s.shutdown.BeginTask()
		sem <- struct{}{}
		wg.Add(1)

		go func(task domain.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			defer done()

			if s.processTask(ctx, task) {
				mu.Lock()
				succeededByKind[task.Kind] = append(succeededByKind[task.Kind], task.ID)
				mu.Unlock()
			}
		}(task)
	}

	wg.Wait()

	total := 0
	for kind, ids := range succeededByKind {
		if err := s.limiter.Record(ctx, len(ids), kind, ids); err != nil {
			s.logger.Error("failed to record completed tasks against rate limiter", "error", err, "kind", kind, "count", len(ids))
			continue
		}
		total += len(ids)
	}
	if total > 0 {
		s.logger.Debug("credited rate limiter with successful completions", "count", total)
	}
}

// processTask runs one task end to end: dispatch -> post status. It
// reports true only when the task's outcome was TaskSucceeded, matching
// the "failures do not consume budget" invariant.
func (s *Scheduler) processTask(ctx context.Context, task domain.Task) bool {
	if s.shutdown.IsShutdownRequested() {
		s.logger.Info("shutdown requested, skipping task processing", "task_id", task.ID)
		return false
	}

	if s.metrics != nil {
		s.metrics.TasksInFlight.Inc()
		defer s.metrics.TasksInFlight.Dec()
	}

	start := time.Now()
	result := s.registry.Dispatch(ctx, task)
	if s.metrics != nil {
		s.metrics.TaskProcessingTime.WithLabelValues(string(task.Kind)).Observe(time.Since(start).Seconds())
		s.metrics.TasksProcessed.WithLabelValues(string(task.Kind), string(result.Status)).Inc()
	}

	ok, err := s.controlPlane.UpdateStatus(ctx, result)
	if err != nil {
		s.logger.Error("failed to update task status in API", "task_id", task.ID, "error", err)
		return false
	}
	if !ok {
		s.logger.Error("failed to update task status in API", "task_id", task.ID)
		return false
	}

	return result.Status == domain.TaskSucceeded
}
