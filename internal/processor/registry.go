// Package processor implements the kind -> processor dispatch table and
// the five job-kind pipelines (text-embedding, identifying-data,
// defining-topics, defining-impact-area, defining-severity).
package processor

import (
	"fmt"
	"log/slog"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// Registry holds one domain.Processor per task kind, constructed once at
// startup.
type Registry struct {
	processors []domain.Processor
	logger     *slog.Logger
}

// New builds a Registry over the given processors, tried in order.
func New(logger *slog.Logger, processors ...domain.Processor) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{processors: processors, logger: logger}
}

// Dispatch finds the processor that claims task.Kind and runs it through
// the execute_with_error_handling boundary: a defer/recover converts any
// panic into a failed TaskResult rather than crashing the scheduler tick.
func (r *Registry) Dispatch(ctx domain.Context, task domain.Task) domain.TaskResult {
	for _, p := range r.processors {
		if p.CanProcess(task) {
			return r.executeWithErrorHandling(ctx, p, task)
		}
	}
	return domain.Failed(task.ID, fmt.Sprintf("no processor registered for kind %q", task.Kind))
}

func (r *Registry) executeWithErrorHandling(ctx domain.Context, p domain.Processor, task domain.Task) (result domain.TaskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "processor panicked", "task_id", task.ID, "kind", task.Kind, "panic", rec)
			result = domain.Failed(task.ID, fmt.Sprintf("processor panic: %v", rec))
		}
	}()

	r.logger.InfoContext(ctx, "starting task processing", "task_id", task.ID, "kind", task.Kind)
	result = p.Process(ctx, task)
	r.logger.InfoContext(ctx, "task processing completed", "task_id", task.ID, "status", result.Status)
	return result
}
