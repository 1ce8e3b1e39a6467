package scheduler

import (
	"sync"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

type fakeControlPlane struct {
	mu      sync.Mutex
	pending []domain.Task
	updates []domain.TaskResult

	getPendingErr  error
	updateStatusOK bool
	updateStatusErr error
}

func newFakeControlPlane(tasks ...domain.Task) *fakeControlPlane {
	return &fakeControlPlane{pending: tasks, updateStatusOK: true}
}

func (f *fakeControlPlane) GetPending(ctx domain.Context, limit int) ([]domain.Task, error) {
	if f.getPendingErr != nil {
		return nil, f.getPendingErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < len(f.pending) {
		return append([]domain.Task{}, f.pending[:limit]...), nil
	}
	return append([]domain.Task{}, f.pending...), nil
}

func (f *fakeControlPlane) UpdateStatus(ctx domain.Context, result domain.TaskResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, result)
	if f.updateStatusErr != nil {
		return false, f.updateStatusErr
	}
	return f.updateStatusOK, nil
}

func (f *fakeControlPlane) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeLimiter struct {
	mu sync.Mutex

	allowed     bool
	deniedTier  domain.RateLimitPeriod
	checkCalls  []int
	recordCalls []recordCall
}

type recordCall struct {
	n    int
	kind domain.TaskKind
	ids  []string
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{allowed: true}
}

func (f *fakeLimiter) Check(ctx domain.Context, n int) (domain.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls = append(f.checkCalls, n)
	if !f.allowed {
		return domain.Decision{Allowed: false, Tier: f.deniedTier}, nil
	}
	return domain.Decision{Allowed: true}, nil
}

func (f *fakeLimiter) Record(ctx domain.Context, n int, kind domain.TaskKind, taskIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCalls = append(f.recordCalls, recordCall{n: n, kind: kind, ids: taskIDs})
	return nil
}

func (f *fakeLimiter) Usage(ctx domain.Context) (map[domain.RateLimitPeriod]domain.TierUsage, error) {
	return map[domain.RateLimitPeriod]domain.TierUsage{}, nil
}

func (f *fakeLimiter) Prune(ctx domain.Context) (int64, error) { return 0, nil }

func (f *fakeLimiter) totalRecorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.recordCalls {
		total += c.n
	}
	return total
}

type fakeDispatcher struct {
	mu      sync.Mutex
	results map[string]domain.TaskResult
	calls   []string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{results: map[string]domain.TaskResult{}}
}

func (f *fakeDispatcher) Dispatch(ctx domain.Context, task domain.Task) domain.TaskResult {
	f.mu.Lock()
	f.calls = append(f.calls, task.ID)
	f.mu.Unlock()
	if r, ok := f.results[task.ID]; ok {
		return r
	}
	return domain.Succeeded(task.ID, nil)
}
