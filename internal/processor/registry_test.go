package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

type fakeProcessor struct {
	kind   domain.TaskKind
	result domain.TaskResult
	panics bool
}

func (p *fakeProcessor) CanProcess(task domain.Task) bool { return task.Kind == p.kind }

func (p *fakeProcessor) Process(_ domain.Context, task domain.Task) domain.TaskResult {
	if p.panics {
		panic("boom")
	}
	return p.result
}

func TestRegistry_Dispatch_RoutesToMatchingProcessor(t *testing.T) {
	want := domain.Succeeded("t1", "ok")
	registry := New(nil, &fakeProcessor{kind: domain.KindTextEmbedding, result: want})

	got := registry.Dispatch(context.Background(), domain.Task{ID: "t1", Kind: domain.KindTextEmbedding})

	assert.Equal(t, want, got)
}

func TestRegistry_Dispatch_NoMatchingProcessorFails(t *testing.T) {
	registry := New(nil, &fakeProcessor{kind: domain.KindTextEmbedding})

	got := registry.Dispatch(context.Background(), domain.Task{ID: "t1", Kind: domain.KindDefiningTopics})

	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "no processor registered")
}

func TestRegistry_Dispatch_RecoversFromPanic(t *testing.T) {
	registry := New(nil, &fakeProcessor{kind: domain.KindTextEmbedding, panics: true})

	got := registry.Dispatch(context.Background(), domain.Task{ID: "t1", Kind: domain.KindTextEmbedding})

	assert.Equal(t, domain.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "processor panic")
	assert.Contains(t, got.Error, "boom")
}

func TestRegistry_Dispatch_TriesProcessorsInOrder(t *testing.T) {
	first := &fakeProcessor{kind: domain.KindTextEmbedding, result: domain.Succeeded("t1", "first")}
	second := &fakeProcessor{kind: domain.KindTextEmbedding, result: domain.Succeeded("t1", "second")}
	registry := New(nil, first, second)

	got := registry.Dispatch(context.Background(), domain.Task{ID: "t1", Kind: domain.KindTextEmbedding})

	assert.Equal(t, domain.Succeeded("t1", "first"), got)
}
