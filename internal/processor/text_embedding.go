package processor

import (
	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// TextEmbeddingOutput is the output shape for a text-embedding task.
type TextEmbeddingOutput struct {
	Embedding []float32    `json:"embedding"`
	Model     string       `json:"model"`
	Usage     domain.Usage `json:"usage"`
}

// TextEmbedding calls the gateway's create_embedding and returns the
// resulting vector, model, and token usage (spec §4.5).
type TextEmbedding struct {
	gateway domain.LLMGateway
}

// NewTextEmbedding builds a TextEmbedding processor.
func NewTextEmbedding(gateway domain.LLMGateway) *TextEmbedding {
	return &TextEmbedding{gateway: gateway}
}

func (p *TextEmbedding) CanProcess(task domain.Task) bool {
	return task.Kind == domain.KindTextEmbedding
}

func (p *TextEmbedding) Process(ctx domain.Context, task domain.Task) domain.TaskResult {
	content, err := decodeAndValidate(task, p.gateway)
	if err != nil {
		return domain.Failed(task.ID, err.Error())
	}

	result, err := p.gateway.CreateEmbedding(ctx, content.Model, content.Text)
	if err != nil {
		return failureFromGatewayError(task.ID, "text embedding", err)
	}

	return domain.Succeeded(task.ID, TextEmbeddingOutput{
		Embedding: result.Embedding,
		Model:     result.Model,
		Usage:     result.Usage,
	})
}
