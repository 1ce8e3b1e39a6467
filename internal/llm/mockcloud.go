package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

const mockEmbeddingDimensions = 1024

// mockCloud is the explicit mock provider variant (spec §9): selected at
// startup when the configured key is absent or the documented placeholder,
// rather than branching inside every cloud method. Outputs are
// deterministic in shape (fixed dimension, canned completion) but the
// embedding values themselves are pseudo-random, matching the reference
// provider's development-mode behavior.
type mockCloud struct {
	logger *slog.Logger
}

func newMockCloud(logger *slog.Logger) *mockCloud {
	return &mockCloud{logger: logger}
}

func (g *mockCloud) SupportsModel(string) bool { return true }

func (g *mockCloud) CreateEmbedding(_ context.Context, model, text string) (domain.EmbeddingResult, error) {
	if g.logger != nil {
		g.logger.Info("using mock cloud embedding (no API key configured)", "model", model)
	}
	embedding := make([]float32, mockEmbeddingDimensions)
	for i := range embedding {
		embedding[i] = float32(rand.Float64()*2 - 1)
	}
	tokens := len(strings.Fields(text))
	return domain.EmbeddingResult{
		Embedding: embedding,
		Model:     model,
		Usage:     domain.Usage{PromptTokens: tokens, TotalTokens: tokens},
	}, nil
}

func (g *mockCloud) ChatCompletion(_ context.Context, model string, messages []domain.ChatMessage, _ int) (domain.ChatResult, error) {
	if g.logger != nil {
		g.logger.Info("using mock cloud chat completion (no API key configured)", "model", model)
	}
	var promptTokens int
	for _, m := range messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	const completionTokens = 10
	return domain.ChatResult{
		Content: "Mock response: This is a simulated AI response for testing purposes.",
		Model:   model,
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func (g *mockCloud) Generate(ctx context.Context, model, prompt string, maxTokens int) (domain.ChatResult, error) {
	return g.ChatCompletion(ctx, model, []domain.ChatMessage{{Role: "user", Content: prompt}}, maxTokens)
}
