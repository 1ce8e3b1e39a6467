package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// hybridGateway tries local first when it claims support for the requested
// model, falling back to cloud on any failure (spec §4.4). If only cloud
// supports the model, it is used directly; if neither does, the call fails
// fatally with domain.ErrModelUnsupported.
type hybridGateway struct {
	local  domain.LLMGateway
	cloud  domain.LLMGateway
	logger *slog.Logger
}

func (g *hybridGateway) SupportsModel(model string) bool {
	return g.local.SupportsModel(model) || g.cloud.SupportsModel(model)
}

func (g *hybridGateway) CreateEmbedding(ctx context.Context, model, text string) (domain.EmbeddingResult, error) {
	if !g.local.SupportsModel(model) && !g.cloud.SupportsModel(model) {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %q", domain.ErrModelUnsupported, model)
	}
	if g.local.SupportsModel(model) {
		result, err := g.local.CreateEmbedding(ctx, model, text)
		if err == nil {
			return result, nil
		}
		g.warnFallback("create_embedding", model, err)
	}
	return g.cloud.CreateEmbedding(ctx, model, text)
}

func (g *hybridGateway) ChatCompletion(ctx context.Context, model string, messages []domain.ChatMessage, maxTokens int) (domain.ChatResult, error) {
	if !g.local.SupportsModel(model) && !g.cloud.SupportsModel(model) {
		return domain.ChatResult{}, fmt.Errorf("%w: %q", domain.ErrModelUnsupported, model)
	}
	if g.local.SupportsModel(model) {
		result, err := g.local.ChatCompletion(ctx, model, messages, maxTokens)
		if err == nil {
			return result, nil
		}
		g.warnFallback("chat_completion", model, err)
	}
	return g.cloud.ChatCompletion(ctx, model, messages, maxTokens)
}

func (g *hybridGateway) Generate(ctx context.Context, model, prompt string, maxTokens int) (domain.ChatResult, error) {
	if !g.local.SupportsModel(model) && !g.cloud.SupportsModel(model) {
		return domain.ChatResult{}, fmt.Errorf("%w: %q", domain.ErrModelUnsupported, model)
	}
	if g.local.SupportsModel(model) {
		result, err := g.local.Generate(ctx, model, prompt, maxTokens)
		if err == nil {
			return result, nil
		}
		g.warnFallback("generate", model, err)
	}
	return g.cloud.Generate(ctx, model, prompt, maxTokens)
}

func (g *hybridGateway) warnFallback(operation, model string, err error) {
	if g.logger != nil {
		g.logger.Warn("local backend failed, falling back to cloud", "operation", operation, "model", model, "error", err)
	}
}
