package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
)

const cloudProvider = "cloud"

// cloudGateway forwards to a remote OpenAI-compatible provider. It accepts
// any model identifier and lets the provider validate it.
type cloudGateway struct {
	baseURL  string
	apiKey   string
	envelope *httpenvelope.Envelope
	metrics  *observability.Metrics
	logger   *slog.Logger
	throttle *redisThrottle
}

func (g *cloudGateway) SupportsModel(string) bool { return true }

func (g *cloudGateway) CreateEmbedding(ctx context.Context, model, text string) (domain.EmbeddingResult, error) {
	if err := g.throttle.wait(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("op=llm.cloudGateway.CreateEmbedding throttle: %w", err)
	}

	body, _ := json.Marshal(map[string]any{"model": model, "input": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("op=llm.cloudGateway.CreateEmbedding: %w", err)
	}
	g.authorize(req)

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	g.recordOutcome(model, err)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("op=llm.cloudGateway.CreateEmbedding decode: %w", err)
	}
	if len(out.Data) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding from cloud provider", domain.ErrSchemaInvalid)
	}

	usage := domain.Usage{PromptTokens: out.Usage.PromptTokens, TotalTokens: out.Usage.TotalTokens}
	g.recordTokens(model, usage)
	return domain.EmbeddingResult{Embedding: out.Data[0].Embedding, Model: model, Usage: usage}, nil
}

func (g *cloudGateway) ChatCompletion(ctx context.Context, model string, messages []domain.ChatMessage, maxTokens int) (domain.ChatResult, error) {
	if err := g.throttle.wait(ctx, 1); err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=llm.cloudGateway.ChatCompletion throttle: %w", err)
	}

	wire := make([]map[string]string, len(messages))
	for i, m := range messages {
		wire[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	payload := map[string]any{"model": model, "messages": wire}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=llm.cloudGateway.ChatCompletion: %w", err)
	}
	g.authorize(req)

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	g.recordOutcome(model, err)
	if err != nil {
		return domain.ChatResult{}, err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=llm.cloudGateway.ChatCompletion decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return domain.ChatResult{}, fmt.Errorf("%w: empty choices from cloud provider", domain.ErrSchemaInvalid)
	}

	usage := domain.Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	g.recordTokens(model, usage)
	return domain.ChatResult{Content: out.Choices[0].Message.Content, Model: model, Usage: usage}, nil
}

// Generate wraps ChatCompletion with a single user-role message, matching
// the reference OpenAI provider's generate/chat_completion relationship.
func (g *cloudGateway) Generate(ctx context.Context, model, prompt string, maxTokens int) (domain.ChatResult, error) {
	return g.ChatCompletion(ctx, model, []domain.ChatMessage{{Role: "user", Content: prompt}}, maxTokens)
}

func (g *cloudGateway) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (g *cloudGateway) recordOutcome(model string, err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.ModelRequests.WithLabelValues(cloudProvider, model, status).Inc()
}

func (g *cloudGateway) recordTokens(model string, usage domain.Usage) {
	if g.metrics == nil {
		return
	}
	g.metrics.ModelTokens.WithLabelValues(cloudProvider, model, "prompt").Add(float64(usage.PromptTokens))
	g.metrics.ModelTokens.WithLabelValues(cloudProvider, model, "completion").Add(float64(usage.CompletionTokens))
}
