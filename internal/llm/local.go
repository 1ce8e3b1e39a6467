package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
)

const localProvider = "local"

// localGateway forwards to a local inference server (Ollama-shaped). Only
// models in SupportedLocalModels are accepted; the first use of an unknown-
// locally model blocks on a streaming pull (§4.4, §6).
type localGateway struct {
	baseURL         string
	supportedModels map[string]bool
	downloadTimeout time.Duration
	envelope        *httpenvelope.Envelope
	metrics         *observability.Metrics
	logger          *slog.Logger
	tokens          *tokenCounter

	mu       sync.Mutex
	ensured  map[string]bool
}

func newLocal(cfg config.Config, envelope *httpenvelope.Envelope, metrics *observability.Metrics, logger *slog.Logger) *localGateway {
	supported := make(map[string]bool, len(cfg.SupportedLocalModels))
	for _, m := range cfg.SupportedLocalModels {
		supported[m] = true
	}
	return &localGateway{
		baseURL:         strings.TrimRight(cfg.OllamaBaseURL, "/"),
		supportedModels: supported,
		downloadTimeout: cfg.ModelDownloadTimeout,
		envelope:        envelope,
		metrics:         metrics,
		logger:          logger,
		tokens:          newTokenCounter(),
		ensured:         make(map[string]bool),
	}
}

func (g *localGateway) SupportsModel(model string) bool { return g.supportedModels[model] }

func (g *localGateway) CreateEmbedding(ctx context.Context, model, text string) (domain.EmbeddingResult, error) {
	if err := g.ensureModelAvailable(ctx, model); err != nil {
		return domain.EmbeddingResult{}, err
	}

	body, _ := json.Marshal(map[string]string{"model": model, "prompt": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("op=llm.localGateway.CreateEmbedding: %w", err)
	}

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	g.recordOutcome(model, err)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("op=llm.localGateway.CreateEmbedding decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding from local provider", domain.ErrSchemaInvalid)
	}

	tokens := g.tokens.count(text, model)
	usage := domain.Usage{PromptTokens: tokens, TotalTokens: tokens}
	g.recordTokens(model, usage)
	return domain.EmbeddingResult{Embedding: out.Embedding, Model: model, Usage: usage}, nil
}

func (g *localGateway) Generate(ctx context.Context, model, prompt string, _ int) (domain.ChatResult, error) {
	if err := g.ensureModelAvailable(ctx, model); err != nil {
		return domain.ChatResult{}, err
	}

	body, _ := json.Marshal(map[string]any{"model": model, "prompt": prompt, "stream": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=llm.localGateway.Generate: %w", err)
	}

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	g.recordOutcome(model, err)
	if err != nil {
		return domain.ChatResult{}, err
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=llm.localGateway.Generate decode: %w", err)
	}

	promptTokens := g.tokens.count(prompt, model)
	completionTokens := g.tokens.count(out.Response, model)
	usage := domain.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens}
	g.recordTokens(model, usage)
	return domain.ChatResult{Content: out.Response, Model: model, Usage: usage}, nil
}

// ChatCompletion renders messages as a role-prefixed transcript and calls
// Generate, matching the reference Ollama provider exactly (§4.4).
func (g *localGateway) ChatCompletion(ctx context.Context, model string, messages []domain.ChatMessage, maxTokens int) (domain.ChatResult, error) {
	return g.Generate(ctx, model, renderTranscript(messages), maxTokens)
}

func renderTranscript(messages []domain.ChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			lines = append(lines, "System: "+m.Content)
		case "assistant":
			lines = append(lines, "Assistant: "+m.Content)
		default:
			lines = append(lines, "User: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// ensureModelAvailable checks /api/tags for model and, if missing, triggers
// a streaming pull bounded by downloadTimeout. Checked once per process per
// model to avoid a /api/tags round trip on every call.
func (g *localGateway) ensureModelAvailable(ctx context.Context, model string) error {
	g.mu.Lock()
	if g.ensured[model] {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	present, err := g.modelExists(ctx, model)
	if err != nil {
		return err
	}
	if !present {
		if err := g.pullModel(ctx, model); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.ensured[model] = true
	g.mu.Unlock()
	return nil
}

func (g *localGateway) modelExists(ctx context.Context, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("op=llm.localGateway.modelExists: %w", err)
	}

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	if err != nil {
		return false, err
	}

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return false, fmt.Errorf("op=llm.localGateway.modelExists decode: %w", err)
	}
	for _, m := range out.Models {
		name := strings.SplitN(m.Name, ":", 2)[0]
		if name == model || m.Name == model+":latest" {
			return true, nil
		}
	}
	return false, nil
}

func (g *localGateway) pullModel(ctx context.Context, model string) error {
	if !g.supportedModels[model] {
		return fmt.Errorf("%w: %q is not in the supported local model list", domain.ErrModelUnsupported, model)
	}

	if g.logger != nil {
		g.logger.Info("downloading local model", "model", model)
	}

	pullCtx, cancel := context.WithTimeout(ctx, g.downloadTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"name": model})
	req, err := http.NewRequestWithContext(pullCtx, http.MethodPost, g.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("op=llm.localGateway.pullModel: %w", err)
	}

	_, respBody, err := g.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	if err != nil {
		return fmt.Errorf("op=llm.localGateway.pullModel: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(respBody))
	for scanner.Scan() {
		var progress struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &progress); err == nil && progress.Status != "" && g.logger != nil {
			g.logger.Debug("model download progress", "model", model, "status", progress.Status)
		}
	}

	if g.logger != nil {
		g.logger.Info("local model downloaded", "model", model)
	}
	return nil
}

func (g *localGateway) recordOutcome(model string, err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.ModelRequests.WithLabelValues(localProvider, model, status).Inc()
}

func (g *localGateway) recordTokens(model string, usage domain.Usage) {
	if g.metrics == nil {
		return
	}
	g.metrics.ModelTokens.WithLabelValues(localProvider, model, "prompt").Add(float64(usage.PromptTokens))
	g.metrics.ModelTokens.WithLabelValues(localProvider, model, "completion").Add(float64(usage.CompletionTokens))
}
