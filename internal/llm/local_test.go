package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestLocalGateway_CreateEmbedding_ModelAlreadyPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"}]}`))
		case "/api/embeddings":
			_, _ = w.Write([]byte(`{"embedding":[0.1,0.2]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	cfg := config.Config{OllamaBaseURL: srv.URL, SupportedLocalModels: []string{"llama3"}, ModelDownloadTimeout: time.Second}
	g := newLocal(cfg, testEnvelope(), nil, nil)

	result, err := g.CreateEmbedding(t.Context(), "llama3", "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, result.Embedding)
}

func TestLocalGateway_PullsMissingSupportedModel(t *testing.T) {
	var pulled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/pull":
			pulled = true
			_, _ = w.Write([]byte(`{"status":"success"}` + "\n"))
		case "/api/generate":
			_, _ = w.Write([]byte(`{"response":"ok"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	cfg := config.Config{OllamaBaseURL: srv.URL, SupportedLocalModels: []string{"llama3"}, ModelDownloadTimeout: time.Second}
	g := newLocal(cfg, testEnvelope(), nil, nil)

	result, err := g.Generate(t.Context(), "llama3", "hi", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.True(t, pulled)
}

func TestLocalGateway_RejectsUnsupportedModelPull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	cfg := config.Config{OllamaBaseURL: srv.URL, SupportedLocalModels: []string{"llama3"}, ModelDownloadTimeout: time.Second}
	g := newLocal(cfg, testEnvelope(), nil, nil)

	_, err := g.Generate(t.Context(), "some-other-model", "hi", 0)
	require.Error(t, err)
}

func TestLocalGateway_ChatCompletionRendersTranscript(t *testing.T) {
	var capturedPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
		case "/api/generate":
			var body struct {
				Prompt string `json:"prompt"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			capturedPrompt = body.Prompt
			_, _ = w.Write([]byte(`{"response":"ok"}`))
		}
	}))
	defer srv.Close()

	cfg := config.Config{OllamaBaseURL: srv.URL, SupportedLocalModels: []string{"llama3"}, ModelDownloadTimeout: time.Second}
	g := newLocal(cfg, testEnvelope(), nil, nil)

	messages := []domain.ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}
	result, err := g.ChatCompletion(t.Context(), "llama3", messages, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, "System: be terse\nUser: hi", capturedPrompt)
}
