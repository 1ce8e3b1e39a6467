package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
)

func testEnvelope() *httpenvelope.Envelope {
	return httpenvelope.New(httpenvelope.Config{
		MaxRetries: 0, BackoffFactor: 2, CircuitBreakerThreshold: 5,
		CircuitBreakerRecovery: time.Minute, RequestTimeout: 2 * time.Second,
	})
}

func TestClient_GetPending_DecodesFieldAliases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai-tasks/pending", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"_id":            "t1",
				"kind":           "text-embedding",
				"state":          "pending",
				"content":        map[string]any{"text": "hi", "model": "m"},
				"callbackRoute":  "/callback",
				"callbackParams": map[string]any{"x": 1.0},
				"createdAt":      "2026-01-01T00:00:00Z",
				"updatedAt":      "2026-01-01T00:00:00Z",
			},
		})
	}))
	defer srv.Close()

	c := New(config.Config{APIBaseURL: srv.URL}, testEnvelope(), nil)
	tasks, err := c.GetPending(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, domain.KindTextEmbedding, tasks[0].Kind)
	assert.Equal(t, domain.TaskPending, tasks[0].State)
	assert.Equal(t, "/callback", tasks[0].CallbackRoute)
	assert.JSONEq(t, `{"text":"hi","model":"m"}`, string(tasks[0].Content))
}

func TestClient_UpdateStatus_SendsStatusAndOutput(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/ai-tasks/t1", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(config.Config{APIBaseURL: srv.URL}, testEnvelope(), nil)
	ok, err := c.UpdateStatus(context.Background(), domain.Succeeded("t1", map[string]any{"embedding": []float64{1, 2}}))

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "succeeded", gotBody["status"])
	assert.NotContains(t, gotBody, "error_message")
}

func TestClient_UpdateStatus_SendsErrorMessageOnFailure(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(config.Config{APIBaseURL: srv.URL}, testEnvelope(), nil)
	ok, err := c.UpdateStatus(context.Background(), domain.Failed("t1", "boom"))

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "failed", gotBody["status"])
	assert.Equal(t, "boom", gotBody["error_message"])
	assert.NotContains(t, gotBody, "output_data")
}

func TestClient_UpdateStatus_NonOKStatusReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(config.Config{APIBaseURL: srv.URL}, testEnvelope(), nil)
	ok, err := c.UpdateStatus(context.Background(), domain.Succeeded("t1", "x"))

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_AuthorizesWithBearerTokenWhenOAuth2Configured(t *testing.T) {
	var gotAuth string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-xyz", "expires_in": 3600, "token_type": "bearer"})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer apiSrv.Close()

	c := New(config.Config{
		APIBaseURL:         apiSrv.URL,
		OAuth2TokenURL:     tokenSrv.URL,
		OAuth2ClientID:     "id",
		OAuth2ClientSecret: "secret",
	}, testEnvelope(), nil)

	_, err := c.GetPending(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-xyz", gotAuth)
}
