// Package controlplane implements the HTTP client that pulls pending
// tasks from the control plane and reports task outcomes back to it.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
)

// rawTask mirrors the control plane's wire shape for a Task, aliasing the
// fields spec §6 names: _id -> id, state -> status.
type rawTask struct {
	ID             string          `json:"_id"`
	Kind           string          `json:"kind"`
	State          string          `json:"state"`
	Content        json.RawMessage `json:"content"`
	CallbackRoute  string          `json:"callbackRoute"`
	CallbackParams map[string]any  `json:"callbackParams"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (r rawTask) toDomain() domain.Task {
	return domain.Task{
		ID:             r.ID,
		Kind:           domain.TaskKind(r.Kind),
		State:          domain.TaskState(r.State),
		Content:        []byte(r.Content),
		CallbackRoute:  r.CallbackRoute,
		CallbackParams: r.CallbackParams,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// statusUpdateBody is the PATCH payload for update_status, per spec §6.
type statusUpdateBody struct {
	Status       domain.TaskState `json:"status"`
	OutputData   any              `json:"output_data,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Client implements domain.ControlPlaneClient against the control
// plane's REST API, grounded on api_client.py's two operations.
type Client struct {
	baseURL  string
	envelope *httpenvelope.Envelope
	tokens   *tokenCache
	metrics  *observability.Metrics
}

// New builds a control-plane Client. The OAuth2 token cache is only
// engaged when cfg.OAuth2TokenURL is set; otherwise requests are sent
// unauthenticated (e.g. a control plane behind a trusted network).
func New(cfg config.Config, envelope *httpenvelope.Envelope, metrics *observability.Metrics) *Client {
	var tokens *tokenCache
	if cfg.OAuth2TokenURL != "" {
		tokens = newTokenCache(cfg.OAuth2TokenURL, cfg.OAuth2ClientID, cfg.OAuth2ClientSecret, cfg.OAuth2Scope)
	}
	return &Client{baseURL: cfg.APIBaseURL, envelope: envelope, tokens: tokens, metrics: metrics}
}

// GetPending fetches up to limit pending tasks.
func (c *Client) GetPending(ctx context.Context, limit int) ([]domain.Task, error) {
	const endpoint = "/api/ai-tasks/pending"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?limit=%d", c.baseURL, endpoint, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("op=controlplane.Client.GetPending: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, fmt.Errorf("op=controlplane.Client.GetPending authorize: %w", err)
	}

	start := time.Now()
	_, body, err := c.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	c.recordRequest(endpoint, http.MethodGet, err, start)
	if err != nil {
		return nil, err
	}

	var raw []rawTask
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("op=controlplane.Client.GetPending decode: %w", err)
	}
	tasks := make([]domain.Task, len(raw))
	for i, r := range raw {
		tasks[i] = r.toDomain()
	}
	return tasks, nil
}

// UpdateStatus reports a task outcome. Exactly one of result.Output or
// result.Error is sent, matching the TaskResult invariant. The submission
// is idempotent: resubmitting the same (task_id, status, output/error) is
// safe, so the scheduler can retry a failed PATCH without side effects.
func (c *Client) UpdateStatus(ctx context.Context, result domain.TaskResult) (bool, error) {
	endpoint := fmt.Sprintf("/api/ai-tasks/%s", result.TaskID)
	body, err := json.Marshal(statusUpdateBody{
		Status:       result.Status,
		OutputData:   result.Output,
		ErrorMessage: result.Error,
	})
	if err != nil {
		return false, fmt.Errorf("op=controlplane.Client.UpdateStatus encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("op=controlplane.Client.UpdateStatus: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return false, fmt.Errorf("op=controlplane.Client.UpdateStatus authorize: %w", err)
	}

	start := time.Now()
	resp, _, err := c.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	c.recordRequest("/api/ai-tasks/{id}", http.MethodPatch, err, start)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.accessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) recordRequest(endpoint, method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "error"
	if err == nil {
		status = "2xx"
	}
	c.metrics.APIRequests.WithLabelValues(endpoint, method, status).Inc()
	c.metrics.APIRequestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
}
