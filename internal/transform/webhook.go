package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contextgate/contextgate/internal/core/domain"
	"github.com/contextgate/contextgate/internal/pipeline"
)

// WebhookConfig configures an HTTP-backed transform.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
	Headers map[string]string
}

// Webhook calls an external HTTP service as the transform stage. The
// payload is POSTed as JSON; the response body must be a JSON object, which
// becomes the replacement payload.
type Webhook struct {
	url     string
	retries int
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook transform.
func NewWebhook(cfg WebhookConfig) *Webhook {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		url:     cfg.URL,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Func adapts the webhook to the pipeline's transform contract.
func (w *Webhook) Func() pipeline.TransformFunc {
	return w.Transform
}

// Transform executes the webhook call, retrying transient failures. An
// exhausted retry budget surfaces as an error, which the orchestrator
// converts into an ai_error record.
func (w *Webhook) Transform(ctx context.Context, payload domain.Payload) (domain.Payload, error) {
	var lastErr error

	attempts := w.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := w.doRequest(ctx, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err

		// Don't retry on context cancellation.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("transform webhook: %w", lastErr)
}

func (w *Webhook) doRequest(ctx context.Context, payload domain.Payload) (domain.Payload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out domain.Payload
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("webhook response is not a JSON object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("webhook response is empty")
	}

	return out, nil
}
