// Package push registers the client's push-notification subscription
// with the delivery service. Registration is best effort: a failure
// degrades the feature silently, it never affects the sync runtime.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Subscription describes the client's push endpoint, in the shape the
// delivery service expects.
type Subscription struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys,omitempty"`
}

// Registrar registers push subscriptions with the delivery service.
type Registrar struct {
	endpoint   string
	httpClient *http.Client
	token      func() string
	logger     *slog.Logger
}

// NewRegistrar builds a registrar. httpClient may be nil.
func NewRegistrar(endpoint string, token func() string, httpClient *http.Client, logger *slog.Logger) *Registrar {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{endpoint: endpoint, httpClient: httpClient, token: token, logger: logger}
}

// Register submits the subscription. The returned error is for the
// caller's logging only; callers must treat failure as a silent
// degradation, not a runtime fault.
func (r *Registrar) Register(ctx context.Context, sub Subscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("push: subscription endpoint required")
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("push: encode subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != nil {
		if tok := r.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push: register returned status %d", resp.StatusCode)
	}

	r.logger.Debug("push subscription registered", "endpoint", sub.Endpoint)
	return nil
}
