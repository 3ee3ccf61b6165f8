package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Refresher exchanges a current token for a fresh one. Implementations
// return ErrSessionExpired when the underlying session itself is gone;
// any other failure is transient and the caller may retry.
type Refresher interface {
	Refresh(ctx context.Context, current Token) (Token, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, current Token) (Token, error)

// Refresh implements Refresher.
func (f RefresherFunc) Refresh(ctx context.Context, current Token) (Token, error) {
	return f(ctx, current)
}

// HTTPRefresher refreshes tokens against the auth service's refresh
// endpoint.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPRefresher builds a refresher for the given endpoint. client
// may be nil; a 10s-timeout default is used.
func NewHTTPRefresher(endpoint string, client *http.Client, logger *slog.Logger) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRefresher{endpoint: endpoint, client: client, logger: logger}
}

type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

// Refresh posts the current token and returns the replacement.
//
// 401 and 410 responses mean the session itself expired and map to
// ErrSessionExpired; the caller must stop retrying and redirect to
// re-authentication. Every other failure is transient.
func (r *HTTPRefresher) Refresh(ctx context.Context, current Token) (Token, error) {
	body, err := json.Marshal(refreshRequest{Token: current.Raw})
	if err != nil {
		return Token{}, fmt.Errorf("auth: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("auth: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("auth: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusGone:
		return Token{}, ErrSessionExpired
	case resp.StatusCode != http.StatusOK:
		return Token{}, fmt.Errorf("auth: refresh returned status %d", resp.StatusCode)
	}

	var payload refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, fmt.Errorf("auth: decode refresh response: %w", err)
	}

	token, err := ParseToken(payload.Token)
	if err != nil {
		return Token{}, fmt.Errorf("auth: refresh returned unusable token: %w", err)
	}

	r.logger.Debug("token refreshed", "subject", token.Subject, "expires_at", token.ExpiresAt)
	return token, nil
}
