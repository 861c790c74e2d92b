// Package ai provides chat completion implementations.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgconfig "chatguard/pkg/config"
)

// Config holds the settings for the HTTP completer.
type Config struct {
	// BaseURL is the completion endpoint of the AI provider.
	BaseURL string

	// APIKey authenticates requests. Injected via AI_API_KEY.
	APIKey string

	// Timeout bounds each completion call. The circuit breaker counts
	// timeouts as failures.
	Timeout time.Duration
}

// ConfigFromEnv builds the completer configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: pkgconfig.GetEnvString("AI_BASE_URL", ""),
		APIKey:  pkgconfig.GetEnvString("AI_API_KEY", ""),
		Timeout: pkgconfig.GetEnvDuration("AI_TIMEOUT", 30*time.Second),
	}
}

// HTTPCompleter calls an HTTP completion endpoint.
type HTTPCompleter struct {
	cfg    Config
	client *http.Client
}

// NewHTTPCompleter creates a completer for the given endpoint.
func NewHTTPCompleter(cfg Config) *HTTPCompleter {
	return &HTTPCompleter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends the prompt to the provider and returns its reply.
// Non-2xx responses and transport errors are returned as-is so the
// retry executor and circuit breaker can classify them.
func (c *HTTPCompleter) Complete(ctx context.Context, conversationID, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"conversation_id": conversationID,
		"prompt":          prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("completion request: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return out.Reply, nil
}

// NoOp is a completer that echoes the prompt without calling a provider.
// This is useful for testing and development when no provider is configured.
type NoOp struct{}

// NewNoOp creates a new NoOp completer.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Complete returns a canned reply derived from the prompt.
func (n *NoOp) Complete(_ context.Context, _ string, prompt string) (string, error) {
	const maxEcho = 200
	if len(prompt) > maxEcho {
		prompt = prompt[:maxEcho] + "..."
	}
	return "echo: " + prompt, nil
}
