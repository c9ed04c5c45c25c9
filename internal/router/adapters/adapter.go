package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// CompletionRequest is a single-turn completion with already-scrubbed text.
type CompletionRequest struct {
	Model       string // upstream model name
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the provider's answer plus the token usage it reported.
type Completion struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

// ProviderAdapter runs one completion against a provider's HTTP API.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// StatusError is returned when a provider answers with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

const (
	// maxErrorBody bounds how much of an upstream error body is kept.
	maxErrorBody = 512
	// maxResponseBody bounds a successful completion body.
	maxResponseBody = 8 << 20
)

// endpoint is the HTTP plumbing shared by the adapters: a base URL, the
// headers every call carries, and the pooled client for the provider.
type endpoint struct {
	provider string
	baseURL  string
	header   http.Header
	client   *http.Client
}

// newEndpoint merges the provider's configured headers over auth. Empty
// configured values are ignored so an unset ${VAR} does not clear a header.
func newEndpoint(provider string, cfg config.ProviderConfig, client *http.Client, auth map[string]string) endpoint {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	for k, v := range auth {
		if v != "" {
			h.Set(k, v)
		}
	}
	for k, v := range cfg.Headers {
		if v != "" {
			h.Set(k, v)
		}
	}
	return endpoint{
		provider: provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		header:   h,
		client:   client,
	}
}

// post sends in as JSON to path and decodes a 200 answer into out.
func (e endpoint) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", e.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", e.provider, err)
	}
	req.Header = e.header.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", e.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: e.provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", e.provider, err)
	}
	return nil
}
