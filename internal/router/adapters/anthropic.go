package adapters

import (
	"context"
	"net/http"
	"strings"

	"github.com/af-corp/quieter-gateway/internal/config"
)

const (
	defaultAnthropicVersion = "2023-06-01"
	// The Messages API rejects requests without max_tokens.
	anthropicMaxTokens = 4096
)

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	ep endpoint
}

func NewAnthropicAdapter(cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	version := cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	return &AnthropicAdapter{ep: newEndpoint(config.ProviderAnthropic, cfg, client, map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": version,
	})}
}

func (a *AnthropicAdapter) Name() string { return config.ProviderAnthropic }

func (a *AnthropicAdapter) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	temperature := req.Temperature

	var out messagesResponse
	if err := a.ep.post(ctx, "/messages", messagesRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Completion{
		Text:         text.String(),
		Model:        out.Model,
		FinishReason: mapStopReason(out.StopReason),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

// mapStopReason translates Anthropic stop reasons to the chat-completions
// vocabulary the gateway reports.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	}
	return reason
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}
