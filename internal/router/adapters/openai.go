package adapters

import (
	"context"
	"errors"
	"net/http"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// OpenAIAdapter speaks the /chat/completions dialect shared by OpenAI and
// compatible servers such as Ollama and vLLM.
type OpenAIAdapter struct {
	ep endpoint
}

func NewOpenAIAdapter(cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	auth := map[string]string{}
	if cfg.APIKey != "" {
		auth["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &OpenAIAdapter{ep: newEndpoint(config.ProviderOpenAI, cfg, client, auth)}
}

func (a *OpenAIAdapter) Name() string { return config.ProviderOpenAI }

func (a *OpenAIAdapter) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	temperature := req.Temperature
	var out chatResponse
	if err := a.ep.post(ctx, "/chat/completions", chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai response has no choices")
	}

	return &Completion{
		Text:         out.Choices[0].Message.Content,
		Model:        out.Model,
		FinishReason: out.Choices[0].FinishReason,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	// Temperature is a pointer so an explicit 0 is sent.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}
