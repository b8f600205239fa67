package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keithhendry/dotty/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// ErrTruncated is returned when the model stopped at the token limit.
var ErrTruncated = errors.New("completion truncated at token limit")

// OpenAIBackend implements LLMBackend using the OpenAI chat API or any
// compatible endpoint reachable through BaseURL.
type OpenAIBackend struct {
	client       *openai.Client
	defaultModel string
	system       string
	temperature  float32
}

// OpenAIConfig holds configuration for the OpenAI backend. Empty fields fall
// back to the environment-derived configuration.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	// System is sent as the system message of every request.
	System      string
	Temperature float32
}

// NewOpenAIBackend creates a new OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	env := config.Get()

	apiKey := firstNonEmpty(cfg.APIKey, env.OpenAIAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided (set OPENAI_API_KEY or pass in config)")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := firstNonEmpty(cfg.BaseURL, env.OpenAIBaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &OpenAIBackend{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: firstNonEmpty(cfg.DefaultModel, env.OpenAIModel),
		system:       cfg.System,
		temperature:  cfg.Temperature,
	}, nil
}

// Generate implements LLMBackend.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, model string, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if b.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       firstNonEmpty(model, b.defaultModel),
		Messages:    messages,
		Temperature: b.temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return "", ErrTruncated
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

// Name implements LLMBackend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Close implements LLMBackend.
func (b *OpenAIBackend) Close() error { return nil }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
