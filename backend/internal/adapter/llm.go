package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

// Options configures the adapter
type Options struct {
	BaseURL     string // OpenAI-compatible endpoint including the /v1 suffix
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxAttempts int // 1 means no automatic retry
}

// LLMAdapter handles communication with the LLM through an OpenAI-compatible
// gateway such as LiteLLM
type LLMAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// Response represents the LLM's response
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Usage is the token accounting reported by the provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(opts Options) *LLMAdapter {
	// LiteLLM accepts any key when none is configured
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &LLMAdapter{
		client:      openai.NewClientWithConfig(config),
		model:       opts.Model,
		temperature: float32(opts.Temperature),
		maxTokens:   opts.MaxTokens,
		maxAttempts: attempts,
		backoff:     time.Second,
		logger:      logger.Get(),
	}
}

// GetModel returns the model used when a call names none
func (a *LLMAdapter) GetModel() string {
	return a.model
}

// Generate sends one system + user exchange to model and returns the
// completion. An empty model uses the configured default. Failures come back
// as a provider error carrying the provider's message.
func (a *LLMAdapter) Generate(ctx context.Context, model, systemPrompt, userMsg string) (*Response, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userMsg,
		},
	}

	currentModel := model
	if currentModel == "" {
		currentModel = a.model
	}

	req := openai.ChatCompletionRequest{
		Model:       currentModel,
		Messages:    messages,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	attempt := 0
	for attempt < a.maxAttempts {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewContextCancelled("llm generate", ctx.Err())
			case <-time.After(backoff):
			}
		}
		attempt++

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.String("model", currentModel),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		return nil, apperrors.NewProviderError(currentModel, attempt, providerMessage(err))
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewProviderError(currentModel, attempt, errors.New("no choices in LLM response"))
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if response.Model == "" {
		response.Model = currentModel
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", response.Model),
		zap.Int("total_tokens", response.Usage.TotalTokens),
		zap.Bool("has_content", response.Content != ""),
	)

	return response, nil
}

// providerMessage unwraps the gateway's own error text when there is one
func providerMessage(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.Err != nil {
		return reqErr.Err
	}
	return err
}
