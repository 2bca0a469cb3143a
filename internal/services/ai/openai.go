package ai

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a blocking completion call
	DefaultTimeout = 60 * time.Second
	// DefaultStreamTimeout bounds a streamed completion
	DefaultStreamTimeout = 5 * time.Minute
)

// OpenAIProvider implements Provider using any OpenAI compatible chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	// Deadlines come from the request context so streams are not cut short.
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(1),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger.OrNop(cfg.Logger),
		debugMode: cfg.DebugMode,
	}
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register("openai", func(cfg ProviderConfig) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		return NewOpenAIProvider(cfg), nil
	})
}

func (p *OpenAIProvider) params(messages []Message) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}
	// Temperature omitted: some models only accept their default
	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: converted,
	}
}

func (p *OpenAIProvider) logRequest(operation string, messages []Message) {
	if !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_request",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Int("message_count", len(messages)),
		zap.Strings("message_previews", previews(messages)),
	)
}

func (p *OpenAIProvider) logResult(operation, content string, latency time.Duration, err error) {
	if !p.debugMode {
		return
	}
	if err != nil {
		p.logger.Debug("llm_api_error",
			zap.String("operation", operation),
			zap.String("model", p.model),
			zap.String("error", logger.SanitizeError(err)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		return
	}
	p.logger.Debug("llm_api_response",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizePrompt(content, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}

// Complete issues one chat completion and returns the first choice's text.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	p.logRequest("complete", messages)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	if err != nil {
		p.logResult("complete", "", time.Since(start), err)
		return "", wrapProviderError("complete", err)
	}
	if len(resp.Choices) == 0 {
		p.logResult("complete", "", time.Since(start), ErrNoChoices)
		return "", ErrNoChoices
	}

	content := resp.Choices[0].Message.Content
	p.logResult("complete", content, time.Since(start), nil)
	return content, nil
}

// CompleteStream streams a chat completion, yielding each content delta.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, DefaultStreamTimeout)
		defer cancel()

		p.logRequest("complete_stream", messages)

		start := time.Now()
		stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages))
		defer func() { _ = stream.Close() }()

		received := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			received += len(delta)
			if !yield(delta, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			p.logResult("complete_stream", "", time.Since(start), err)
			yield("", wrapProviderError("stream completion", err))
			return
		}
		if p.debugMode {
			p.logger.Debug("llm_api_stream_complete",
				zap.String("model", p.model),
				zap.Int("response_length", received),
				zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			)
		}
	}
}
