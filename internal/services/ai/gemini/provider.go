// Package gemini adapts the Google Gen AI SDK to the ai.Provider interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/services/ai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-2.0-flash"

	roleUser  = "user"
	roleModel = "model"
)

// ErrBlocked is returned when the response was withheld by safety filters
var ErrBlocked = errors.New("response blocked by safety filters")

// Provider implements ai.Provider on the Gemini API
type Provider struct {
	models    *genai.Models
	model     string
	logger    *zap.Logger
	debugMode bool
}

// New creates a Gemini provider
func New(ctx context.Context, cfg ai.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		models:    client.Models,
		model:     model,
		logger:    logger.OrNop(cfg.Logger),
		debugMode: cfg.DebugMode,
	}, nil
}

// Register registers the Gemini provider with the registry
func Register(registry *ai.ProviderRegistry) {
	registry.Register("gemini", func(cfg ai.ProviderConfig) (ai.Provider, error) {
		return New(context.Background(), cfg)
	})
}

// request splits messages into the system instruction and the conversation
func request(messages []ai.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var (
		system   []*genai.Part
		contents []*genai.Content
	)
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			system = append(system, &genai.Part{Text: msg.Content})
		case ai.RoleAssistant:
			contents = append(contents, &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	return contents, cfg
}

// text concatenates the text parts of the first candidate
func text(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ai.ErrNoChoices
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrBlocked
	}
	if candidate.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// Complete implements ai.Provider
func (p *Provider) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ai.DefaultTimeout)
	defer cancel()

	contents, cfg := request(messages)
	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("provider", "gemini"),
			zap.String("model", p.model),
			zap.Strings("messages", preview(messages)),
		)
	}

	start := time.Now()
	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		p.logger.Error("llm_api_error",
			zap.String("provider", "gemini"),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	out, err := text(resp)
	if err != nil {
		return "", err
	}
	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("provider", "gemini"),
			zap.Duration("duration", time.Since(start)),
			zap.String("content", ai.SanitizePrompt(out, false)),
		)
	}
	return out, nil
}

// CompleteStream implements ai.Provider
func (p *Provider) CompleteStream(ctx context.Context, messages []ai.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, ai.DefaultStreamTimeout)
		defer cancel()

		contents, cfg := request(messages)
		start := time.Now()
		chunks := 0
		for resp, err := range p.models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				p.logger.Error("llm_api_error",
					zap.String("provider", "gemini"),
					zap.Bool("stream", true),
					zap.Error(err),
				)
				yield("", fmt.Errorf("failed to stream content: %w", err))
				return
			}
			fragment, err := text(resp)
			if err != nil {
				yield("", err)
				return
			}
			if fragment == "" {
				continue
			}
			chunks++
			if !yield(fragment, nil) {
				return
			}
		}
		if p.debugMode {
			p.logger.Debug("llm_api_stream_complete",
				zap.String("provider", "gemini"),
				zap.Int("chunks", chunks),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}
}

func preview(messages []ai.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, string(m.Role)+": "+ai.SanitizePrompt(m.Content, false))
	}
	return out
}
