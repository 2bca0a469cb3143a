package ai

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// Role tags a message for the generation provider
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role tagged entry of a completion request
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider is a text generation backend.
type Provider interface {
	// Complete issues a single completion and returns the full text.
	Complete(ctx context.Context, messages []Message) (string, error)

	// CompleteStream yields text fragments as they arrive. A non-nil error
	// ends the sequence.
	CompleteStream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// ProviderConfig carries the settings a provider factory needs
type ProviderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Logger    *zap.Logger
	DebugMode bool
}

// ProviderFactory creates a provider from its configuration
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider builds the named provider
func (r *ProviderRegistry) GetProvider(name string, cfg ProviderConfig) (Provider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return factory(cfg)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
