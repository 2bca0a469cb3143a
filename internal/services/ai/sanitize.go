package ai

import (
	"github.com/benvon/ai-task/internal/logger"
)

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// RedactedValue is the value used to replace sensitive data
	RedactedValue = "[REDACTED]"
)

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of prompt text for logging.
// fullLog keeps up to logger.MaxPromptLength instead of a short preview.
func SanitizePrompt(prompt string, fullLog bool) string {
	if fullLog {
		return logger.SanitizePrompt(prompt)
	}
	return logger.SanitizeString(prompt, MaxPreviewLength)
}

// previews renders message contents for debug logs
func previews(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, string(m.Role)+": "+SanitizePrompt(m.Content, false))
	}
	return out
}
