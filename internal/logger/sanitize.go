package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
	// MaxPromptLength bounds prompts and completions logged in debug mode
	MaxPromptLength = 10000
)

// SanitizeString drops control characters, repairs invalid UTF-8 and truncates
// to maxLength bytes without splitting a rune.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var builder strings.Builder
	builder.Grow(min(len(s), maxLength))
	for _, r := range s {
		if !unicode.IsPrint(r) && r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		if builder.Len()+utf8.RuneLen(r) > maxLength {
			builder.WriteString("...")
			break
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// SanitizePath sanitizes a URL path for logging.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeError sanitizes an error message for logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeUserID renders a user id for logs; the nil UUID becomes "anonymous".
func SanitizeUserID(id uuid.UUID) string {
	if id == uuid.Nil {
		return "anonymous"
	}
	return id.String()
}

// SanitizePrompt sanitizes prompt or completion text logged in debug mode.
func SanitizePrompt(content string) string {
	return SanitizeString(content, MaxPromptLength)
}
