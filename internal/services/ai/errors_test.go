package ai

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api error 429", &APIError{StatusCode: 429}, true},
		{"quota api error", &APIError{StatusCode: 429, IsPermanent: true}, false},
		{"message 429", errors.New("POST: 429 Too Many Requests"), true},
		{"gemini exhausted", errors.New("Error 429, RESOURCE_EXHAUSTED"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractAPIError_FromMessage(t *testing.T) {
	t.Parallel()

	err := errors.New(`429 Too Many Requests {"message":"You exceeded your quota","type":"insufficient_quota","code":"insufficient_quota"}`)
	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		t.Fatal("expected API error")
	}
	if !apiErr.IsPermanent || apiErr.Code != "insufficient_quota" {
		t.Errorf("unexpected %+v", apiErr)
	}
	if apiErr.RetryAfter == nil || *apiErr.RetryAfter != time.Hour {
		t.Errorf("quota retry after = %v, want 1h", apiErr.RetryAfter)
	}
	if !IsQuotaError(fmt.Errorf("wrapped: %w", apiErr)) {
		t.Error("wrapped API error should be a quota error")
	}

	if ExtractAPIError(errors.New("500 internal")) != nil {
		t.Error("non-429 errors carry no API details")
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{"generic first", errors.New("boom"), 0, 5 * time.Second},
		{"generic second", errors.New("boom"), 1, 10 * time.Second},
		{"generic capped", errors.New("boom"), 30, 5 * time.Minute},
		{"negative attempt", errors.New("boom"), -3, 5 * time.Second},
		{"rate limit", &APIError{StatusCode: 429}, 0, 60 * time.Second},
		{"rate limit capped", &APIError{StatusCode: 429}, 8, 15 * time.Minute},
		{"quota", &APIError{StatusCode: 429, IsPermanent: true}, 0, time.Hour},
		{"quota capped", &APIError{StatusCode: 429, IsPermanent: true}, 9, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay(%v, %d) = %v, want %v", tt.err, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestProviderRegistry(t *testing.T) {
	t.Parallel()

	r := NewProviderRegistry()
	RegisterOpenAI(r)

	if _, err := r.GetProvider("openai", ProviderConfig{}); err == nil {
		t.Error("missing api key should fail")
	}
	p, err := r.GetProvider("openai", ProviderConfig{APIKey: "sk-test"})
	if err != nil || p == nil {
		t.Fatalf("GetProvider: %v", err)
	}
	var notFound *ErrProviderNotFound
	if _, err := r.GetProvider("missing", ProviderConfig{}); !errors.As(err, &notFound) {
		t.Errorf("err = %v, want ErrProviderNotFound", err)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()

	if got := SanitizeAPIKey("sk-1234567890abcd"); got != "sk-1"+RedactedValue+"abcd" {
		t.Errorf("SanitizeAPIKey = %q", got)
	}
	if got := SanitizeAPIKey("short"); got != RedactedValue {
		t.Errorf("SanitizeAPIKey(short) = %q", got)
	}
}
