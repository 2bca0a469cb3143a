package request

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/benvon/ai-task/internal/models"
	"github.com/google/uuid"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr strips port", nil, "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.1", "10.0.0.1"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			if got := ClientIP(r); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		target string
		want   string
	}{
		{"header", "Bearer abc", "/", "abc"},
		{"lowercase scheme", "bearer abc", "/", "abc"},
		{"query param", "", "/ws?token=xyz", "xyz"},
		{"header wins", "Bearer abc", "/ws?token=xyz", "abc"},
		{"basic auth ignored", "Basic dXNlcg==", "/", ""},
		{"none", "", "/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(r); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithUser(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Email: "a@example.com"}
	r := httptest.NewRequest("GET", "/", nil)
	if UserFromContext(r) != nil {
		t.Fatal("expected no user on a bare request")
	}

	r = r.WithContext(WithUser(r.Context(), user))
	if got := UserFromContext(r); got != user {
		t.Errorf("UserFromContext() = %v, want %v", got, user)
	}

	r = r.WithContext(context.WithValue(context.Background(), userContextKey, "not a user"))
	if UserFromContext(r) != nil {
		t.Error("wrong type should yield nil")
	}
}
