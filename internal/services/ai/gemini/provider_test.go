package gemini

import (
	"testing"

	"github.com/benvon/ai-task/internal/services/ai"
	"google.golang.org/genai"
)

func TestRequest(t *testing.T) {
	t.Parallel()

	contents, cfg := request([]ai.Message{
		{Role: ai.RoleSystem, Content: "ctx"},
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: "hello"},
	})

	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "ctx" {
		t.Fatalf("system instruction = %+v", cfg.SystemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2", len(contents))
	}
	if contents[0].Role != roleUser || contents[1].Role != roleModel {
		t.Errorf("roles = %q, %q", contents[0].Role, contents[1].Role)
	}

	_, cfg = request([]ai.Message{{Role: ai.RoleUser, Content: "hi"}})
	if cfg.SystemInstruction != nil {
		t.Error("no system message should leave SystemInstruction unset")
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "hidden", Thought: true}, {Text: "world"}}},
	}}}
	got, err := text(resp)
	if err != nil || got != "Hello world" {
		t.Errorf("text = %q, %v", got, err)
	}

	if _, err := text(&genai.GenerateContentResponse{}); err != ai.ErrNoChoices {
		t.Errorf("empty response err = %v, want ErrNoChoices", err)
	}

	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	if _, err := text(blocked); err != ErrBlocked {
		t.Errorf("blocked err = %v, want ErrBlocked", err)
	}
}

func TestRegister_RequiresKey(t *testing.T) {
	t.Parallel()

	r := ai.NewProviderRegistry()
	Register(r)
	if _, err := r.GetProvider("gemini", ai.ProviderConfig{}); err == nil {
		t.Error("expected error without api key")
	}
}
