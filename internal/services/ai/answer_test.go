package ai

import (
	"context"
	"errors"
	"testing"
)

func TestAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		err     error
		want    string
		wantErr bool
	}{
		{name: "strips reasoning", output: "<think>reasoning</think>Final answer", want: "Final answer"},
		{name: "text before reasoning dropped", output: "Intro<think>reasoning</think>Final answer", want: "Final answer"},
		{name: "close marker alone keeps full text", output: "reasoning leaked</think>Final answer", want: "reasoning leaked</think>Final answer"},
		{name: "unclosed reasoning keeps full text", output: "<think>unterminated but this is the whole reply", want: "<think>unterminated but this is the whole reply"},
		{name: "plain text", output: "Just text", want: "Just text"},
		{name: "empty becomes no answer", output: "", want: NoAnswer},
		{name: "reasoning only becomes no answer", output: "<think>hmm</think>", want: NoAnswer},
		{name: "provider error", err: errors.New("timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := &fakeProvider{completeFn: func([]Message) (string, error) { return tt.output, tt.err }}
			g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})

			got, err := g.Answer(context.Background(), "What next?", "Task context")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Answer = %q, want %q", got, tt.want)
			}

			msgs := provider.lastMsgs
			if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[0].Content != "Task context" ||
				msgs[1].Role != RoleUser || msgs[1].Content != "What next?" {
				t.Errorf("messages = %+v, want system context then user prompt", msgs)
			}
		})
	}
}

func TestAnswerStream_ReassemblesToAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragments []string
	}{
		{name: "split reasoning", fragments: []string{"<thi", "nk>reason", "ing</th", "ink>Final", " answer"}},
		{name: "no reasoning", fragments: []string{"Hel", "lo ", "world", "\n"}},
		{name: "leading space", fragments: []string{"  ", "\nAnswer", "  "}},
		{name: "empty stream", fragments: nil},
		{name: "reasoning only", fragments: []string{"<think>", "a", "</think>", "  "}},
		{name: "unclosed reasoning", fragments: []string{"<think>whole ", "reply"}},
		{name: "intro before reasoning", fragments: []string{"Intro", "<think>r</think>", "Final"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			full := ""
			for _, f := range tt.fragments {
				full += f
			}
			provider := &fakeProvider{
				fragments:  tt.fragments,
				completeFn: func([]Message) (string, error) { return full, nil },
			}
			g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})
			ctx := context.Background()

			want, err := g.Answer(ctx, "q", "c")
			if err != nil {
				t.Fatalf("Answer: %v", err)
			}
			got, err := CollectStream(g.AnswerStream(ctx, "q", "c"))
			if err != nil {
				t.Fatalf("AnswerStream: %v", err)
			}
			if got != want {
				t.Errorf("stream = %q, answer = %q", got, want)
			}
		})
	}
}

func TestAnswerStream_Error(t *testing.T) {
	t.Parallel()

	errStream := errors.New("connection reset")
	provider := &fakeProvider{fragments: []string{"partial"}, streamErr: errStream}
	g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})

	got, err := CollectStream(g.AnswerStream(context.Background(), "q", "c"))
	if !errors.Is(err, errStream) {
		t.Fatalf("err = %v, want stream error", err)
	}
	// held text is not released when the stream fails
	if got != "" {
		t.Errorf("fragments before the error = %q, want none", got)
	}
}

func TestAnswerStream_StopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fragments: []string{"<think>r</think>", "one ", "two ", "three"}}
	g := NewContextGenerator(provider, newFakeCache(), &fakeHistory{})

	count := 0
	for range g.AnswerStream(context.Background(), "q", "c") {
		count++
		break
	}
	if count != 1 {
		t.Errorf("consumed %d fragments, want 1", count)
	}
}
