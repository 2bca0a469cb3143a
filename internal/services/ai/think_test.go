package ai

import (
	"strings"
	"testing"
)

func TestStripThinking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "reasoning then answer", input: "<think>reasoning</think>Final answer", want: "Final answer"},
		{name: "text before reasoning dropped", input: "Intro<think>reasoning</think>Final answer", want: "Final answer"},
		{name: "no markers", input: "  plain answer \n", want: "plain answer"},
		{name: "whitespace after block", input: "<think>a\nb</think>\n\nHello", want: "Hello"},
		{name: "unclosed block kept", input: "<think>unterminated but this is the whole reply", want: "<think>unterminated but this is the whole reply"},
		{name: "close without open kept", input: "reasoning leaked</think>Final answer", want: "reasoning leaked</think>Final answer"},
		{name: "only reasoning", input: "<think>nothing to say</think>", want: ""},
		{name: "later markers belong to the answer", input: "<think>1</think>A <think>", want: "A <think>"},
		{name: "angle brackets kept", input: "a < b and <thin> tags", want: "a < b and <thin> tags"},
		{name: "inner whitespace kept", input: "line one\n\nline two", want: "line one\n\nline two"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripThinking(tt.input); got != tt.want {
				t.Errorf("StripThinking(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// feed runs the filter over the given fragments and concatenates its output.
func feed(fragments []string) string {
	var f thinkFilter
	var b strings.Builder
	for _, frag := range fragments {
		b.WriteString(f.Write(frag))
	}
	b.WriteString(f.Flush())
	return b.String()
}

func TestThinkFilter_SplitInvariant(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"<think>reasoning</think>Final answer",
		"Intro<think>reasoning</think>Final answer",
		"reasoning leaked</think>Final answer",
		"<think>unterminated but this is the whole reply",
		"  <think> a </think>  Hello  world  ",
		"x</think>y<think>z",
		"a <th b </thi c <think>d</think e</think> f",
		"<<think>>x</think>>",
		"\n\n answer \n\n",
	}

	for _, input := range inputs {
		want := StripThinking(input)

		for i := 0; i <= len(input); i++ {
			for j := i; j <= len(input); j++ {
				got := feed([]string{input[:i], input[i:j], input[j:]})
				if got != want {
					t.Fatalf("split %q at %d,%d: got %q, want %q", input, i, j, got, want)
				}
			}
		}

		bytes := make([]string, 0, len(input))
		for k := 0; k < len(input); k++ {
			bytes = append(bytes, input[k:k+1])
		}
		if got := feed(bytes); got != want {
			t.Errorf("byte by byte %q: got %q, want %q", input, got, want)
		}
	}
}

func TestThinkFilter_StreamsAfterReasoning(t *testing.T) {
	t.Parallel()

	var f thinkFilter
	if got := f.Write("<think>plan"); got != "" {
		t.Errorf("reasoning released %q", got)
	}
	if got := f.Write("</think>Hello"); got != "Hello" {
		t.Errorf("after closing marker got %q, want %q", got, "Hello")
	}
	if got := f.Write(" world"); got != " world" {
		t.Errorf("answer fragment got %q, want %q", got, " world")
	}
}
