package ai

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
	// asciiSpace is trimmed byte-wise so a fragment boundary never changes the result
	asciiSpace = " \t\r\n"
)

// thinkFilter separates a reasoning preamble from the answer in text that
// may arrive in arbitrary fragments. When an opening marker precedes the
// first closing marker, the answer is what follows that closing marker.
// Otherwise the whole text is the answer. Output is trimmed, and feeding a
// text in any split produces the same concatenated output as feeding it whole.
//
// Text is held until the first closing marker arrives or the input ends.
type thinkFilter struct {
	held    strings.Builder
	scanned int  // bytes of held already searched for the closing marker
	passing bool // the answer has begun and fragments stream through
	started bool
	space   string // whitespace held until more visible text arrives
}

// Write consumes a fragment and returns the answer text it released.
func (f *thinkFilter) Write(fragment string) string {
	var out strings.Builder
	if f.passing {
		f.visible(&out, fragment)
		return out.String()
	}

	f.held.WriteString(fragment)
	s := f.held.String()
	from := max(f.scanned-len(thinkClose)+1, 0)
	idx := strings.Index(s[from:], thinkClose)
	if idx < 0 {
		f.scanned = len(s)
		return ""
	}
	idx += from

	f.passing = true
	f.held.Reset()
	f.scanned = 0
	if strings.Contains(s[:idx], thinkOpen) {
		f.visible(&out, s[idx+len(thinkClose):])
	} else {
		f.visible(&out, s)
	}
	return out.String()
}

// Flush releases held text at the end of input. Trailing whitespace is dropped.
func (f *thinkFilter) Flush() string {
	var out strings.Builder
	if !f.passing {
		f.visible(&out, f.held.String())
		f.held.Reset()
		f.scanned = 0
	}
	f.space = ""
	return out.String()
}

func (f *thinkFilter) visible(out *strings.Builder, text string) {
	if !f.started {
		text = strings.TrimLeft(text, asciiSpace)
	}
	if text == "" {
		return
	}
	body := strings.TrimRight(text, asciiSpace)
	if body == "" {
		f.space += text
		return
	}
	out.WriteString(f.space)
	out.WriteString(body)
	f.space = text[len(body):]
	f.started = true
}

// StripThinking returns the answer part of a complete text, trimmed.
func StripThinking(text string) string {
	var f thinkFilter
	return f.Write(text) + f.Flush()
}
