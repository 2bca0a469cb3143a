package ai

import (
	"fmt"
	"strings"

	"github.com/benvon/ai-task/internal/models"
)

const (
	// UpdateHistoryWindow is how many recent exchanges an update prompt shows
	UpdateHistoryWindow = 3
	// UpdatePreviewLength is how many characters of each response an update prompt keeps
	UpdatePreviewLength = 100
	// CreateHistoryLimit caps the exchanges included in a create prompt
	CreateHistoryLimit = 20
	// CreatePreviewLength caps each response included in a create prompt
	CreatePreviewLength = 500
	// ContextWordBudget is the requested context length in words
	ContextWordBudget = 400

	noHistoryNote = "No conversation history yet."
)

const contextSystemPrompt = "You maintain concise working context for a task so an assistant can answer questions about it. " +
	"Write plain prose and short lists. Never invent facts that are not in the task details or the conversation."

// BuildUpdatePrompt asks for the existing context to be merged with the most
// recent exchanges. It keeps what the user has written and folds new facts in.
func BuildUpdatePrompt(name, description, existing string, history []models.Exchange) string {
	var b strings.Builder
	b.WriteString("Update the working context of a task with new conversation.\n\n")
	writeTaskDetails(&b, name, description)

	b.WriteString("Current context:\n")
	b.WriteString(strings.TrimSpace(existing))
	b.WriteString("\n\n")

	b.WriteString("Recent conversation:\n")
	b.WriteString(FormatTranscript(lastN(history, UpdateHistoryWindow), UpdatePreviewLength))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Merge the new information into the current context. Do not replace it: keep every decision, "+
		"constraint and note already present unless the conversation explicitly supersedes it. "+
		"Return only the updated context, at most %d words.", ContextWordBudget)
	return b.String()
}

// BuildCreatePrompt asks for a context synthesized from task details and history.
func BuildCreatePrompt(name, description string, history []models.Exchange) string {
	var b strings.Builder
	b.WriteString("Create the working context of a task.\n\n")
	writeTaskDetails(&b, name, description)

	b.WriteString("Conversation history:\n")
	if len(history) == 0 {
		b.WriteString(noHistoryNote)
		b.WriteString("\n")
	} else {
		b.WriteString(FormatTranscript(lastN(history, CreateHistoryLimit), CreatePreviewLength))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Write a structured context of about %d words with these sections:\n"+
		"1. Objectives\n2. Constraints\n3. Current status\n4. Next steps\n"+
		"Return only the context.", ContextWordBudget)
	return b.String()
}

// DegradedContext is the placeholder used when no context could be generated
// and none existed before.
func DegradedContext(name, description string, cause error) string {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return fmt.Sprintf("Task: %s\nDescription: %s\n\nContext is temporarily unavailable (error: %s). "+
		"Answer from the task details above.", name, orNone(description), reason)
}

// FormatTranscript renders exchanges oldest first. Responses longer than
// previewLength characters are cut and marked with an ellipsis.
func FormatTranscript(history []models.Exchange, previewLength int) string {
	var b strings.Builder
	for i, e := range history {
		fmt.Fprintf(&b, "%d. User: %s\n   Assistant: %s\n", i+1,
			strings.TrimSpace(e.Prompt), truncateRunes(strings.TrimSpace(e.Response), previewLength))
	}
	return b.String()
}

func writeTaskDetails(b *strings.Builder, name, description string) {
	fmt.Fprintf(b, "Task name: %s\nTask description: %s\n\n", name, orNone(description))
}

func lastN(history []models.Exchange, n int) []models.Exchange {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
