package prompt

import (
	"strings"

	"github.com/mosaicchat/mosaic/internal/blocks"
	"github.com/mosaicchat/mosaic/internal/models"
)

// Build assembles the single text prompt sent to the generation service:
// system prompt, blank line, "Conversation history:" header, the last
// `window` history entries rendered one per line, blank line, the new user
// utterance, blank line, trailing "Assistant:" cue. The exact layout is the
// whole instruction the model sees, so it must not change casually.
//
// An empty systemPrompt falls back to the default; a non-positive window is
// treated as a misconfiguration and falls back to the default window.
func Build(systemPrompt string, history []models.Message, window int, utterance string) string {
	if systemPrompt == "" {
		systemPrompt = blocks.DefaultSystemPrompt
	}
	if window <= 0 {
		window = blocks.DefaultMemoryWindow
	}

	recent := history
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		role := "Assistant"
		if m.SenderType == models.SenderUser {
			role = "User"
		}
		lines = append(lines, role+": "+m.Content)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nConversation history:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nUser: ")
	b.WriteString(utterance)
	b.WriteString("\n\nAssistant:")
	return b.String()
}
