package prompt

import (
	"strings"
	"testing"

	"github.com/mosaicchat/mosaic/internal/models"
)

func msg(sender, content string) models.Message {
	return models.Message{SenderType: sender, Content: content}
}

func TestBuildExactLayout(t *testing.T) {
	history := []models.Message{
		msg("user", "Hi"),
		msg("agent", "Hello"),
	}

	got := Build("You are terse.", history, 10, "Bye")
	want := "You are terse.\n\nConversation history:\nUser: Hi\nAssistant: Hello\n\nUser: Bye\n\nAssistant:"
	if got != want {
		t.Errorf("Build =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildDeterministic(t *testing.T) {
	history := []models.Message{msg("user", "Hi"), msg("agent", "Hello")}
	a := Build("You are terse.", history, 1, "Bye")
	b := Build("You are terse.", history, 1, "Bye")
	if a != b {
		t.Error("identical inputs produced different prompts")
	}
	if !strings.Contains(a, "Assistant: Hello") {
		t.Errorf("window of 1 should keep only the last entry, got:\n%s", a)
	}
	if strings.Contains(a, "User: Hi\n") {
		t.Errorf("window of 1 should drop older entries, got:\n%s", a)
	}
}

func TestBuildWindowTruncation(t *testing.T) {
	history := []models.Message{
		msg("user", "one"),
		msg("agent", "two"),
		msg("user", "three"),
		msg("agent", "four"),
	}

	tests := []struct {
		window    int
		wantLines []string
	}{
		{1, []string{"Assistant: four"}},
		{2, []string{"User: three", "Assistant: four"}},
		{4, []string{"User: one", "Assistant: two", "User: three", "Assistant: four"}},
		{99, []string{"User: one", "Assistant: two", "User: three", "Assistant: four"}},
	}

	for _, tt := range tests {
		got := Build("sys", history, tt.window, "next")
		block := historyBlock(t, got)
		lines := strings.Split(block, "\n")
		if len(lines) != len(tt.wantLines) {
			t.Errorf("window %d: %d history lines, want %d:\n%s", tt.window, len(lines), len(tt.wantLines), block)
			continue
		}
		for i, want := range tt.wantLines {
			if lines[i] != want {
				t.Errorf("window %d line %d = %q, want %q", tt.window, i, lines[i], want)
			}
		}
	}
}

// historyBlock extracts the rendered lines between the header and the new
// user utterance.
func historyBlock(t *testing.T, prompt string) string {
	t.Helper()
	_, after, ok := strings.Cut(prompt, "Conversation history:\n")
	if !ok {
		t.Fatalf("prompt missing history header:\n%s", prompt)
	}
	block, _, ok := strings.Cut(after, "\n\nUser: ")
	if !ok {
		t.Fatalf("prompt missing user utterance separator:\n%s", prompt)
	}
	return block
}

func TestBuildDefaults(t *testing.T) {
	got := Build("", nil, 0, "hello")
	if !strings.HasPrefix(got, "You are a helpful AI assistant.\n\n") {
		t.Errorf("empty system prompt should use the default, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "\n\nUser: hello\n\nAssistant:") {
		t.Errorf("prompt missing trailing cue, got:\n%s", got)
	}
}

func TestBuildNegativeWindowFallsBack(t *testing.T) {
	history := make([]models.Message, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, msg("user", "m"))
	}
	got := Build("sys", history, -1, "x")
	block := historyBlock(t, got)
	if n := len(strings.Split(block, "\n")); n != 10 {
		t.Errorf("negative window rendered %d lines, want default window of 10", n)
	}
}
