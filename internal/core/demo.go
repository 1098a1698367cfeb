package core

import (
	"context"
	"fmt"
	"strings"
)

// DemoCompleter is the designed degradation used when no LLM credential is
// configured: a deterministic canned echo of the last user message, streamed
// as exactly one chunk.
type DemoCompleter struct{}

func (DemoCompleter) StreamCompletion(ctx context.Context, msgs []ChatMessage, model string, onDelta func(string) error) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("prompt history is empty for chat completion")
	}
	last := lastUserContent(msgs)

	reply := fmt.Sprintf("This is a demo reply. You said: %q. Set GEMINI_API_KEY to get model-generated replies.", last)
	if err := onDelta(reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (DemoCompleter) GenerateTitle(ctx context.Context, basis string) (string, error) {
	words := strings.Fields(basis)
	if len(words) > 5 {
		words = words[:5]
	}
	if len(words) == 0 {
		return "New chat", nil
	}
	return strings.Join(words, " "), nil
}
