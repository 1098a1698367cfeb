package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/kleio-labs/threadchat/internal/store"
)

const (
	chatSystemInstruction = "You are a helpful chat assistant. Answer the user's questions concisely and accurately. " +
		"If you do not know the answer, say so clearly instead of making something up."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	defaultTitleModelName = "gemini-1.5-flash-latest"
)

// GeminiCompleter streams completions from the Gemini API.
type GeminiCompleter struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiCompleter(ctx context.Context, apiKey, defaultModel string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiCompleter{client: client, defaultModel: defaultModel}, nil
}

func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

func (g *GeminiCompleter) StreamCompletion(ctx context.Context, msgs []ChatMessage, model string, onDelta func(string) error) (string, error) {
	if model == "" {
		model = g.defaultModel
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("prompt history is empty for chat completion")
	}
	last := msgs[len(msgs)-1]
	if last.Role != store.RoleUser {
		return "", fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	m := g.client.GenerativeModel(model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	session := m.StartChat()
	for _, msg := range msgs[:len(msgs)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	var full strings.Builder
	iter := session.SendMessageStream(ctx, genai.Text(last.Content))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("gemini streaming request failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			txt, ok := part.(genai.Text)
			if !ok {
				continue
			}
			chunk := string(txt)
			full.WriteString(chunk)
			if err := onDelta(chunk); err != nil {
				return "", err
			}
		}
	}

	return full.String(), nil
}

func (g *GeminiCompleter) GenerateTitle(ctx context.Context, basis string) (string, error) {
	m := g.client.GenerativeModel(defaultTitleModelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	m.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", basis)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no title generated (empty response)")
	}

	var title strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			title.WriteString(string(txt))
		}
	}
	if title.Len() == 0 {
		return "", fmt.Errorf("generated title was empty")
	}
	return strings.Trim(title.String(), "\"'\n\r\t ."), nil
}

func geminiRole(role string) string {
	if role == store.RoleAssistant {
		return "model"
	}
	return "user"
}
