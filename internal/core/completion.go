package core

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kleio-labs/threadchat/internal/store"
)

// ChatMessage is the wire form of a conversation turn sent by the client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces assistant replies. StreamCompletion calls onDelta for
// every text fragment as it arrives and returns the full accumulated text
// after the stream's natural end; onDelta returning an error aborts the
// stream (client went away).
type Completer interface {
	StreamCompletion(ctx context.Context, msgs []ChatMessage, model string, onDelta func(string) error) (string, error)
	GenerateTitle(ctx context.Context, basis string) (string, error)
}

// CompletionService relays streamed replies and persists the final
// assistant message for authenticated threads.
type CompletionService struct {
	store     store.Store
	completer Completer
	chat      *ChatService
	log       *zap.SugaredLogger
}

func NewCompletionService(st store.Store, completer Completer, chat *ChatService, log *zap.SugaredLogger) *CompletionService {
	return &CompletionService{store: st, completer: completer, chat: chat, log: log}
}

// StreamThreadReply checks ownership, streams the reply through onDelta and
// persists the complete text as one assistant message after the stream ends.
// On a stream error nothing is persisted, even if fragments were already
// delivered.
func (s *CompletionService) StreamThreadReply(ctx context.Context, userID, threadID int64, msgs []ChatMessage, model string, onDelta func(string) error) (*store.Message, error) {
	if len(msgs) == 0 {
		return nil, errors.New("messages must not be empty")
	}

	thread, err := s.store.GetThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrThreadNotOwned
	}

	full, err := s.completer.StreamCompletion(ctx, msgs, model, onDelta)
	if err != nil {
		return nil, err
	}

	assistantMsg := &store.Message{
		ThreadID: threadID,
		Role:     store.RoleAssistant,
		Content:  full,
	}
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	if thread.Title == nil {
		if basis := lastUserContent(msgs); basis != "" {
			go s.chat.generateAndSaveThreadTitle(threadID, userID, basis)
		}
	}

	return assistantMsg, nil
}

// StreamGuestReply streams a reply with no session, no thread and no
// persistence.
func (s *CompletionService) StreamGuestReply(ctx context.Context, msgs []ChatMessage, model string, onDelta func(string) error) error {
	if len(msgs) == 0 {
		return errors.New("messages must not be empty")
	}
	_, err := s.completer.StreamCompletion(ctx, msgs, model, onDelta)
	return err
}

func lastUserContent(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == store.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
