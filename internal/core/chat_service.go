package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kleio-labs/threadchat/internal/store"
)

// ErrThreadNotOwned is returned when a referenced thread does not exist or
// belongs to another user. The two cases are deliberately indistinguishable.
var ErrThreadNotOwned = errors.New("thread not found or not owned by caller")

// ChatService implements the thread/message mutations and the
// ownership-scoped queries behind the sync proxy filters.
type ChatService struct {
	store     store.Store
	completer Completer
	log       *zap.SugaredLogger
}

func NewChatService(st store.Store, completer Completer, log *zap.SugaredLogger) *ChatService {
	return &ChatService{store: st, completer: completer, log: log}
}

func (s *ChatService) CreateThread(ctx context.Context, userID int64, title *string) (*store.Thread, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		title = nil
	}
	return s.store.CreateThread(ctx, userID, title)
}

// AddMessage appends a user message to a thread the caller owns.
func (s *ChatService) AddMessage(ctx context.Context, userID, threadID int64, content string) (*store.Message, error) {
	thread, err := s.store.GetThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrThreadNotOwned
	}

	msg := &store.Message{
		ThreadID: threadID,
		Role:     store.RoleUser,
		Content:  content,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) DeleteAllThreads(ctx context.Context, userID int64) error {
	return s.store.DeleteThreadsByOwner(ctx, userID)
}

// OwnedThreadIDs backs both direct ownership checks and the sync-proxy
// row filters.
func (s *ChatService) OwnedThreadIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.OwnedThreadIDs(ctx, userID)
}

// generateAndSaveThreadTitle runs in the background after the first
// exchange on an untitled thread. Failures are logged and dropped.
func (s *ChatService) generateAndSaveThreadTitle(threadID, userID int64, basisContent string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := s.completer.GenerateTitle(ctx, basisContent)
	if err != nil {
		s.log.Warnw("failed to generate thread title", "thread_id", threadID, "error", err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	if err := s.store.UpdateThreadTitle(ctx, threadID, userID, title); err != nil {
		s.log.Warnw("failed to save generated thread title", "thread_id", threadID, "title", title, "error", err)
		return
	}
	s.log.Infow("generated thread title", "thread_id", threadID, "title", title)
}
