package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kleio-labs/threadchat/internal/store"
	"github.com/kleio-labs/threadchat/internal/store/storetest"
)

// scriptedCompleter replays a fixed chunk sequence, optionally failing
// after the chunks were delivered.
type scriptedCompleter struct {
	chunks []string
	err    error
	title  string
}

func (c *scriptedCompleter) StreamCompletion(ctx context.Context, msgs []ChatMessage, model string, onDelta func(string) error) (string, error) {
	var full strings.Builder
	for _, chunk := range c.chunks {
		full.WriteString(chunk)
		if err := onDelta(chunk); err != nil {
			return "", err
		}
	}
	if c.err != nil {
		return "", c.err
	}
	return full.String(), nil
}

func (c *scriptedCompleter) GenerateTitle(ctx context.Context, basis string) (string, error) {
	if c.title == "" {
		return "", errors.New("no title scripted")
	}
	return c.title, nil
}

func newTestServices(completer Completer) (*storetest.FakeStore, *CompletionService) {
	st := storetest.NewFakeStore()
	log := zap.NewNop().Sugar()
	chat := NewChatService(st, completer, log)
	return st, NewCompletionService(st, completer, chat, log)
}

func ownedThread(t *testing.T, st *storetest.FakeStore, ownerID int64) *store.Thread {
	t.Helper()
	ctx := context.Background()
	_, err := st.CreateUser(ctx, "owner@example.com", "Owner", "x")
	require.NoError(t, err)
	title := "titled"
	thread, err := st.CreateThread(ctx, ownerID, &title)
	require.NoError(t, err)
	return thread
}

func TestStreamThreadReplyPersistsCompleteTextOnce(t *testing.T) {
	st, svc := newTestServices(&scriptedCompleter{chunks: []string{"Hi", " there"}})
	thread := ownedThread(t, st, 1)

	var deltas []string
	msg, err := svc.StreamThreadReply(context.Background(), 1, thread.ID,
		[]ChatMessage{{Role: "user", Content: "hello"}}, "",
		func(chunk string) error {
			deltas = append(deltas, chunk)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, deltas)
	require.NotNil(t, msg)
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, store.RoleAssistant, msg.Role)

	var assistantRows []store.Message
	for _, m := range st.Messages() {
		if m.Role == store.RoleAssistant {
			assistantRows = append(assistantRows, m)
		}
	}
	require.Len(t, assistantRows, 1, "exactly one assistant row, never partial rows")
	assert.Equal(t, "Hi there", assistantRows[0].Content)
}

func TestStreamThreadReplyPartialFailureNotPersisted(t *testing.T) {
	upstreamErr := errors.New("upstream hung up")
	st, svc := newTestServices(&scriptedCompleter{chunks: []string{"par", "tial"}, err: upstreamErr})
	thread := ownedThread(t, st, 1)

	delivered := 0
	_, err := svc.StreamThreadReply(context.Background(), 1, thread.ID,
		[]ChatMessage{{Role: "user", Content: "hello"}}, "",
		func(string) error {
			delivered++
			return nil
		})
	require.ErrorIs(t, err, upstreamErr)
	assert.Equal(t, 2, delivered, "fragments were already relayed before the failure")
	assert.Empty(t, st.Messages(), "no partial assistant message is persisted")
}

func TestStreamThreadReplyForeignThread(t *testing.T) {
	st, svc := newTestServices(&scriptedCompleter{chunks: []string{"nope"}})
	thread := ownedThread(t, st, 1)
	writesBefore := st.WriteCount

	_, err := svc.StreamThreadReply(context.Background(), 2, thread.ID,
		[]ChatMessage{{Role: "user", Content: "hello"}}, "",
		func(string) error {
			t.Fatal("no fragment may be streamed for a foreign thread")
			return nil
		})
	require.ErrorIs(t, err, ErrThreadNotOwned)
	assert.Equal(t, writesBefore, st.WriteCount, "no store write occurs")
}

func TestDemoModeSingleChunkEcho(t *testing.T) {
	st, svc := newTestServices(DemoCompleter{})
	thread := ownedThread(t, st, 1)

	chunks := 0
	var streamed string
	msg, err := svc.StreamThreadReply(context.Background(), 1, thread.ID,
		[]ChatMessage{{Role: "user", Content: "hello"}}, "",
		func(chunk string) error {
			chunks++
			streamed += chunk
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 1, chunks, "demo stream terminates after exactly one chunk")
	assert.Contains(t, msg.Content, `"hello"`, "canned reply embeds the submitted text")
	assert.Equal(t, streamed, msg.Content)

	messages := st.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, msg.Content, messages[0].Content)
}

func TestStreamGuestReplyDoesNotPersist(t *testing.T) {
	st, svc := newTestServices(DemoCompleter{})

	err := svc.StreamGuestReply(context.Background(),
		[]ChatMessage{{Role: "user", Content: "hi"}}, "",
		func(string) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, st.Messages())
	assert.Zero(t, st.WriteCount)
}

func TestStreamGuestReplyRequiresMessages(t *testing.T) {
	_, svc := newTestServices(DemoCompleter{})
	err := svc.StreamGuestReply(context.Background(), nil, "", func(string) error { return nil })
	require.Error(t, err)
}

func TestUntitledThreadGetsGeneratedTitle(t *testing.T) {
	completer := &scriptedCompleter{chunks: []string{"reply"}, title: "Quick greetings"}
	st := storetest.NewFakeStore()
	log := zap.NewNop().Sugar()
	chat := NewChatService(st, completer, log)
	svc := NewCompletionService(st, completer, chat, log)

	ctx := context.Background()
	_, err := st.CreateUser(ctx, "owner@example.com", "Owner", "x")
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, 1, nil) // untitled
	require.NoError(t, err)

	_, err = svc.StreamThreadReply(ctx, 1, thread.ID,
		[]ChatMessage{{Role: "user", Content: "hello there"}}, "",
		func(string) error { return nil })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := st.GetThread(ctx, thread.ID, 1)
		return err == nil && got != nil && got.Title != nil && *got.Title == "Quick greetings"
	}, 2*time.Second, 10*time.Millisecond)
}
