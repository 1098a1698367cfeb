// Package storetest provides an in-memory Store used by handler and
// service tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kleio-labs/threadchat/internal/store"
)

type FakeStore struct {
	mu sync.Mutex

	users    map[int64]*store.User
	threads  map[int64]*store.Thread
	messages []store.Message

	nextUserID    int64
	nextThreadID  int64
	nextMessageID int64

	// WriteCount counts every mutating call, letting tests assert that
	// rejected requests never touched the store.
	WriteCount int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		users:   make(map[int64]*store.User),
		threads: make(map[int64]*store.Thread),
	}
}

func (f *FakeStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCount++
	for _, u := range f.users {
		if u.Email == email {
			return nil, fmt.Errorf("duplicate email %s", email)
		}
	}
	f.nextUserID++
	u := &store.User{
		ID:           f.nextUserID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[u.ID] = u
	return copyUser(u), nil
}

func (f *FakeStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (f *FakeStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (f *FakeStore) CreateThread(ctx context.Context, ownerUserID int64, title *string) (*store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCount++
	f.nextThreadID++
	t := &store.Thread{
		ID:          f.nextThreadID,
		Title:       title,
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now(),
	}
	f.threads[t.ID] = t
	return copyThread(t), nil
}

func (f *FakeStore) GetThread(ctx context.Context, threadID, ownerUserID int64) (*store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return copyThread(t), nil
}

func (f *FakeStore) OwnedThreadIDs(ctx context.Context, ownerUserID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := int64(1); id <= f.nextThreadID; id++ {
		if t, ok := f.threads[id]; ok && t.OwnerUserID == ownerUserID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *FakeStore) UpdateThreadTitle(ctx context.Context, threadID, ownerUserID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCount++
	t, ok := f.threads[threadID]
	if !ok || t.OwnerUserID != ownerUserID {
		return fmt.Errorf("thread not found or not owned by user, title not updated")
	}
	t.Title = &title
	return nil
}

func (f *FakeStore) DeleteThreadsByOwner(ctx context.Context, ownerUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCount++
	for id, t := range f.threads {
		if t.OwnerUserID != ownerUserID {
			continue
		}
		delete(f.threads, id)
		kept := f.messages[:0]
		for _, m := range f.messages {
			if m.ThreadID != id {
				kept = append(kept, m)
			}
		}
		f.messages = kept
	}
	return nil
}

func (f *FakeStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCount++
	if _, ok := f.threads[msg.ThreadID]; !ok {
		return fmt.Errorf("thread %d does not exist", msg.ThreadID)
	}
	f.nextMessageID++
	msg.ID = f.nextMessageID
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, *msg)
	return nil
}

// Messages returns a snapshot of every stored message.
func (f *FakeStore) Messages() []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *FakeStore) Close() error { return nil }

func copyUser(u *store.User) *store.User {
	c := *u
	return &c
}

func copyThread(t *store.Thread) *store.Thread {
	c := *t
	if t.Title != nil {
		title := *t.Title
		c.Title = &title
	}
	return &c
}
