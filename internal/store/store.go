package store

import "context"

// Store is the persistence surface the services depend on. The production
// implementation is Postgres; tests use the in-memory fake in storetest.
type Store interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)

	CreateThread(ctx context.Context, ownerUserID int64, title *string) (*Thread, error)
	// GetThread returns nil when the thread does not exist or is not owned
	// by ownerUserID; callers cannot distinguish the two cases.
	GetThread(ctx context.Context, threadID, ownerUserID int64) (*Thread, error)
	OwnedThreadIDs(ctx context.Context, ownerUserID int64) ([]int64, error)
	UpdateThreadTitle(ctx context.Context, threadID, ownerUserID int64, title string) error
	DeleteThreadsByOwner(ctx context.Context, ownerUserID int64) error

	CreateMessage(ctx context.Context, msg *Message) error

	Close() error
}
