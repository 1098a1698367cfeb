package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"go.uber.org/zap"
)

type PostgresStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewPostgresStore(ctx context.Context, databaseURL string, log *zap.SugaredLogger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db, log: log}
	s.initSchema(ctx)
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// initSchema is best-effort: the tables usually exist already (they are also
// followed by the replication service), so a failure here logs and continues.
func (s *PostgresStore) initSchema(ctx context.Context) {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        email TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        password_hash TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS threads (
        id BIGSERIAL PRIMARY KEY,
        title TEXT,
        owner_user_id BIGINT NOT NULL REFERENCES users (id),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        thread_id BIGINT NOT NULL REFERENCES threads (id) ON DELETE CASCADE,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.log.Warnw("schema initialization failed, continuing", "error", err)
	}
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3) RETURNING id, email, name, password_hash, created_at",
		email, name, passwordHash,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1",
		email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1",
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Thread methods

func (s *PostgresStore) CreateThread(ctx context.Context, ownerUserID int64, title *string) (*Thread, error) {
	var thread Thread
	var dbTitle sql.NullString
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO threads (title, owner_user_id) VALUES ($1, $2) RETURNING id, title, owner_user_id, created_at",
		title, ownerUserID,
	).Scan(&thread.ID, &dbTitle, &thread.OwnerUserID, &thread.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thread: %w", err)
	}
	if dbTitle.Valid {
		thread.Title = &dbTitle.String
	}
	return &thread, nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID, ownerUserID int64) (*Thread, error) {
	var thread Thread
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, owner_user_id, created_at FROM threads WHERE id = $1 AND owner_user_id = $2",
		threadID, ownerUserID,
	).Scan(&thread.ID, &title, &thread.OwnerUserID, &thread.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found or not owned
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	if title.Valid {
		thread.Title = &title.String
	}
	return &thread, nil
}

func (s *PostgresStore) OwnedThreadIDs(ctx context.Context, ownerUserID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM threads WHERE owner_user_id = $1 ORDER BY id",
		ownerUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned threads: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) UpdateThreadTitle(ctx context.Context, threadID, ownerUserID int64, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE threads SET title = $1 WHERE id = $2 AND owner_user_id = $3",
		title, threadID, ownerUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("thread not found or not owned by user, title not updated")
	}
	return nil
}

func (s *PostgresStore) DeleteThreadsByOwner(ctx context.Context, ownerUserID int64) error {
	// Messages cascade from the thread foreign key.
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM threads WHERE owner_user_id = $1",
		ownerUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete threads: %w", err)
	}
	return nil
}

// Message methods

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *Message) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO messages (thread_id, role, content) VALUES ($1, $2, $3) RETURNING id, created_at",
		msg.ThreadID, msg.Role, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}
