// internal/common/database/schema.go
// Tables consumed by the dating, lobby and messaging stores.
// Applied at startup when AUTO_MIGRATE is set, by cmd/seed, and by tests.

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT UNIQUE,
		hashed_password TEXT,
		username TEXT NOT NULL,
		gender TEXT NOT NULL,
		university_id BIGINT NOT NULL DEFAULT 1,
		profile_picture TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS user_metadata (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS user_discovery_pool (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		match_queue TEXT NOT NULL DEFAULT '[]',
		already_interacted TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id BIGSERIAL PRIMARY KEY,
		liker_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		liked_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		liked BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (liker_id <> liked_id)
	)`,
	`CREATE INDEX IF NOT EXISTS likes_pair_idx ON likes (liker_id, liked_id)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		user1_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user2_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (user1_id <> user2_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS matches_pair_idx
		ON matches (LEAST(user1_id, user2_id), GREATEST(user1_id, user2_id))`,
	`CREATE TABLE IF NOT EXISTS chats (
		id BIGSERIAL PRIMARY KEY,
		last_message_id UUID,
		last_message_media_type TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		unseen_count INTEGER NOT NULL DEFAULT 0,
		last_seen_message_id UUID,
		last_seen_at TIMESTAMPTZ,
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_participants_user_idx ON chat_participants (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message TEXT NOT NULL DEFAULT '',
		reply_id UUID,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, timestamp DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS media_files (
		id BIGSERIAL PRIMARY KEY,
		message_id UUID NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		file_key TEXT NOT NULL,
		media_type TEXT NOT NULL,
		size_bytes BIGINT,
		metadata JSONB NOT NULL DEFAULT '{}',
		blurhash TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE,
		hashed_password TEXT,
		username TEXT NOT NULL,
		gender TEXT NOT NULL,
		university_id INTEGER NOT NULL DEFAULT 1,
		profile_picture TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS user_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS user_discovery_pool (
		user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		match_queue TEXT NOT NULL DEFAULT '[]',
		already_interacted TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		liker_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		liked_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		liked BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (liker_id <> liked_id)
	)`,
	`CREATE INDEX IF NOT EXISTS likes_pair_idx ON likes (liker_id, liked_id)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user1_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user2_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (user1_id <> user2_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS matches_pair_idx
		ON matches (min(user1_id, user2_id), max(user1_id, user2_id))`,
	`CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_message_id TEXT,
		last_message_media_type TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		unseen_count INTEGER NOT NULL DEFAULT 0,
		last_seen_message_id TEXT,
		last_seen_at TIMESTAMP,
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_participants_user_idx ON chat_participants (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message TEXT NOT NULL DEFAULT '',
		reply_id TEXT,
		timestamp TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, timestamp DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS media_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		file_key TEXT NOT NULL,
		media_type TEXT NOT NULL,
		size_bytes INTEGER,
		metadata TEXT NOT NULL DEFAULT '{}',
		blurhash TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates any missing table in the dialect of db.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	statements := sqliteSchema
	if IsPostgres(db) {
		statements = postgresSchema
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
