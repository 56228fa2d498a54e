// Package dbtest opens migrated in-memory sqlite stores and seeds fixtures for package tests.
package dbtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
)

// NewDB returns a migrated in-memory database closed at test cleanup.
// The pool is pinned to one connection so every statement sees the same memory database.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

// User is a seeded account.
type User struct {
	ID               int64
	Username         string
	Gender           string
	InterestedGender string
	UniversityID     int64
}

// CreateUser inserts u and, when set, its interested_gender preference.
func CreateUser(t *testing.T, db *sqlx.DB, u User) {
	t.Helper()
	if u.UniversityID == 0 {
		u.UniversityID = 1
	}
	if u.Username == "" {
		u.Username = "user"
	}

	_, err := db.Exec(db.Rebind(`
		INSERT INTO users (id, username, gender, university_id, profile_picture)
		VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Gender, u.UniversityID, `{"file_key":"avatars/`+u.Username+`.jpg"}`)
	require.NoError(t, err)

	if u.InterestedGender != "" {
		SetPreference(t, db, u.ID, "interested_gender", u.InterestedGender)
	}
}

// SetPreference stores one preference pair for userID.
func SetPreference(t *testing.T, db *sqlx.DB, userID int64, key, value string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO user_preferences (user_id, key, value) VALUES (?, ?, ?)`), userID, key, value)
	require.NoError(t, err)
}

// SetMetadata stores one profile attribute for userID.
func SetMetadata(t *testing.T, db *sqlx.DB, userID int64, key, value string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO user_metadata (user_id, key, value) VALUES (?, ?, ?)`), userID, key, value)
	require.NoError(t, err)
}

// SetPool overwrites the discovery pool of userID.
func SetPool(t *testing.T, db *sqlx.DB, userID int64, queue, interacted []int64) {
	t.Helper()
	if queue == nil {
		queue = []int64{}
	}
	if interacted == nil {
		interacted = []int64{}
	}
	q, err := json.Marshal(queue)
	require.NoError(t, err)
	a, err := json.Marshal(interacted)
	require.NoError(t, err)

	_, err = db.Exec(db.Rebind(`
		INSERT INTO user_discovery_pool (user_id, match_queue, already_interacted)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET match_queue = excluded.match_queue, already_interacted = excluded.already_interacted`),
		userID, string(q), string(a))
	require.NoError(t, err)
}

// CreateMatch inserts a Match row.
func CreateMatch(t *testing.T, db *sqlx.DB, a, b int64) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO matches (user1_id, user2_id) VALUES (?, ?)`), a, b)
	require.NoError(t, err)
}

// CreateChat inserts a chat with explicit id and its two participants.
func CreateChat(t *testing.T, db *sqlx.DB, chatID, a, b int64) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO chats (id) VALUES (?)`), chatID)
	require.NoError(t, err)
	for _, uid := range []int64{a, b} {
		_, err = db.Exec(db.Rebind(`INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)`), chatID, uid)
		require.NoError(t, err)
	}
}

// CreateMessage inserts a message with an explicit id and timestamp.
func CreateMessage(t *testing.T, db *sqlx.DB, id string, chatID, senderID int64, body string, ts time.Time) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO messages (id, chat_id, sender_id, message, timestamp)
		VALUES (?, ?, ?, ?, ?)`), id, chatID, senderID, body, ts.UTC())
	require.NoError(t, err)
}

// Count runs a COUNT(*) query.
func Count(t *testing.T, db *sqlx.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(query), args...))
	return n
}
