// internal/messaging/repository.go

package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
)

type Repository interface {
	// Chats
	StartChat(ctx context.Context, userID, otherID int64) (int64, error)
	Partner(ctx context.Context, chatID, userID int64) (int64, error)
	SharesChat(ctx context.Context, a, b int64) (bool, error)

	// Messages
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	MarkLatestSeen(ctx context.Context, chatID, userID int64) (*SeenEvent, error)
	Messages(ctx context.Context, chatID, userID int64, before *Cursor) ([]*ChatMessage, bool, error)
	MessageTimestamp(ctx context.Context, chatID int64, messageID string) (time.Time, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Chat Methods

// StartChat consumes the Match between the pair and creates their chat in one transaction.
func (r *postgresRepository) StartChat(ctx context.Context, userID, otherID int64) (int64, error) {
	var chatID int64

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM matches
			WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)`),
			userID, otherID, otherID, userID)
		if err != nil {
			return fmt.Errorf("delete match: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete match: %w", err)
		}
		if n == 0 {
			return apperr.ErrNoMatch
		}

		if err := tx.QueryRowxContext(ctx, `INSERT INTO chats DEFAULT VALUES RETURNING id`).Scan(&chatID); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}

		for _, id := range []int64{userID, otherID} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO chat_participants (chat_id, user_id, unseen_count) VALUES (?, ?, 0)`),
				chatID, id); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Store("start chat", err)
	}
	return chatID, nil
}

// Partner returns the other participant of chatID. It fails with ErrNotFound for an
// unknown chat and ErrForbidden when userID is not a participant.
func (r *postgresRepository) Partner(ctx context.Context, chatID, userID int64) (int64, error) {
	_, other, err := members(ctx, r.db, chatID, userID)
	if err != nil {
		return 0, apperr.Store("load participants", err)
	}
	return other.UserID, nil
}

func (r *postgresRepository) SharesChat(ctx context.Context, a, b int64) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*)
		FROM chat_participants x
		JOIN chat_participants y ON y.chat_id = x.chat_id
		WHERE x.user_id = ? AND y.user_id = ?`), a, b)
	if err != nil {
		return false, apperr.Store("shares chat", err)
	}
	return n > 0, nil
}

// Message Methods

// SaveMessage stores msg with its media, bumps the recipient's unseen counter and moves the
// chat's last message pointer forward. msg.To is set to the other participant.
func (r *postgresRepository) SaveMessage(ctx context.Context, msg *ChatMessage) error {
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, other, err := members(ctx, tx, msg.ChatRoomID, msg.From)
		if err != nil {
			return err
		}
		msg.To = other.UserID

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO messages (id, chat_id, sender_id, message, reply_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`),
			msg.MessageID, msg.ChatRoomID, msg.From, msg.Message, msg.ReplyID, msg.Timestamp); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		var mediaType *string
		if msg.Media != nil {
			if err := insertMedia(ctx, tx, msg); err != nil {
				return err
			}
			mediaType = &msg.Media.MediaType
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE chat_participants SET unseen_count = unseen_count + 1
			WHERE chat_id = ? AND user_id = ?`), msg.ChatRoomID, msg.To); err != nil {
			return fmt.Errorf("increment unseen: %w", err)
		}

		// ids are UUIDv7, so a later commit of an older message leaves the pointer alone
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE chats SET last_message_id = ?, last_message_media_type = ?
			WHERE id = ? AND (last_message_id IS NULL OR last_message_id < ?)`),
			msg.MessageID, mediaType, msg.ChatRoomID, msg.MessageID); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
		return nil
	})
	return apperr.Store("save message", err)
}

// MarkLatestSeen marks the chat read for userID when its newest message came from the other
// participant and was not already marked. It returns the Seen event owed to that sender,
// or nil when nothing changed.
func (r *postgresRepository) MarkLatestSeen(ctx context.Context, chatID, userID int64) (*SeenEvent, error) {
	var event *SeenEvent

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		me, _, err := members(ctx, tx, chatID, userID)
		if err != nil {
			return err
		}

		var latest struct {
			ID       string `db:"id"`
			SenderID int64  `db:"sender_id"`
		}
		err = sqlx.GetContext(ctx, tx, &latest, tx.Rebind(`
			SELECT id, sender_id FROM messages
			WHERE chat_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1`), chatID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load latest message: %w", err)
		}

		if latest.SenderID == userID {
			return nil
		}
		if me.LastSeenMessageID != nil && *me.LastSeenMessageID == latest.ID {
			return nil
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE chat_participants
			SET last_seen_message_id = ?, unseen_count = 0, last_seen_at = ?
			WHERE chat_id = ? AND user_id = ?`),
			latest.ID, time.Now().UTC().Truncate(time.Microsecond), chatID, userID); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
		event = newSeenEvent(userID, latest.SenderID, latest.ID)
		return nil
	})
	if err != nil {
		return nil, apperr.Store("mark seen", err)
	}
	return event, nil
}

// Messages returns up to PageSize messages older than before (all when before is nil),
// in ascending order, annotated for userID. The flag reports whether older messages remain.
func (r *postgresRepository) Messages(ctx context.Context, chatID, userID int64, before *Cursor) ([]*ChatMessage, bool, error) {
	me, other, err := members(ctx, r.db, chatID, userID)
	if err != nil {
		return nil, false, apperr.Store("load participants", err)
	}

	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.message, m.reply_id, m.timestamp,
		       mf.file_key, mf.media_type, mf.metadata, mf.blurhash
		FROM messages m
		LEFT JOIN media_files mf ON mf.message_id = m.id
		WHERE m.chat_id = ?`
	args := []interface{}{chatID}
	if before != nil {
		query += ` AND (m.timestamp < ? OR (m.timestamp = ? AND m.id < ?))`
		args = append(args, before.Timestamp, before.Timestamp, before.MessageID)
	}
	// One extra row answers whether an older page exists
	query += ` ORDER BY m.timestamp DESC, m.id DESC LIMIT ?`
	args = append(args, PageSize+1)

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, false, apperr.Store("load messages", err)
	}

	hasMore := len(rows) > PageSize
	if hasMore {
		rows = rows[:PageSize]
	}

	out := make([]*ChatMessage, len(rows))
	for i, row := range rows {
		msg := row.toMessage()
		msg.To = other.UserID
		if msg.From != userID {
			msg.To = userID
		}
		msg.IsSeen = me.hasSeen(msg)
		// Newest first from the store, oldest first on the wire
		out[len(rows)-1-i] = msg
	}
	return out, hasMore, nil
}

func (r *postgresRepository) MessageTimestamp(ctx context.Context, chatID int64, messageID string) (time.Time, error) {
	var ts time.Time
	err := r.db.GetContext(ctx, &ts, r.db.Rebind(`
		SELECT timestamp FROM messages WHERE chat_id = ? AND id = ?`), chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("message %s: %w", messageID, apperr.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, apperr.Store("load message timestamp", err)
	}
	return ts, nil
}

// Helpers

type messageRow struct {
	ID        string         `db:"id"`
	ChatID    int64          `db:"chat_id"`
	SenderID  int64          `db:"sender_id"`
	Message   string         `db:"message"`
	ReplyID   sql.NullString `db:"reply_id"`
	Timestamp time.Time      `db:"timestamp"`
	FileKey   sql.NullString `db:"file_key"`
	MediaType sql.NullString `db:"media_type"`
	Metadata  sql.NullString `db:"metadata"`
	Blurhash  sql.NullString `db:"blurhash"`
}

func (row messageRow) toMessage() *ChatMessage {
	msg := &ChatMessage{
		MessageID:  row.ID,
		Message:    row.Message,
		From:       row.SenderID,
		ChatRoomID: row.ChatID,
		Timestamp:  row.Timestamp.UTC(),
		Type:       FrameType,
		ChatsType:  KindMessage,
	}
	if row.ReplyID.Valid {
		reply := row.ReplyID.String
		msg.ReplyID = &reply
	}
	if row.FileKey.Valid && row.MediaType.Valid {
		metadata := map[string]interface{}{}
		if row.Metadata.Valid && row.Metadata.String != "" {
			// Unreadable metadata degrades to an empty object
			_ = json.Unmarshal([]byte(row.Metadata.String), &metadata)
		}
		msg.Media = &Media{
			MediaType:    row.MediaType.String,
			FileKey:      row.FileKey.String,
			BlurhashText: row.Blurhash.String,
			Metadata:     metadata,
		}
	}
	return msg
}

// members loads the participants of chatID and splits them into userID and the other one.
func members(ctx context.Context, q database.Queryer, chatID, userID int64) (*participant, *participant, error) {
	var rows []*participant
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(`
		SELECT user_id, unseen_count, last_seen_message_id, last_seen_at
		FROM chat_participants
		WHERE chat_id = ?
		ORDER BY user_id`), chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("load participants: %w", err)
	}

	var me, other *participant
	for _, p := range rows {
		if p.UserID == userID {
			me = p
		} else {
			other = p
		}
	}
	switch {
	case len(rows) == 0:
		return nil, nil, fmt.Errorf("chat %d: %w", chatID, apperr.ErrNotFound)
	case me == nil:
		return nil, nil, apperr.ErrForbidden
	case other == nil:
		return nil, nil, fmt.Errorf("chat %d has no other participant: %w", chatID, apperr.ErrNotFound)
	}
	return me, other, nil
}

func insertMedia(ctx context.Context, tx *sqlx.Tx, msg *ChatMessage) error {
	metadata := msg.Media.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode media metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO media_files (message_id, user_id, file_key, media_type, size_bytes, metadata, blurhash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		msg.MessageID, msg.From, msg.Media.FileKey, msg.Media.MediaType,
		sizeBytes(metadata), string(encoded), msg.Media.BlurhashText); err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// sizeBytes reads metadata["size_bytes"] as decoded from JSON.
func sizeBytes(metadata map[string]interface{}) *int64 {
	switch v := metadata["size_bytes"].(type) {
	case float64:
		n := int64(v)
		return &n
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	}
	return nil
}
