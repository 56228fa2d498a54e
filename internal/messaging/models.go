// internal/messaging/models.go

package messaging

import (
	"time"
)

// Frame discriminators on the chat channel
const (
	FrameType   = "chats"
	KindMessage = "message"
	KindTyping  = "typing"
	KindSeen    = "seen"
)

// PageSize is the number of messages in one history page
const PageSize = 20

// Media describes an attachment. Metadata is opaque apart from file_url and size_bytes.
type Media struct {
	MediaType    string                 `json:"mediaType" validate:"required,oneof=text voice image"`
	FileKey      string                 `json:"file_key" validate:"required"`
	BlurhashText string                 `json:"blurhashText"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// ChatMessage is both the inbound message frame and the stored message as delivered.
type ChatMessage struct {
	MessageID  string    `json:"message_id"`
	Message    string    `json:"message"`
	ReplyID    *string   `json:"reply_id" validate:"omitempty,uuid"`
	To         int64     `json:"to"`
	From       int64     `json:"from"`
	ChatRoomID int64     `json:"chat_room_id" validate:"required,gt=0"`
	IsSeen     bool      `json:"is_seen"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	ChatsType  string    `json:"chats_type"`
	Media      *Media    `json:"media,omitempty"`
}

// TypingEvent is forwarded to the other participant and never stored.
type TypingEvent struct {
	Type       string    `json:"type"`
	ChatsType  string    `json:"chats_type"`
	To         int64     `json:"to"`
	From       int64     `json:"from"`
	ChatRoomID int64     `json:"chat_room_id" validate:"required,gt=0"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// SeenEvent tells a sender that one of their messages was read.
type SeenEvent struct {
	Type      string `json:"type"`
	ChatsType string `json:"chats_type"`
	To        int64  `json:"to" validate:"required,gt=0"`
	From      int64  `json:"from"`
	MessageID string `json:"message_id" validate:"required"`
}

func newSeenEvent(from, to int64, messageID string) *SeenEvent {
	return &SeenEvent{Type: FrameType, ChatsType: KindSeen, To: to, From: from, MessageID: messageID}
}

// frameHeader selects the concrete frame type of an inbound chat frame.
type frameHeader struct {
	Type      string `json:"type" validate:"eq=chats"`
	ChatsType string `json:"chats_type" validate:"oneof=message typing seen"`
}

// Cursor points at the oldest message a client already holds. A zero Timestamp is
// filled in from the store.
type Cursor struct {
	MessageID string
	Timestamp time.Time
}

// StartChatResult is returned when a Match becomes a Chat.
type StartChatResult struct {
	Message    string `json:"message"`
	ChatRoomID int64  `json:"chat_room_id"`
	User1ID    int64  `json:"user1_id"`
	User2ID    int64  `json:"user2_id"`
}

// History is one page of a chat in ascending order.
type History struct {
	UserID         int64          `json:"user_id"`
	Messages       []*ChatMessage `json:"messages"`
	HasMore        bool           `json:"has_more"`
	NextPageCursor *string        `json:"next_page_cursor"`
}

// participant is the seen state of one user in one chat.
type participant struct {
	UserID            int64      `db:"user_id"`
	UnseenCount       int        `db:"unseen_count"`
	LastSeenMessageID *string    `db:"last_seen_message_id"`
	LastSeenAt        *time.Time `db:"last_seen_at"`
}

func (p *participant) hasSeen(m *ChatMessage) bool {
	if p.LastSeenMessageID != nil && *p.LastSeenMessageID == m.MessageID {
		return true
	}
	return p.LastSeenAt != nil && !m.Timestamp.After(*p.LastSeenAt)
}
