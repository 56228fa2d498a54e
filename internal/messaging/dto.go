package messaging

import "time"

type StartChatDTO struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

type ChatRoomDTO struct {
	ChatRoomID           int64      `json:"chat_room_id" validate:"required,gt=0"`
	LastMessageID        *string    `json:"last_message_id" validate:"omitempty,uuid"`
	LastMessageTimestamp *time.Time `json:"last_message_timestamp"`
}
