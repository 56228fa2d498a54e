// internal/messaging/service.go

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

// Pusher delivers one frame to one user on the chat channel.
type Pusher interface {
	Push(userID int64, event interface{}) error
}

// ReloadNotifier tells both users of a pair to refetch their connections.
type ReloadNotifier interface {
	ReloadPair(a, b int64, subType string)
}

type Service interface {
	// Chats
	StartChat(ctx context.Context, userID, otherID int64) (*StartChatResult, error)

	// Live frames
	SendMessage(ctx context.Context, senderID int64, msg *ChatMessage) (*ChatMessage, error)
	SendTyping(ctx context.Context, senderID int64, event *TypingEvent) error
	SendSeen(ctx context.Context, senderID int64, event *SeenEvent) error
	HandleFrame(ctx context.Context, userID int64, data []byte)

	// History
	FetchLatest(ctx context.Context, chatID, requesterID int64) (*History, error)
	FetchPage(ctx context.Context, chatID, requesterID int64, cursor *Cursor) (*History, error)
}

type service struct {
	repo     Repository
	chats    Pusher
	notifier ReloadNotifier
	media    MediaResolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the chat service. media may be nil, in which case attachments are
// returned without a file_url.
func NewService(repo Repository, chats Pusher, notifier ReloadNotifier, media MediaResolver, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		chats:    chats,
		notifier: notifier,
		media:    media,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *service) StartChat(ctx context.Context, userID, otherID int64) (*StartChatResult, error) {
	if userID == otherID {
		return nil, apperr.ErrNoMatch
	}

	chatID, err := s.repo.StartChat(ctx, userID, otherID)
	if err != nil {
		s.logFailure("start chat failed", err, zap.Int64("user_id", userID), zap.Int64("other_id", otherID))
		return nil, err
	}

	s.notifier.ReloadPair(userID, otherID, "chat")
	s.logger.Info("chat started", zap.Int64("chat_id", chatID), zap.Int64("user1_id", userID), zap.Int64("user2_id", otherID))

	return &StartChatResult{
		Message:    "Chat started successfully",
		ChatRoomID: chatID,
		User1ID:    userID,
		User2ID:    otherID,
	}, nil
}

// SendMessage persists msg under a server assigned id and timestamp, then pushes it to the
// recipient. The stored state does not depend on whether the push lands.
func (s *service) SendMessage(ctx context.Context, senderID int64, msg *ChatMessage) (*ChatMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	msg.MessageID = id.String()
	msg.From = senderID
	msg.Timestamp = s.now().UTC().Truncate(time.Microsecond)
	msg.IsSeen = false
	msg.Type = FrameType
	msg.ChatsType = KindMessage

	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		s.logFailure("send message failed", err, zap.Int64("sender_id", senderID), zap.Int64("chat_id", msg.ChatRoomID))
		return nil, err
	}
	messagesTotal.WithLabelValues(KindMessage).Inc()

	frame := *msg
	frame.Media = s.signMedia(msg.Media)
	s.push(frame.To, &frame)
	return &frame, nil
}

// SendTyping forwards event to the other participant of its chat. Frames for a chat the
// sender is not part of are dropped.
func (s *service) SendTyping(ctx context.Context, senderID int64, event *TypingEvent) error {
	to, err := s.repo.Partner(ctx, event.ChatRoomID, senderID)
	if err != nil {
		if errors.Is(err, apperr.ErrStore) {
			return err
		}
		s.logger.Debug("typing dropped", zap.Int64("user_id", senderID), zap.Int64("chat_id", event.ChatRoomID), zap.Error(err))
		return nil
	}

	event.Type = FrameType
	event.ChatsType = KindTyping
	event.From = senderID
	event.To = to
	if event.Message == "" {
		event.Message = "Typing..."
	}
	event.Timestamp = s.now().UTC()

	messagesTotal.WithLabelValues(KindTyping).Inc()
	s.push(to, event)
	return nil
}

// SendSeen forwards a read receipt to a user the sender shares a chat with.
func (s *service) SendSeen(ctx context.Context, senderID int64, event *SeenEvent) error {
	if event.To == senderID {
		return nil
	}
	ok, err := s.repo.SharesChat(ctx, senderID, event.To)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("seen dropped", zap.Int64("user_id", senderID), zap.Int64("to", event.To))
		return nil
	}

	event.Type = FrameType
	event.ChatsType = KindSeen
	event.From = senderID

	messagesTotal.WithLabelValues(KindSeen).Inc()
	s.push(event.To, event)
	return nil
}

// HandleFrame decodes one inbound chat frame and dispatches it. Frames that do not parse
// are logged and skipped; the connection stays open.
func (s *service) HandleFrame(ctx context.Context, userID int64, data []byte) {
	var header frameHeader
	if err := decodeFrame(data, &header); err != nil {
		s.logger.Debug("unparseable chat frame", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	var err error
	switch header.ChatsType {
	case KindMessage:
		var msg ChatMessage
		if err = decodeFrame(data, &msg); err == nil {
			_, err = s.SendMessage(ctx, userID, &msg)
		}
	case KindTyping:
		var event TypingEvent
		if err = decodeFrame(data, &event); err == nil {
			err = s.SendTyping(ctx, userID, &event)
		}
	case KindSeen:
		var event SeenEvent
		if err = decodeFrame(data, &event); err == nil {
			err = s.SendSeen(ctx, userID, &event)
		}
	}

	if err != nil {
		s.logFailure("chat frame rejected", err, zap.Int64("user_id", userID), zap.String("chats_type", header.ChatsType))
	}
}

func (s *service) FetchLatest(ctx context.Context, chatID, requesterID int64) (*History, error) {
	seen, err := s.repo.MarkLatestSeen(ctx, chatID, requesterID)
	if err != nil {
		err = participantError(err)
		s.logFailure("fetch latest failed", err, zap.Int64("user_id", requesterID), zap.Int64("chat_id", chatID))
		return nil, err
	}
	if seen != nil {
		s.push(seen.To, seen)
	}

	return s.history(ctx, chatID, requesterID, nil)
}

// FetchPage returns the page older than cursor, or the latest page when cursor is nil.
// A cursor without a timestamp takes the stored timestamp of its message. It never marks
// anything seen.
func (s *service) FetchPage(ctx context.Context, chatID, requesterID int64, cursor *Cursor) (*History, error) {
	if cursor != nil {
		if _, err := s.repo.Partner(ctx, chatID, requesterID); err != nil {
			err = participantError(err)
			s.logFailure("fetch page failed", err, zap.Int64("user_id", requesterID), zap.Int64("chat_id", chatID))
			return nil, err
		}

		resolved := Cursor{MessageID: strings.ToLower(cursor.MessageID), Timestamp: cursor.Timestamp.UTC()}
		if cursor.Timestamp.IsZero() {
			at, err := s.repo.MessageTimestamp(ctx, chatID, resolved.MessageID)
			if err != nil {
				s.logFailure("resolve cursor failed", err, zap.Int64("chat_id", chatID), zap.String("message_id", resolved.MessageID))
				return nil, err
			}
			resolved.Timestamp = at.UTC()
		}
		cursor = &resolved
	}
	return s.history(ctx, chatID, requesterID, cursor)
}

func (s *service) history(ctx context.Context, chatID, requesterID int64, cursor *Cursor) (*History, error) {
	messages, hasMore, err := s.repo.Messages(ctx, chatID, requesterID, cursor)
	if err != nil {
		err = participantError(err)
		s.logFailure("fetch history failed", err, zap.Int64("user_id", requesterID), zap.Int64("chat_id", chatID))
		return nil, err
	}

	for _, msg := range messages {
		msg.Media = s.signMedia(msg.Media)
	}

	h := &History{UserID: requesterID, Messages: messages, HasMore: hasMore}
	if len(messages) > 0 {
		oldest := messages[0].MessageID
		h.NextPageCursor = &oldest
	}
	return h, nil
}

func (s *service) signMedia(media *Media) *Media {
	signed, err := withFileURL(s.media, media)
	if err != nil {
		s.logger.Warn("media url not signed", zap.String("file_key", media.FileKey), zap.Error(err))
	}
	return signed
}

func (s *service) push(userID int64, event interface{}) {
	if err := s.chats.Push(userID, event); err != nil && !errors.Is(err, realtime.ErrOffline) {
		s.logger.Warn("chat push failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *service) logFailure(msg string, err error, fields ...zap.Field) {
	if errors.Is(err, apperr.ErrStore) {
		s.logger.Error(msg, append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug(msg, append(fields, zap.Error(err))...)
}

// participantError hides whether a chat exists from users outside it.
func participantError(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrForbidden
	}
	return err
}

func decodeFrame(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if err := utils.ValidateStruct(v); err != nil {
		return errors.Join(apperr.ErrInvalidInput, err)
	}
	return nil
}
