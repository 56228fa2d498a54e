package messaging_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database/dbtest"
	"github.com/imadgeboyega/kiekky-connect/internal/messaging"
	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

type pushed struct {
	to    int64
	event interface{}
}

// fakePusher delivers to every user except the offline and broken ones.
type fakePusher struct {
	mu      sync.Mutex
	offline map[int64]bool
	broken  map[int64]error
	events  []pushed
}

func (p *fakePusher) Push(userID int64, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline[userID] {
		return realtime.ErrOffline
	}
	if err := p.broken[userID]; err != nil {
		return err
	}
	p.events = append(p.events, pushed{to: userID, event: event})
	return nil
}

func (p *fakePusher) all() []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushed(nil), p.events...)
}

func (p *fakePusher) seen() []*messaging.SeenEvent {
	var out []*messaging.SeenEvent
	for _, ev := range p.all() {
		if s, ok := ev.event.(*messaging.SeenEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	reloads [][3]interface{}
}

func (n *fakeNotifier) ReloadPair(a, b int64, subType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads = append(n.reloads, [3]interface{}{a, b, subType})
}

type fakeResolver struct{}

func (fakeResolver) SignedURL(fileKey string) (string, error) {
	return "https://media.test/" + fileKey + "?sig=1", nil
}

type env struct {
	db       *sqlx.DB
	repo     messaging.Repository
	svc      messaging.Service
	pusher   *fakePusher
	notifier *fakeNotifier
}

func setup(t *testing.T, media messaging.MediaResolver) *env {
	t.Helper()
	db := dbtest.NewDB(t)
	repo := messaging.NewPostgresRepository(db)
	pusher := &fakePusher{offline: map[int64]bool{}, broken: map[int64]error{}}
	notifier := &fakeNotifier{}
	svc := messaging.NewService(repo, pusher, notifier, media, zap.NewNop())
	return &env{db: db, repo: repo, svc: svc, pusher: pusher, notifier: notifier}
}

// seedChat creates users 1, 2 and the outsider 3, with chat 42 between 1 and 2.
func seedChat(t *testing.T, e *env) {
	t.Helper()
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 1, Username: "ada", Gender: "Female"})
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 2, Username: "ben", Gender: "Male"})
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 3, Username: "cy", Gender: "Male"})
	dbtest.CreateChat(t, e.db, 42, 1, 2)
}

func msgID(i int) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", i)
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func unseen(t *testing.T, e *env, chatID, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Get(&n, e.db.Rebind(`
		SELECT unseen_count FROM chat_participants WHERE chat_id = ? AND user_id = ?`), chatID, userID))
	return n
}

func ids(messages []*messaging.ChatMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.MessageID
	}
	return out
}

func TestStartChatConsumesMatch(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 1, Gender: "Female"})
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 2, Gender: "Male"})
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 3, Gender: "Male"})
	dbtest.CreateMatch(t, e.db, 2, 1)

	res, err := e.svc.StartChat(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Chat started successfully", res.Message)
	assert.Equal(t, int64(1), res.User1ID)
	assert.Equal(t, int64(2), res.User2ID)
	assert.NotZero(t, res.ChatRoomID)

	assert.Equal(t, 0, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM matches`))
	assert.Equal(t, 2, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chat_participants WHERE chat_id = ? AND unseen_count = 0`, res.ChatRoomID))
	assert.Equal(t, [][3]interface{}{{int64(1), int64(2), "chat"}}, e.notifier.reloads)

	// the Match is gone, so a second start fails and changes nothing
	_, err = e.svc.StartChat(ctx, 2, 1)
	assert.True(t, errors.Is(err, apperr.ErrNoMatch))
	_, err = e.svc.StartChat(ctx, 1, 3)
	assert.True(t, errors.Is(err, apperr.ErrNoMatch))
	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chats`))
	assert.Len(t, e.notifier.reloads, 1)
}

func TestSendMessageToOfflineRecipient(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	e.pusher.offline[2] = true

	frame, err := e.svc.SendMessage(context.Background(), 1, &messaging.ChatMessage{
		MessageID:  "client-proposed",
		Message:    "hello",
		To:         99,
		From:       7,
		ChatRoomID: 42,
	})
	require.NoError(t, err)

	parsed, err := uuid.Parse(frame.MessageID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Equal(t, int64(1), frame.From)
	assert.Equal(t, int64(2), frame.To)
	assert.Equal(t, "chats", frame.Type)
	assert.Equal(t, "message", frame.ChatsType)
	assert.False(t, frame.IsSeen)

	// bookkeeping is durable even though nobody received the push
	assert.Empty(t, e.pusher.all())
	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages WHERE id = ? AND sender_id = 1`, frame.MessageID))
	assert.Equal(t, 1, unseen(t, e, 42, 2))
	assert.Equal(t, 0, unseen(t, e, 42, 1))
	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chats WHERE id = 42 AND last_message_id = ? AND last_message_media_type IS NULL`, frame.MessageID))
}

func TestSendMessagePushesToConnectedRecipient(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)

	frame, err := e.svc.SendMessage(context.Background(), 2, &messaging.ChatMessage{Message: "hey", ChatRoomID: 42})
	require.NoError(t, err)

	events := e.pusher.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].to)
	delivered := events[0].event.(*messaging.ChatMessage)
	assert.Equal(t, frame.MessageID, delivered.MessageID)
	assert.Equal(t, "hey", delivered.Message)
	assert.Equal(t, 1, unseen(t, e, 42, 1))
}

func TestSendMessageSurvivesFailedDelivery(t *testing.T) {
	for _, deliveryErr := range []error{realtime.ErrConnBroken, realtime.ErrBufferFull} {
		t.Run(deliveryErr.Error(), func(t *testing.T) {
			e := setup(t, nil)
			seedChat(t, e)
			e.pusher.broken[2] = deliveryErr

			frame, err := e.svc.SendMessage(context.Background(), 1, &messaging.ChatMessage{Message: "lost on the wire", ChatRoomID: 42})
			require.NoError(t, err)

			assert.Empty(t, e.pusher.all())
			assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages WHERE id = ?`, frame.MessageID))
			assert.Equal(t, 1, unseen(t, e, 42, 2))
			assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chats WHERE id = 42 AND last_message_id = ?`, frame.MessageID))
		})
	}
}

func TestSaveMessageKeepsNewestPointer(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	ctx := context.Background()

	// the newer message commits first
	require.NoError(t, e.repo.SaveMessage(ctx, &messaging.ChatMessage{
		MessageID: msgID(5), Message: "newer", From: 2, ChatRoomID: 42, Timestamp: base.Add(time.Second),
	}))
	require.NoError(t, e.repo.SaveMessage(ctx, &messaging.ChatMessage{
		MessageID: msgID(4), Message: "older", From: 1, ChatRoomID: 42, Timestamp: base,
	}))

	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chats WHERE id = 42 AND last_message_id = ?`, msgID(5)))
	assert.Equal(t, 2, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages WHERE chat_id = 42`))
	assert.Equal(t, 1, unseen(t, e, 42, 1))
	assert.Equal(t, 1, unseen(t, e, 42, 2))
}

func TestSendMessageRejections(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	ctx := context.Background()

	_, err := e.svc.SendMessage(ctx, 3, &messaging.ChatMessage{Message: "intruder", ChatRoomID: 42})
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	_, err = e.svc.SendMessage(ctx, 1, &messaging.ChatMessage{Message: "void", ChatRoomID: 999})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)

	assert.Equal(t, 0, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages`))
	assert.Empty(t, e.pusher.all())
}

func TestSendMessageWithMedia(t *testing.T) {
	e := setup(t, fakeResolver{})
	seedChat(t, e)
	ctx := context.Background()

	frame, err := e.svc.SendMessage(ctx, 1, &messaging.ChatMessage{
		ChatRoomID: 42,
		Media: &messaging.Media{
			MediaType:    "image",
			FileKey:      "chats/42/cat.jpg",
			BlurhashText: "LEHV6nWB2y",
			Metadata:     map[string]interface{}{"size_bytes": float64(2048), "width": float64(640)},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, frame.Media)
	assert.Equal(t, "https://media.test/chats/42/cat.jpg?sig=1", frame.Media.Metadata["file_url"])

	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM media_files WHERE message_id = ? AND size_bytes = 2048 AND user_id = 1`, frame.MessageID))
	assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM chats WHERE id = 42 AND last_message_media_type = 'image'`))

	history, err := e.svc.FetchPage(ctx, 42, 2, nil)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	media := history.Messages[0].Media
	require.NotNil(t, media)
	assert.Equal(t, "image", media.MediaType)
	assert.Equal(t, "LEHV6nWB2y", media.BlurhashText)
	assert.Equal(t, float64(640), media.Metadata["width"])
	assert.Equal(t, "https://media.test/chats/42/cat.jpg?sig=1", media.Metadata["file_url"])
}

func TestFetchLatestMarksSeenOnce(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dbtest.CreateMessage(t, e.db, msgID(i), 42, 2, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}
	_, err := e.db.Exec(`UPDATE chat_participants SET unseen_count = 3 WHERE chat_id = 42 AND user_id = 1`)
	require.NoError(t, err)

	history, err := e.svc.FetchLatest(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), history.UserID)
	assert.Equal(t, []string{msgID(0), msgID(1), msgID(2)}, ids(history.Messages))
	for _, m := range history.Messages {
		assert.True(t, m.IsSeen, m.MessageID)
		assert.Equal(t, int64(2), m.From)
		assert.Equal(t, int64(1), m.To)
	}
	assert.False(t, history.HasMore)
	require.NotNil(t, history.NextPageCursor)
	assert.Equal(t, msgID(0), *history.NextPageCursor)

	assert.Equal(t, 0, unseen(t, e, 42, 1))
	seen := e.pusher.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, &messaging.SeenEvent{Type: "chats", ChatsType: "seen", To: 2, From: 1, MessageID: msgID(2)}, seen[0])

	// nothing new: no second Seen
	_, err = e.svc.FetchLatest(ctx, 42, 1)
	require.NoError(t, err)
	assert.Len(t, e.pusher.seen(), 1)

	// the latest message is the requester's own: nothing to mark
	_, err = e.svc.FetchLatest(ctx, 42, 2)
	require.NoError(t, err)
	assert.Len(t, e.pusher.seen(), 1)

	// a fresh message from 2 is marked on the next fetch
	frame, err := e.svc.SendMessage(ctx, 2, &messaging.ChatMessage{Message: "again", ChatRoomID: 42})
	require.NoError(t, err)
	assert.Equal(t, 1, unseen(t, e, 42, 1))
	_, err = e.svc.FetchLatest(ctx, 42, 1)
	require.NoError(t, err)
	seen = e.pusher.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, frame.MessageID, seen[1].MessageID)
	assert.Equal(t, 0, unseen(t, e, 42, 1))
}

func TestFetchSeenFlagsFollowParticipant(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	dbtest.CreateMessage(t, e.db, msgID(1), 42, 1, "first", base)
	dbtest.CreateMessage(t, e.db, msgID(2), 42, 1, "second", base.Add(time.Minute))

	// 2 has seen up to the first message only
	_, err := e.db.Exec(e.db.Rebind(`
		UPDATE chat_participants SET last_seen_message_id = ?, last_seen_at = ?
		WHERE chat_id = 42 AND user_id = 2`), msgID(1), base)
	require.NoError(t, err)

	history, err := e.svc.FetchPage(context.Background(), 42, 2, nil)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.True(t, history.Messages[0].IsSeen)
	assert.False(t, history.Messages[1].IsSeen)
}

func TestFetchRequiresParticipant(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	dbtest.CreateMessage(t, e.db, msgID(1), 42, 2, "private", base)
	ctx := context.Background()

	_, err := e.svc.FetchLatest(ctx, 42, 3)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
	_, err = e.svc.FetchLatest(ctx, 999, 1)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
	_, err = e.svc.FetchPage(ctx, 42, 3, nil)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
	_, err = e.svc.FetchPage(ctx, 42, 3, &messaging.Cursor{MessageID: msgID(1)})
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	assert.Empty(t, e.pusher.seen())
}

func TestFetchPageOlderMessages(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	ctx := context.Background()
	for i := 0; i < 26; i++ {
		dbtest.CreateMessage(t, e.db, msgID(i), 42, 2, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}
	_, err := e.db.Exec(`UPDATE chat_participants SET unseen_count = 26 WHERE chat_id = 42 AND user_id = 1`)
	require.NoError(t, err)

	// the client holds message 25 and asks by id alone
	page, err := e.svc.FetchPage(ctx, 42, 1, &messaging.Cursor{MessageID: msgID(25)})
	require.NoError(t, err)
	require.Len(t, page.Messages, messaging.PageSize)
	assert.Equal(t, msgID(5), page.Messages[0].MessageID)
	assert.Equal(t, msgID(24), page.Messages[19].MessageID)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextPageCursor)
	assert.Equal(t, msgID(5), *page.NextPageCursor)

	rest, err := e.svc.FetchPage(ctx, 42, 1, &messaging.Cursor{MessageID: *page.NextPageCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{msgID(0), msgID(1), msgID(2), msgID(3), msgID(4)}, ids(rest.Messages))
	assert.False(t, rest.HasMore)

	// paging never marks anything seen
	assert.Equal(t, 26, unseen(t, e, 42, 1))
	assert.Empty(t, e.pusher.all())

	_, err = e.svc.FetchPage(ctx, 42, 1, &messaging.Cursor{MessageID: uuid.NewString()})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestFetchPageWalksFullHistoryWithTies(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	ctx := context.Background()

	// groups of three share a timestamp, so ordering falls back to the id
	var want []string
	for i := 0; i < 47; i++ {
		sender := int64(1 + i%2)
		dbtest.CreateMessage(t, e.db, msgID(i), 42, sender, fmt.Sprintf("m%d", i), base.Add(time.Duration(i/3)*time.Second))
		want = append(want, msgID(i))
	}

	page, err := e.svc.FetchLatest(ctx, 42, 1)
	require.NoError(t, err)
	got := ids(page.Messages)
	for page.HasMore {
		oldest := page.Messages[0]
		page, err = e.svc.FetchPage(ctx, 42, 1, &messaging.Cursor{MessageID: oldest.MessageID, Timestamp: oldest.Timestamp})
		require.NoError(t, err)
		require.NotEmpty(t, page.Messages)
		got = append(ids(page.Messages), got...)
	}
	assert.Equal(t, want, got)
}

func TestHandleFrameDispatch(t *testing.T) {
	e := setup(t, nil)
	seedChat(t, e)
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 4, Username: "dee", Gender: "Female"})
	dbtest.CreateChat(t, e.db, 43, 3, 4)
	ctx := context.Background()

	e.svc.HandleFrame(ctx, 1, []byte(`{"type":"chats","chats_type":"typing","to":2,"chat_room_id":42}`))
	events := e.pusher.all()
	require.Len(t, events, 1)
	typing := events[0].event.(*messaging.TypingEvent)
	assert.Equal(t, int64(2), typing.To)
	assert.Equal(t, int64(1), typing.From)
	assert.Equal(t, "Typing...", typing.Message)

	t.Run("typing outside the chat is dropped", func(t *testing.T) {
		e.svc.HandleFrame(ctx, 3, []byte(`{"type":"chats","chats_type":"typing","to":2,"chat_room_id":42}`))
		assert.Len(t, e.pusher.all(), 1)
	})

	t.Run("seen needs a shared chat", func(t *testing.T) {
		e.svc.HandleFrame(ctx, 3, []byte(`{"type":"chats","chats_type":"seen","to":1,"message_id":"x"}`))
		assert.Len(t, e.pusher.all(), 1)

		e.svc.HandleFrame(ctx, 4, []byte(`{"type":"chats","chats_type":"seen","to":3,"message_id":"x"}`))
		events := e.pusher.all()
		require.Len(t, events, 2)
		assert.Equal(t, &messaging.SeenEvent{Type: "chats", ChatsType: "seen", To: 3, From: 4, MessageID: "x"}, events[1].event)
	})

	t.Run("garbage is skipped", func(t *testing.T) {
		for _, frame := range []string{
			`not json`,
			`{"type":"posts","chats_type":"message"}`,
			`{"type":"chats","chats_type":"dance"}`,
			`{"type":"chats","chats_type":"message","message":"no room"}`,
			`{"type":"chats","chats_type":"message","chat_room_id":42,"reply_id":"not-a-uuid"}`,
		} {
			e.svc.HandleFrame(ctx, 1, []byte(frame))
		}
		assert.Len(t, e.pusher.all(), 2)
		assert.Equal(t, 0, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages`))
	})

	t.Run("message frames are stored", func(t *testing.T) {
		e.svc.HandleFrame(ctx, 2, []byte(`{"type":"chats","chats_type":"message","message":"yo","chat_room_id":42,"to":1}`))
		assert.Equal(t, 1, dbtest.Count(t, e.db, `SELECT COUNT(*) FROM messages WHERE sender_id = 2 AND message = 'yo'`))
		events := e.pusher.all()
		require.Len(t, events, 3)
		assert.Equal(t, int64(1), events[2].to)
	})
}
