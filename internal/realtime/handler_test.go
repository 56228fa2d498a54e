package realtime_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

const secret = "realtime-secret"

type recorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *recorder) HandleFrame(_ context.Context, _ int64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(data))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandlerAcceptsAndRoutesFrames(t *testing.T) {
	reg := realtime.NewRegistry("chat", zap.NewNop())
	frames := &recorder{}
	connected := make(chan int64, 1)

	h := realtime.NewHandler(reg, auth.NewJWTResolver(secret), zap.NewNop(),
		realtime.WithFrameHandler(frames),
		realtime.WithConnectHook(func(_ context.Context, userID int64) { connected <- userID }),
	)
	srv := httptest.NewServer(h)
	defer srv.Close()

	token, err := utils.GenerateJWT(11, secret, time.Hour)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	var ack realtime.Ack
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "Connected to chat websocket.", ack.Message)
	assert.Equal(t, int64(11), <-connected)
	assert.True(t, reg.IsConnected(11))

	require.NoError(t, reg.Push(11, map[string]string{"type": "chats", "chats_type": "typing"}))
	var pushed map[string]string
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "typing", pushed["chats_type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chats"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.Eventually(t, func() bool { return len(frames.all()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"type":"chats"}`, `not json`}, frames.all())

	conn.Close()
	require.Eventually(t, func() bool { return !reg.IsConnected(11) }, time.Second, 10*time.Millisecond)
}

func TestAckPrecedesBroadcasts(t *testing.T) {
	reg := realtime.NewRegistry("lobby", zap.NewNop())
	srv := httptest.NewServer(realtime.NewHandler(reg, auth.NewJWTResolver(secret), zap.NewNop()))
	defer srv.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				reg.Broadcast(map[string]string{"type": "lobby", "event": "event-start"})
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	for i := int64(1); i <= 20; i++ {
		token, err := utils.GenerateJWT(i, secret, time.Hour)
		require.NoError(t, err)
		conn := dial(t, srv, token)

		var first map[string]string
		require.NoError(t, conn.ReadJSON(&first))
		assert.Equal(t, "Connected to lobby websocket.", first["message"], "user %d", i)
	}
}

func TestHandlerRejectsMissingOrInvalidToken(t *testing.T) {
	reg := realtime.NewRegistry("lobby", zap.NewNop())
	srv := httptest.NewServer(realtime.NewHandler(reg, auth.NewJWTResolver(secret), zap.NewNop()))
	defer srv.Close()

	for _, token := range []string{"", "forged"} {
		conn := dial(t, srv, token)
		_, _, err := conn.ReadMessage()

		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "token %q: %v", token, err)
		assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	}
	assert.Equal(t, 0, reg.Count())
}

func TestNewConnectionReplacesOld(t *testing.T) {
	reg := realtime.NewRegistry("connections", zap.NewNop())
	srv := httptest.NewServer(realtime.NewHandler(reg, auth.NewJWTResolver(secret), zap.NewNop()))
	defer srv.Close()

	token, err := utils.GenerateJWT(4, secret, time.Hour)
	require.NoError(t, err)

	first := dial(t, srv, token)
	var ack realtime.Ack
	require.NoError(t, first.ReadJSON(&ack))

	second := dial(t, srv, token)
	require.NoError(t, second.ReadJSON(&ack))

	// the first socket is closed by the server once replaced
	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)

	assert.True(t, reg.IsConnected(4))
	require.NoError(t, reg.Push(4, map[string]string{"type": "connections-reload"}))
	var frame map[string]string
	require.NoError(t, second.ReadJSON(&frame))
	assert.Equal(t, "connections-reload", frame["type"])
}
