package messaging_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database/dbtest"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
	"github.com/imadgeboyega/kiekky-connect/internal/messaging"
)

const secret = "chat-secret"

func newRouter(e *env) *mux.Router {
	router := mux.NewRouter()
	messaging.RegisterRoutes(router, messaging.NewHandler(e.svc), auth.NewMiddleware(auth.NewJWTResolver(secret)))
	return router
}

func do(t *testing.T, router http.Handler, path string, userID int64, body string) (*httptest.ResponseRecorder, utils.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if userID != 0 {
		token, err := utils.GenerateJWT(userID, secret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp utils.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestStartChatEndpoint(t *testing.T) {
	e := setup(t, nil)
	router := newRouter(e)
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 1, Gender: "Female"})
	dbtest.CreateUser(t, e.db, dbtest.User{ID: 2, Gender: "Male"})
	dbtest.CreateMatch(t, e.db, 1, 2)

	rec, _ := do(t, router, "/chats/start-chat", 0, `{"id":2}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := do(t, router, "/chats/start-chat", 1, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, resp = do(t, router, "/chats/start-chat", 1, `{"id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Chat started successfully", data["message"])
	assert.Equal(t, float64(1), data["user1_id"])
	assert.Equal(t, float64(2), data["user2_id"])
	assert.NotZero(t, data["chat_room_id"])

	rec, resp = do(t, router, "/chats/start-chat", 1, `{"id":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "match does not exist, cannot start chat", resp.Error)
}

func TestHistoryEndpoints(t *testing.T) {
	e := setup(t, nil)
	router := newRouter(e)
	seedChat(t, e)
	for i := 0; i < 22; i++ {
		dbtest.CreateMessage(t, e.db, msgID(i), 42, 2, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}

	rec, resp := do(t, router, "/chats/get/chat", 3, `{"chat_room_id":42}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "user is not a participant of this chat", resp.Error)

	rec, resp = do(t, router, "/chats/get/chat", 1, `{"chat_room_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["user_id"])
	assert.Len(t, data["messages"], messaging.PageSize)
	assert.Equal(t, true, data["has_more"])
	assert.Equal(t, msgID(2), data["next_page_cursor"])

	rec, _ = do(t, router, "/chats/get/chat-paginated", 1, `{"chat_room_id":42,"last_message_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := fmt.Sprintf(`{"chat_room_id":42,"last_message_id":%q,"last_message_timestamp":%q}`,
		msgID(2), base.Add(2*time.Second).Format(time.RFC3339Nano))
	rec, resp = do(t, router, "/chats/get/chat-paginated", 1, body)
	require.Equal(t, http.StatusOK, rec.Code)
	data = resp.Data.(map[string]interface{})
	messages := data["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, msgID(0), first["message_id"])
	assert.Equal(t, "chats", first["type"])
	assert.Equal(t, "message", first["chats_type"])
	assert.Equal(t, float64(2), first["from"])
	assert.Equal(t, float64(1), first["to"])
	assert.Equal(t, true, first["is_seen"])
	assert.Equal(t, false, data["has_more"])
}
