// internal/messaging/routes.go

package messaging

import (
	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
)

// RegisterRoutes registers the chat REST routes. The chat websocket is mounted by cmd/api.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	chats := router.PathPrefix("/chats").Subrouter()
	chats.Use(authMiddleware.Authenticate)

	chats.HandleFunc("/start-chat", handler.StartChat).Methods("POST")
	chats.HandleFunc("/get/chat", handler.GetChat).Methods("POST")
	chats.HandleFunc("/get/chat-paginated", handler.GetChatPaginated).Methods("POST")
}
