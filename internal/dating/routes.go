package dating

import (
	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	// Swipes
	swipe := router.PathPrefix("/swipe").Subrouter()
	swipe.Use(authMiddleware.Authenticate)
	swipe.HandleFunc("/right", handler.SwipeRight).Methods("POST")
	swipe.HandleFunc("/left", handler.SwipeLeft).Methods("POST")

	// Discovery and connections
	matches := router.PathPrefix("/matches").Subrouter()
	matches.Use(authMiddleware.Authenticate)
	matches.HandleFunc("/get-matches", handler.GetMatches).Methods("GET")
	matches.HandleFunc("/get-connections", handler.GetConnections).Methods("GET")
}
