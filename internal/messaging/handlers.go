// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"net/http"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// StartChat turns the caller's Match with body.id into a chat
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto StartChatDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := h.service.StartChat(r.Context(), userID, dto.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

// GetChat returns the latest page and marks it seen
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto ChatRoomDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	history, err := h.service.FetchLatest(r.Context(), dto.ChatRoomID, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, history, http.StatusOK)
}

// GetChatPaginated returns the page older than the given message
func (h *Handler) GetChatPaginated(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto ChatRoomDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	var cursor *Cursor
	if dto.LastMessageID != nil && *dto.LastMessageID != "" {
		cursor = &Cursor{MessageID: *dto.LastMessageID}
		if dto.LastMessageTimestamp != nil {
			cursor.Timestamp = *dto.LastMessageTimestamp
		}
	}

	history, err := h.service.FetchPage(r.Context(), dto.ChatRoomID, userID, cursor)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, history, http.StatusOK)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dto interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		utils.ErrorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return false
	}
	if err := utils.ValidateStruct(dto); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, err error) {
	utils.ErrorResponse(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
}
