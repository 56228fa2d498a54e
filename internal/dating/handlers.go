package dating

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

func (h *Handler) SwipeRight(w http.ResponseWriter, r *http.Request) {
	h.swipe(w, r, true)
}

func (h *Handler) SwipeLeft(w http.ResponseWriter, r *http.Request) {
	h.swipe(w, r, false)
}

func (h *Handler) swipe(w http.ResponseWriter, r *http.Request, liked bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto SwipeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		utils.ErrorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&dto); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Swipe(r.Context(), userID, dto.LikedID, liked)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.service.RefillQueue(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

func (h *Handler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.service.GetConnections(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.SuccessResponse(w, conns, http.StatusOK)
}

func respondError(w http.ResponseWriter, err error) {
	utils.ErrorResponse(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
}
