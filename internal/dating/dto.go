// internal/dating/dto.go
package dating

// DTOs for API requests/responses

type SwipeRequestDTO struct {
	LikedID int64 `json:"liked_id" validate:"required,gt=0"`
}
