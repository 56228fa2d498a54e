// internal/common/apperr/errors.go
// Error taxonomy shared by the dating, lobby and messaging packages

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthFailure    = errors.New("invalid or missing credentials")
	ErrNotInQueue     = errors.New("you cannot like/dislike without liked_id in the match queue")
	ErrNoMatch        = errors.New("match does not exist, cannot start chat")
	ErrForbidden      = errors.New("user is not a participant of this chat")
	ErrNotFound       = errors.New("not found")
	ErrStore          = errors.New("store failure")
	ErrDelivery       = errors.New("delivery failed")
	ErrSelfSwipe      = errors.New("you cannot like/dislike yourself")
	ErrAlreadyMatched = errors.New("users are already connected")
	ErrInvalidInput   = errors.New("invalid input")
)

// StoreError wraps a failed persistence operation. The operation has been rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// Store wraps err as a StoreError unless it is nil or already classified.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	for _, known := range []error{
		ErrAuthFailure, ErrNotInQueue, ErrNoMatch, ErrForbidden, ErrNotFound,
		ErrStore, ErrDelivery, ErrSelfSwipe, ErrAlreadyMatched, ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// HTTPStatus maps an error to the status code returned to REST callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotInQueue),
		errors.Is(err, ErrNoMatch),
		errors.Is(err, ErrSelfSwipe),
		errors.Is(err, ErrAlreadyMatched),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to clients. Store and unknown errors stay generic.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
