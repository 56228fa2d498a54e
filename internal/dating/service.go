// internal/dating/service.go

package dating

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
)

type Service interface {
	// Swipes
	Swipe(ctx context.Context, likerID, likedID int64, liked bool) (*SwipeResult, error)

	// Discovery
	RefillQueue(ctx context.Context, userID int64) (*QueueResult, error)
	GetConnections(ctx context.Context, userID int64) (*Connections, error)
}

type service struct {
	repo     Repository
	notifier *Notifier
	logger   *zap.Logger
	shuffle  func(n int, swap func(i, j int))
}

func NewService(repo Repository, notifier *Notifier, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		shuffle:  rand.Shuffle,
	}
}

func (s *service) Swipe(ctx context.Context, likerID, likedID int64, liked bool) (*SwipeResult, error) {
	if likerID == likedID {
		return nil, apperr.ErrSelfSwipe
	}

	result, err := s.repo.RecordSwipe(ctx, likerID, likedID, liked)
	if err != nil {
		s.logFailure("swipe failed", err, zap.Int64("liker_id", likerID), zap.Int64("liked_id", likedID))
		return nil, err
	}
	RecordSwipe(liked)

	switch {
	case result.Match:
		result.Message = "It's a match!"
		s.notifier.MatchCreated(likerID, likedID, "swipe")
		s.logger.Info("match created", zap.Int64("user1_id", likerID), zap.Int64("user2_id", likedID))
	case liked:
		result.Message = "Like recorded"
	default:
		result.Message = "Dislike recorded"
	}
	return result, nil
}

func (s *service) RefillQueue(ctx context.Context, userID int64) (*QueueResult, error) {
	result, err := s.repo.RefillQueue(ctx, userID)
	if err != nil {
		s.logFailure("refill failed", err, zap.Int64("user_id", userID))
		return nil, err
	}

	// Presentation order only; the stored queue keeps insertion order
	s.shuffle(len(result.Matches), func(i, j int) {
		result.Matches[i], result.Matches[j] = result.Matches[j], result.Matches[i]
	})
	return result, nil
}

func (s *service) GetConnections(ctx context.Context, userID int64) (*Connections, error) {
	conns, err := s.repo.GetConnections(ctx, userID)
	if err != nil {
		s.logFailure("get connections failed", err, zap.Int64("user_id", userID))
		return nil, err
	}
	return conns, nil
}

func (s *service) logFailure(msg string, err error, fields ...zap.Field) {
	if errors.Is(err, apperr.ErrStore) {
		s.logger.Error(msg, append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug(msg, append(fields, zap.Error(err))...)
}
