package lobby

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Scheduler struct {
	matchmaker *Matchmaker
	lock       Lock
	hour       int
	minute     int
	loc        *time.Location
	logger     *zap.Logger
}

// NewScheduler opens a lobby event every day at hour:minute in loc. A nil lock means
// this process is the only one and always runs the event.
func NewScheduler(matchmaker *Matchmaker, lock Lock, hour, minute int, loc *time.Location, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		matchmaker: matchmaker,
		lock:       lock,
		hour:       hour,
		minute:     minute,
		loc:        loc,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	// Daily lobby event
	go s.runDaily(ctx, s.hour, s.minute, s.Trigger)
}

// Trigger opens today's event unless another process already holds its lock.
func (s *Scheduler) Trigger(ctx context.Context, day time.Time) error {
	if s.lock != nil {
		key := EventKey(day, s.loc)
		ok, err := s.lock.Acquire(ctx, key, s.matchmaker.Window()+time.Minute)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Info("lobby event owned by another instance", zap.String("key", key))
			return nil
		}
	}

	if !s.matchmaker.OpenEvent(ctx) {
		s.logger.Warn("lobby event already open")
	}
	return nil
}

func (s *Scheduler) runDaily(ctx context.Context, hour, minute int, task func(context.Context, time.Time) error) {
	for {
		next := NextRun(time.Now(), hour, minute, s.loc)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if err := task(ctx, next); err != nil {
				s.logger.Error("scheduled lobby event failed", zap.Error(err))
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// NextRun is the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
