package lobby

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

// Broadcaster is the lobby connection registry.
type Broadcaster interface {
	Push(userID int64, event interface{}) error
	Broadcast(event interface{}) int
	Connected() []int64
}

// MatchNotifier is told about every persisted lobby match.
type MatchNotifier interface {
	MatchCreated(a, b int64, source string)
}

// Matchmaker runs the Idle -> EventOpen -> Idle cycle of the lobby. Opening an event
// starts a window timer; when it fires the state returns to Idle and one matching
// pass runs over the users connected at that moment.
type Matchmaker struct {
	lobby    Broadcaster
	repo     Repository
	notifier MatchNotifier
	window   time.Duration
	logger   *zap.Logger
	shuffle  func(n int, swap func(i, j int))

	mu     sync.Mutex
	state  State
	passes sync.WaitGroup
}

func NewMatchmaker(lobby Broadcaster, repo Repository, notifier MatchNotifier, window time.Duration, logger *zap.Logger) *Matchmaker {
	return &Matchmaker{
		lobby:    lobby,
		repo:     repo,
		notifier: notifier,
		window:   window,
		logger:   logger,
		shuffle:  rand.Shuffle,
	}
}

func (m *Matchmaker) Window() time.Duration { return m.window }

func (m *Matchmaker) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenEvent moves Idle to EventOpen and announces it to every lobby user. It returns
// false when an event is already open. The window cannot be cancelled once started.
func (m *Matchmaker) OpenEvent(ctx context.Context) bool {
	m.mu.Lock()
	if m.state == EventOpen {
		m.mu.Unlock()
		return false
	}
	m.state = EventOpen
	m.passes.Add(1)
	m.mu.Unlock()

	eventsTotal.Inc()
	notified := m.lobby.Broadcast(statusEvent(EventStart))
	m.logger.Info("lobby event opened", zap.Int("notified", notified), zap.Duration("window", m.window))

	ctx = context.WithoutCancel(ctx)
	time.AfterFunc(m.window, func() {
		defer m.passes.Done()

		m.mu.Lock()
		m.state = Idle
		m.mu.Unlock()

		if _, err := m.RunPass(ctx); err != nil {
			m.logger.Error("lobby pass failed", zap.Error(err))
		}
	})
	return true
}

// Wait blocks until every started event has finished its pass.
func (m *Matchmaker) Wait() {
	m.passes.Wait()
}

// SendStatus tells a newly connected user whether an event is open.
func (m *Matchmaker) SendStatus(_ context.Context, userID int64) {
	event := EventEnd
	if m.State() == EventOpen {
		event = EventStart
	}
	m.push(userID, statusEvent(event))
}

// RunPass pairs the currently connected lobby users, persists the pairs and notifies everyone.
func (m *Matchmaker) RunPass(ctx context.Context) (*PassResult, error) {
	start := time.Now()
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	ids := m.lobby.Connected()
	if len(ids) == 0 {
		m.logger.Info("no users in lobby")
		return &PassResult{}, nil
	}

	users, err := m.repo.Attributes(ctx, ids)
	if err != nil {
		m.notifyUnmatched(ids)
		return nil, err
	}
	m.shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })

	excluded, err := m.repo.ExcludedPairs(ctx, ids)
	if err != nil {
		m.notifyUnmatched(ids)
		return nil, err
	}

	pairs, unmatched := Pair(users, excluded)
	result := &PassResult{Pairs: pairs, Unmatched: unmatched}

	// Users connected without a profile row never reach Pair
	known := make(map[int64]bool, len(users))
	for _, u := range users {
		known[u.UserID] = true
	}
	for _, id := range ids {
		if !known[id] {
			result.Unmatched = append(result.Unmatched, id)
		}
	}

	// Persist before anyone hears about a match
	if err := m.repo.CreateMatches(ctx, pairs); err != nil {
		m.notifyUnmatched(ids)
		return nil, err
	}

	paired := make([]int64, 0, 2*len(pairs))
	for _, p := range pairs {
		paired = append(paired, p.A, p.B)
	}
	summaries, err := m.repo.Summaries(ctx, paired)
	if err != nil {
		// Matches are stored; clients still learn of them from their connections list
		m.logger.Error("load lobby summaries", zap.Error(err))
	}

	m.notifyUnmatched(result.Unmatched)
	for _, p := range pairs {
		m.push(p.A, MatchEvent{Type: "lobby", Event: EventMatch, Matched: true, Candidate: summaries[p.B]})
		m.push(p.B, MatchEvent{Type: "lobby", Event: EventMatch, Matched: true, Candidate: summaries[p.A]})
		m.notifier.MatchCreated(p.A, p.B, "lobby")
	}

	pairsTotal.Add(float64(len(pairs)))
	m.logger.Info("lobby pass finished",
		zap.Int("users", len(ids)),
		zap.Int("pairs", len(pairs)),
		zap.Int("unmatched", len(result.Unmatched)),
	)
	return result, nil
}

func (m *Matchmaker) notifyUnmatched(ids []int64) {
	for _, id := range ids {
		m.push(id, MatchEvent{Type: "lobby", Event: EventMatch, Matched: false})
	}
}

func (m *Matchmaker) push(userID int64, event interface{}) {
	if err := m.lobby.Push(userID, event); err != nil && !errors.Is(err, realtime.ErrOffline) {
		m.logger.Warn("lobby push failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
