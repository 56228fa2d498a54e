package dating

import (
	"errors"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

// Reload sub types
const (
	ReloadChat  = "chat"
	ReloadMatch = "match"
)

// ReloadEvent tells a client to refetch its connections list.
type ReloadEvent struct {
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Type    string `json:"type"`
	SubType string `json:"sub_type"`
}

// Pusher delivers one event to one user.
type Pusher interface {
	Push(userID int64, event interface{}) error
}

// Notifier sends connections-reload frames over the connections channel.
type Notifier struct {
	pusher Pusher
	logger *zap.Logger
}

func NewNotifier(pusher Pusher, logger *zap.Logger) *Notifier {
	return &Notifier{pusher: pusher, logger: logger}
}

// MatchCreated counts a persisted Match and refreshes both users' lists.
// source is "swipe" or "lobby".
func (n *Notifier) MatchCreated(a, b int64, source string) {
	RecordMatch(source)
	n.ReloadPair(a, b, ReloadMatch)
}

// ReloadPair notifies both users that their connections changed.
func (n *Notifier) ReloadPair(a, b int64, subType string) {
	n.reload(b, a, subType)
	n.reload(a, b, subType)
}

func (n *Notifier) reload(from, to int64, subType string) {
	err := n.pusher.Push(to, ReloadEvent{From: from, To: to, Type: "connections-reload", SubType: subType})
	if err != nil && !errors.Is(err, realtime.ErrOffline) {
		n.logger.Warn("connections reload not delivered",
			zap.Int64("to", to),
			zap.String("sub_type", subType),
			zap.Error(err),
		)
	}
}
