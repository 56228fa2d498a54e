package lobby

import "github.com/imadgeboyega/kiekky-connect/internal/profile"

// Lobby event names
const (
	EventStart = "event-start"
	EventEnd   = "event-end"
	EventMatch = "match-event"
)

// State of the lobby event window
type State int

const (
	Idle State = iota
	EventOpen
)

func (s State) String() string {
	if s == EventOpen {
		return "event-open"
	}
	return "idle"
}

// StatusEvent announces the start of an event, or the current status to a new connection.
type StatusEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// MatchEvent is the outcome of a pass for one user.
type MatchEvent struct {
	Type      string           `json:"type"`
	Event     string           `json:"event"`
	Matched   bool             `json:"matched"`
	Candidate *profile.Summary `json:"candidate,omitempty"`
}

func statusEvent(event string) StatusEvent {
	return StatusEvent{Type: "lobby", Event: event}
}

// Pairing is one pair produced by a pass
type Pairing struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// PassResult summarizes one matching pass
type PassResult struct {
	Pairs     []Pairing
	Unmatched []int64
}
