package dating

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/imadgeboyega/kiekky-connect/internal/profile"
)

// QueueLimit bounds match_queue.
const QueueLimit = 10

// IDList is a JSON encoded list of user ids stored in a text column.
type IDList []int64

// Scan implements the sql.Scanner interface for IDList
func (l *IDList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = IDList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("id list: unsupported type %T", value)
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("id list: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	*l = ids
	return nil
}

// Value implements the driver.Valuer interface for IDList
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns l minus every occurrence of id.
func (l IDList) Without(id int64) IDList {
	out := make(IDList, 0, len(l))
	for _, v := range l {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// With returns l with id appended unless it is already present.
func (l IDList) With(id int64) IDList {
	if l.Contains(id) {
		return l
	}
	return append(append(IDList{}, l...), id)
}

// merge concatenates lists, keeps the first occurrence of each id and truncates to
// limit. A negative limit keeps everything.
func merge(limit int, lists ...IDList) IDList {
	seen := make(map[int64]bool)
	out := IDList{}
	for _, list := range lists {
		for _, id := range list {
			if seen[id] || len(out) == limit {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Pool is a user's discovery pool.
type Pool struct {
	UserID            int64  `json:"user_id" db:"user_id"`
	MatchQueue        IDList `json:"match_queue" db:"match_queue"`
	AlreadyInteracted IDList `json:"already_interacted" db:"already_interacted"`
}

// Interact moves id from the queue into the interacted set.
func (p *Pool) Interact(id int64) {
	p.MatchQueue = p.MatchQueue.Without(id)
	p.AlreadyInteracted = p.AlreadyInteracted.With(id)
}

// Candidate is one profile offered in the discovery feed.
type Candidate struct {
	ID             int64             `json:"id" db:"id"`
	Username       string            `json:"username" db:"username"`
	Gender         string            `json:"gender" db:"gender"`
	UniversityID   int64             `json:"university_id" db:"university_id"`
	ProfilePicture profile.Picture   `json:"profile_picture" db:"profile_picture"`
	Metadata       map[string]string `json:"metadata,omitempty" db:"-"`
}

// SwipeResult is the outcome of one swipe.
type SwipeResult struct {
	Match       bool             `json:"match"`
	Message     string           `json:"message"`
	MatchedUser *profile.Summary `json:"matched_user,omitempty"`
}

// QueueResult is returned by a queue refill.
type QueueResult struct {
	Matches        []*Candidate `json:"matches"`
	PreferencesSet bool         `json:"preferences_set"`
}

// ConnectionChat is an open chat in the connections list.
type ConnectionChat struct {
	profile.Summary
	ChatRoomID           int64   `json:"chat_room_id" db:"chat_id"`
	UnseenCounter        int     `json:"unseen_counter" db:"unseen_count"`
	LastMessage          *string `json:"last_message"`
	LastMessageMediaType *string `json:"last_message_media_type"`
}

// Connections lists pending matches and open chats of a user.
type Connections struct {
	Matches []*profile.Summary `json:"matches"`
	Chats   []*ConnectionChat  `json:"chats"`
}
