//internals/profile/models.go

package profile

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Summary is the public card of a user shown to matches and lobby partners.
type Summary struct {
	ID             int64   `json:"id" db:"id"`
	Username       string  `json:"username" db:"username"`
	ProfilePicture Picture `json:"profile_picture" db:"profile_picture"`
}

// Attributes holds the gender fields used for pairing.
type Attributes struct {
	UserID           int64  `db:"id"`
	Gender           string `db:"gender"`
	InterestedGender string `db:"interested_gender"`
}

// Picture is the JSON descriptor stored in users.profile_picture. It is passed through untouched.
type Picture json.RawMessage

// Scan implements the sql.Scanner interface for Picture
func (p *Picture) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = Picture(v)
	default:
		return fmt.Errorf("profile picture: unsupported type %T", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for Picture
func (p Picture) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

func (p Picture) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

func (p *Picture) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}
