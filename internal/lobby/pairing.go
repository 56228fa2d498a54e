package lobby

import "github.com/imadgeboyega/kiekky-connect/internal/profile"

// PairKey identifies an unordered pair of users.
type PairKey struct {
	Low, High int64
}

func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// Compatible reports whether a and b satisfy each other's gender preference.
func Compatible(a, b *profile.Attributes) bool {
	if a.InterestedGender == "" || b.InterestedGender == "" {
		return false
	}
	return a.Gender == b.InterestedGender && b.Gender == a.InterestedGender
}

// Pair runs one greedy round over users in the given order. Each user is paired with
// the first later-unpaired compatible user whose pair is not excluded. No user
// appears in two pairs.
func Pair(users []*profile.Attributes, excluded map[PairKey]bool) ([]Pairing, []int64) {
	var pairs []Pairing
	var unmatched []int64
	taken := make(map[int64]bool, len(users))

	for i, a := range users {
		if taken[a.UserID] {
			continue
		}
		for _, b := range users[i+1:] {
			if taken[b.UserID] || b.UserID == a.UserID {
				continue
			}
			if !Compatible(a, b) || excluded[NewPairKey(a.UserID, b.UserID)] {
				continue
			}
			taken[a.UserID] = true
			taken[b.UserID] = true
			pairs = append(pairs, Pairing{A: a.UserID, B: b.UserID})
			break
		}
	}

	for _, u := range users {
		if !taken[u.UserID] {
			unmatched = append(unmatched, u.UserID)
		}
	}
	return pairs, unmatched
}
