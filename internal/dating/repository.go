package dating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
	"github.com/imadgeboyega/kiekky-connect/internal/profile"
)

type Repository interface {
	// Swipes
	RecordSwipe(ctx context.Context, likerID, likedID int64, liked bool) (*SwipeResult, error)

	// Discovery pool
	RefillQueue(ctx context.Context, userID int64) (*QueueResult, error)
	GetPool(ctx context.Context, userID int64) (*Pool, error)

	// Connections
	GetConnections(ctx context.Context, userID int64) (*Connections, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Swipe Methods

// RecordSwipe applies one swipe as a single transaction. Both pool rows are locked in
// id order, so concurrent swipes on the same pair serialize instead of deadlocking.
func (r *postgresRepository) RecordSwipe(ctx context.Context, likerID, likedID int64, liked bool) (*SwipeResult, error) {
	result := &SwipeResult{}

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		pools, err := lockPools(ctx, tx, likerID, likedID)
		if err != nil {
			return err
		}

		own := pools[likerID]
		if !own.MatchQueue.Contains(likedID) {
			return apperr.ErrNotInQueue
		}

		connected, err := pairConnected(ctx, tx, likerID, likedID)
		if err != nil {
			return err
		}
		if connected {
			return apperr.ErrAlreadyMatched
		}

		if liked {
			reciprocated, err := consumeLike(ctx, tx, likedID, likerID)
			if err != nil {
				return err
			}
			if reciprocated {
				if _, err := tx.ExecContext(ctx, tx.Rebind(`
					INSERT INTO matches (user1_id, user2_id) VALUES (?, ?)`), likerID, likedID); err != nil {
					return fmt.Errorf("insert match: %w", err)
				}

				own.Interact(likedID)
				other := pools[likedID]
				other.Interact(likerID)
				if err := savePool(ctx, tx, own); err != nil {
					return err
				}
				if err := savePool(ctx, tx, other); err != nil {
					return err
				}

				summary, err := profile.GetSummary(ctx, tx, likedID)
				if err != nil {
					return err
				}
				result.Match = true
				result.MatchedUser = summary
				return nil
			}
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO likes (liker_id, liked_id, liked) VALUES (?, ?, ?)`), likerID, likedID, liked); err != nil {
			return fmt.Errorf("insert like: %w", err)
		}

		own.Interact(likedID)
		return savePool(ctx, tx, own)
	})
	if err != nil {
		return nil, apperr.Store("record swipe", err)
	}
	return result, nil
}

// Discovery Pool Methods

// RefillQueue re-admits pending match partners, then tops the queue up with fresh
// candidates. The returned cards are the part of this refill that fit in the queue.
func (r *postgresRepository) RefillQueue(ctx context.Context, userID int64) (*QueueResult, error) {
	result := &QueueResult{Matches: []*Candidate{}}

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var universityID int64
		err := tx.GetContext(ctx, &universityID, tx.Rebind(`SELECT university_id FROM users WHERE id = ?`), userID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		prefs, err := profile.GetPreferences(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.PreferencesSet = len(prefs) > 1

		pools, err := lockPools(ctx, tx, userID)
		if err != nil {
			return err
		}
		pool := pools[userID]

		partners, err := matchPartners(ctx, tx, userID)
		if err != nil {
			return err
		}

		limit := QueueLimit - len(partners)
		fresh := IDList{}
		if limit > 0 {
			exclude := merge(-1, pool.AlreadyInteracted, IDList{userID}, partners, pool.MatchQueue)
			fresh, err = findCandidates(ctx, tx, universityID, prefs, exclude, limit)
			if err != nil {
				return err
			}
		}

		selection := merge(-1, partners, fresh)
		pool.MatchQueue = merge(QueueLimit, pool.MatchQueue, selection)
		if err := savePool(ctx, tx, pool); err != nil {
			return err
		}

		kept := IDList{}
		for _, id := range selection {
			if pool.MatchQueue.Contains(id) {
				kept = append(kept, id)
			}
		}
		result.Matches, err = loadCandidates(ctx, tx, kept)
		return err
	})
	if err != nil {
		return nil, apperr.Store("refill queue", err)
	}
	return result, nil
}

// GetPool returns the pool of userID, empty when it was never populated.
func (r *postgresRepository) GetPool(ctx context.Context, userID int64) (*Pool, error) {
	pools, err := lockPools(ctx, r.db, userID)
	if err != nil {
		return nil, apperr.Store("get pool", err)
	}
	return pools[userID], nil
}

// Connection Methods

func (r *postgresRepository) GetConnections(ctx context.Context, userID int64) (*Connections, error) {
	partners, err := matchPartners(ctx, r.db, userID)
	if err != nil {
		return nil, apperr.Store("get connections", err)
	}

	var chats []struct {
		ChatID          int64          `db:"chat_id"`
		OtherID         int64          `db:"other_id"`
		UnseenCount     int            `db:"unseen_count"`
		LastMessage     sql.NullString `db:"last_message"`
		LastMessageType sql.NullString `db:"last_message_media_type"`
	}
	// Chats without messages sort last
	err = r.db.SelectContext(ctx, &chats, r.db.Rebind(`
		SELECT me.chat_id, other.user_id AS other_id, me.unseen_count,
		       m.message AS last_message, c.last_message_media_type
		FROM chat_participants me
		JOIN chat_participants other ON other.chat_id = me.chat_id AND other.user_id <> me.user_id
		JOIN chats c ON c.id = me.chat_id
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE me.user_id = ?
		ORDER BY m.timestamp IS NULL, m.timestamp DESC, me.chat_id DESC`), userID)
	if err != nil {
		return nil, apperr.Store("get connection chats", err)
	}

	ids := append([]int64{}, partners...)
	for _, c := range chats {
		ids = append(ids, c.OtherID)
	}
	summaries, err := profile.GetSummaries(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	out := &Connections{Matches: []*profile.Summary{}, Chats: []*ConnectionChat{}}
	for _, id := range partners {
		if s, ok := summaries[id]; ok {
			out.Matches = append(out.Matches, s)
		}
	}
	for _, c := range chats {
		s, ok := summaries[c.OtherID]
		if !ok {
			continue
		}
		out.Chats = append(out.Chats, &ConnectionChat{
			Summary:              *s,
			ChatRoomID:           c.ChatID,
			UnseenCounter:        c.UnseenCount,
			LastMessage:          nullString(c.LastMessage),
			LastMessageMediaType: nullString(c.LastMessageType),
		})
	}
	return out, nil
}

// Helpers

// lockPools loads the pools of ids, locking the rows on Postgres. Missing pools come
// back empty so callers can create them.
func lockPools(ctx context.Context, q database.Queryer, ids ...int64) (map[int64]*Pool, error) {
	query, args, err := sqlx.In(`
		SELECT user_id, match_queue, already_interacted
		FROM user_discovery_pool
		WHERE user_id IN (?)
		ORDER BY user_id`+database.ForUpdate(q), ids)
	if err != nil {
		return nil, fmt.Errorf("build pool query: %w", err)
	}

	var rows []*Pool
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	pools := make(map[int64]*Pool, len(ids))
	for _, p := range rows {
		pools[p.UserID] = p
	}
	for _, id := range ids {
		if pools[id] == nil {
			pools[id] = &Pool{UserID: id, MatchQueue: IDList{}, AlreadyInteracted: IDList{}}
		}
	}
	return pools, nil
}

func savePool(ctx context.Context, q database.Queryer, p *Pool) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO user_discovery_pool (user_id, match_queue, already_interacted)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET match_queue = excluded.match_queue, already_interacted = excluded.already_interacted`),
		p.UserID, p.MatchQueue, p.AlreadyInteracted)
	if err != nil {
		return fmt.Errorf("save pool %d: %w", p.UserID, err)
	}
	return nil
}

// pairConnected reports whether a Match or a shared chat exists for the unordered pair.
func pairConnected(ctx context.Context, q database.Queryer, a, b int64) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM matches
			 WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?))
			+
			(SELECT COUNT(*) FROM chat_participants x
			 JOIN chat_participants y ON y.chat_id = x.chat_id
			 WHERE x.user_id = ? AND y.user_id = ?)`),
		a, b, b, a, a, b)
	if err != nil {
		return false, fmt.Errorf("check pair: %w", err)
	}
	return n > 0, nil
}

// consumeLike deletes an outstanding like from liker to liked and reports whether one existed.
func consumeLike(ctx context.Context, q database.Queryer, likerID, likedID int64) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`
		DELETE FROM likes WHERE liker_id = ? AND liked_id = ? AND liked = ?`), likerID, likedID, true)
	if err != nil {
		return false, fmt.Errorf("delete reciprocal like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reciprocal like: %w", err)
	}
	return n > 0, nil
}

// matchPartners returns the other side of every Match of userID, ascending.
func matchPartners(ctx context.Context, q database.Queryer, userID int64) (IDList, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(`
		SELECT CASE WHEN user1_id = ? THEN user2_id ELSE user1_id END AS partner
		FROM matches
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY partner`), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("load match partners: %w", err)
	}
	return IDList(ids), nil
}

// findCandidates selects up to limit users in the same university with the preferred
// gender whose attributes match every extra preference pair.
func findCandidates(ctx context.Context, q database.Queryer, universityID int64, prefs map[string]string, exclude IDList, limit int) (IDList, error) {
	query := `
		SELECT u.id
		FROM users u
		WHERE u.university_id = ?
		  AND u.gender = ?
		  AND u.id NOT IN (?)`
	args := []interface{}{universityID, prefs["interested_gender"], []int64(exclude)}

	keys := make([]string, 0, len(prefs))
	for key := range prefs {
		if key != "interested_gender" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for i, key := range keys {
		query += fmt.Sprintf(`
		  AND EXISTS (
			SELECT 1 FROM user_metadata m%d
			WHERE m%d.user_id = u.id AND m%d.key = ? AND m%d.value = ?
		  )`, i, i, i, i)
		args = append(args, key, prefs[key])
	}
	query += fmt.Sprintf(`
		ORDER BY u.id
		LIMIT %d`, limit)

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	var ids []int64
	if err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return IDList(ids), nil
}

// loadCandidates returns the cards of ids in the order given.
func loadCandidates(ctx context.Context, q database.Queryer, ids IDList) ([]*Candidate, error) {
	out := []*Candidate{}
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, username, gender, university_id, profile_picture
		FROM users
		WHERE id IN (?)`, []int64(ids))
	if err != nil {
		return nil, fmt.Errorf("build card query: %w", err)
	}

	var rows []*Candidate
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	metadata, err := profile.GetMetadataFor(ctx, q, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*Candidate, len(rows))
	for _, c := range rows {
		c.Metadata = metadata[c.ID]
		byID[c.ID] = c
	}
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
