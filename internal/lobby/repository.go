package lobby

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
	"github.com/imadgeboyega/kiekky-connect/internal/profile"
)

type Repository interface {
	Attributes(ctx context.Context, ids []int64) ([]*profile.Attributes, error)
	// ExcludedPairs returns every pair among ids that already shares a Match or a chat.
	ExcludedPairs(ctx context.Context, ids []int64) (map[PairKey]bool, error)
	CreateMatches(ctx context.Context, pairs []Pairing) error
	Summaries(ctx context.Context, ids []int64) (map[int64]*profile.Summary, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Attributes(ctx context.Context, ids []int64) ([]*profile.Attributes, error) {
	return profile.GetAttributes(ctx, r.db, ids)
}

func (r *postgresRepository) Summaries(ctx context.Context, ids []int64) (map[int64]*profile.Summary, error) {
	return profile.GetSummaries(ctx, r.db, ids)
}

func (r *postgresRepository) ExcludedPairs(ctx context.Context, ids []int64) (map[PairKey]bool, error) {
	excluded := make(map[PairKey]bool)
	if len(ids) < 2 {
		return excluded, nil
	}

	query, args, err := sqlx.In(`
		SELECT user1_id AS a, user2_id AS b
		FROM matches
		WHERE user1_id IN (?) AND user2_id IN (?)
		UNION
		SELECT x.user_id AS a, y.user_id AS b
		FROM chat_participants x
		JOIN chat_participants y ON y.chat_id = x.chat_id AND y.user_id <> x.user_id
		WHERE x.user_id IN (?) AND y.user_id IN (?)`, ids, ids, ids, ids)
	if err != nil {
		return nil, apperr.Store("build exclusion query", err)
	}

	var rows []struct {
		A int64 `db:"a"`
		B int64 `db:"b"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperr.Store("load exclusions", err)
	}
	for _, row := range rows {
		excluded[NewPairKey(row.A, row.B)] = true
	}
	return excluded, nil
}

// CreateMatches persists every pair in one transaction. A pair matched concurrently
// by a swipe already has its row and is left alone. An outstanding like between the
// pair is consumed by the match.
func (r *postgresRepository) CreateMatches(ctx context.Context, pairs []Pairing) error {
	if len(pairs) == 0 {
		return nil
	}

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		insert := tx.Rebind(`INSERT INTO matches (user1_id, user2_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
		consume := tx.Rebind(`
			DELETE FROM likes
			WHERE liked = TRUE
			  AND ((liker_id = ? AND liked_id = ?) OR (liker_id = ? AND liked_id = ?))`)
		for _, p := range pairs {
			if _, err := tx.ExecContext(ctx, insert, p.A, p.B); err != nil {
				return fmt.Errorf("insert match %d-%d: %w", p.A, p.B, err)
			}
			if _, err := tx.ExecContext(ctx, consume, p.A, p.B, p.B, p.A); err != nil {
				return fmt.Errorf("consume likes %d-%d: %w", p.A, p.B, err)
			}
		}
		return nil
	})
	return apperr.Store("create lobby matches", err)
}
