// internal/profile/repository.go

package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
)

// Profiles are owned by the account service. This package only reads them, with any
// database.Queryer so callers can stay inside their own transaction.

// GetSummary loads the public card of one user.
func GetSummary(ctx context.Context, q database.Queryer, userID int64) (*Summary, error) {
	var s Summary
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(`
		SELECT id, username, profile_picture
		FROM users
		WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get profile summary", err)
	}
	return &s, nil
}

// GetSummaries loads the cards of ids keyed by user id. Unknown ids are skipped.
func GetSummaries(ctx context.Context, q database.Queryer, ids []int64) (map[int64]*Summary, error) {
	out := make(map[int64]*Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, username, profile_picture
		FROM users
		WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Store("build profile summaries query", err)
	}

	var rows []*Summary
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, apperr.Store("get profile summaries", err)
	}
	for _, s := range rows {
		out[s.ID] = s
	}
	return out, nil
}

// GetAttributes loads gender and interested_gender of ids. Users without an
// interested_gender preference get an empty string and never satisfy a pairing.
func GetAttributes(ctx context.Context, q database.Queryer, ids []int64) ([]*Attributes, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT u.id, u.gender, COALESCE(p.value, '') AS interested_gender
		FROM users u
		LEFT JOIN user_preferences p ON p.user_id = u.id AND p.key = 'interested_gender'
		WHERE u.id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Store("build attributes query", err)
	}

	var rows []*Attributes
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, apperr.Store("get attributes", err)
	}
	return rows, nil
}

// GetPreferences returns every preference pair of userID.
func GetPreferences(ctx context.Context, q database.Queryer, userID int64) (map[string]string, error) {
	return keyValues(ctx, q, "user_preferences", userID)
}

// GetMetadataFor returns the attribute maps of ids keyed by user id.
func GetMetadataFor(ctx context.Context, q database.Queryer, ids []int64) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT user_id, key, value FROM user_metadata WHERE user_id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Store("build metadata query", err)
	}

	var rows []struct {
		UserID int64  `db:"user_id"`
		Key    string `db:"key"`
		Value  string `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, apperr.Store("get metadata", err)
	}
	for _, row := range rows {
		if out[row.UserID] == nil {
			out[row.UserID] = make(map[string]string)
		}
		out[row.UserID][row.Key] = row.Value
	}
	return out, nil
}

func keyValues(ctx context.Context, q database.Queryer, table string, userID int64) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	query := q.Rebind(fmt.Sprintf(`SELECT key, value FROM %s WHERE user_id = ?`, table))
	if err := sqlx.SelectContext(ctx, q, &rows, query, userID); err != nil {
		return nil, apperr.Store("get "+table, err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
