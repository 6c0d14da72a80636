package storage

import (
	"context"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// CategoryCompletion holds how many stored matches carry a completion marker
// for each category.
type CategoryCompletion struct {
	Matches   int
	Completed map[model.Category]int
}

// RivalTotals is one killer/victim pair summed across every stored match.
type RivalTotals struct {
	KillerID string
	VictimID string
	Gamertag string // victim gamertag when known, otherwise killer gamertag
	Kills    int
	Matches  int
}

// HistoryState is how far history discovery has got. Once Complete is set
// every match older than the newest stored one is stored too. Before that,
// only the Walked history entries starting at the newest stored match are
// known to be stored.
type HistoryState struct {
	Complete bool
	Walked   int
}

// InsertMatchHeaders stores newly discovered matches in one transaction and
// returns how many were new.
func (db *DB) InsertMatchHeaders(ctx context.Context, headers []model.MatchHeader, seenAt time.Time) (int, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := tx.InsertMatchHeaders(ctx, headers, seenAt)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// HistoryState returns the stored discovery progress. A fresh database
// reports the zero value.
func (db *DB) HistoryState(ctx context.Context) (HistoryState, error) {
	var st HistoryState
	var complete int
	err := db.conn.QueryRowContext(ctx,
		`SELECT history_complete, walked FROM sync_state WHERE id = 1`).Scan(&complete, &st.Walked)
	if isNoRows(err) {
		return HistoryState{}, nil
	}
	if err != nil {
		return HistoryState{}, storeErr("history state", err)
	}
	st.Complete = complete != 0
	return st, nil
}

// StoreHistoryPage inserts one page of discovered matches and the progress
// reached with it in a single transaction. It returns how many were new.
func (db *DB) StoreHistoryPage(ctx context.Context, headers []model.MatchHeader, st HistoryState, seenAt time.Time) (int, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := tx.InsertMatchHeaders(ctx, headers, seenAt)
	if err != nil {
		return 0, err
	}
	if err := tx.SetHistoryState(ctx, st, seenAt); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Completion returns per-category marker counts over all stored matches.
func (db *DB) Completion(ctx context.Context) (*CategoryCompletion, error) {
	total, err := db.MatchCount(ctx)
	if err != nil {
		return nil, err
	}
	out := &CategoryCompletion{Matches: total, Completed: make(map[model.Category]int)}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT category, COUNT(1) FROM completion_markers GROUP BY category`)
	if err != nil {
		return nil, storeErr("completion counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, storeErr("completion counts", err)
		}
		c, err := model.ParseCategory(name)
		if err != nil {
			continue
		}
		out.Completed[c] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("completion counts", err)
	}
	return out, nil
}

// RivalTotals sums killer/victim pairs involving playerID across all matches,
// most frequent first. limit <= 0 returns every pair.
func (db *DB) RivalTotals(ctx context.Context, playerID string, limit int) ([]RivalTotals, error) {
	q := `
		SELECT k.killer_id, k.victim_id,
		       COALESCE((SELECT p.gamertag FROM participants p
		                 WHERE p.player_id = CASE WHEN k.killer_id = ? THEN k.victim_id ELSE k.killer_id END
		                   AND p.gamertag <> '' LIMIT 1), ''),
		       SUM(k.count), COUNT(DISTINCT k.match_id)
		FROM killer_victim_pairs k
		WHERE k.killer_id = ? OR k.victim_id = ?
		GROUP BY k.killer_id, k.victim_id
		ORDER BY SUM(k.count) DESC, k.killer_id, k.victim_id`
	args := []any{playerID, playerID, playerID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("rival totals", err)
	}
	defer rows.Close()

	var out []RivalTotals
	for rows.Next() {
		var r RivalTotals
		if err := rows.Scan(&r.KillerID, &r.VictimID, &r.Gamertag, &r.Kills, &r.Matches); err != nil {
			return nil, storeErr("rival totals", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("rival totals", err)
	}
	return out, nil
}

// OwnerID returns the player id flagged as self in any stored roster, or ""
// when no roster has been materialized yet.
func (db *DB) OwnerID(ctx context.Context) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT player_id FROM participants WHERE is_self = 1 LIMIT 1`).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", storeErr("owner id", err)
	}
	return id, nil
}
