package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// Tx is an open write transaction. Reads made through a Tx see rows written
// earlier in the same transaction. Every row-set write is keyed by match id,
// so repeating a write with the same input leaves the store unchanged.
type Tx struct {
	reader
	tx   *sql.Tx
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return storeErr("rollback", err)
	}
	return nil
}

// exec runs a statement and returns the number of affected rows.
func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return int(n), nil
}

// replaceRows deletes the existing rows of matchID from table and inserts
// one row per args entry with the prepared insert statement.
func (t *Tx) replaceRows(ctx context.Context, op, table, matchID, insert string, rows [][]any) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE match_id = ?`, matchID); err != nil {
		return 0, storeErr(op, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, storeErr(op, err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, storeErr(op, err)
		}
	}
	return len(rows), nil
}

// InsertMatchHeaders stores newly discovered matches. Matches already present
// are left untouched. It returns how many were new.
func (t *Tx) InsertMatchHeaders(ctx context.Context, headers []model.MatchHeader, seenAt time.Time) (int, error) {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO matches (match_id, start_time, duration_seconds, outcome, first_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO NOTHING`)
	if err != nil {
		return 0, storeErr("insert match headers", err)
	}
	defer stmt.Close()

	added := 0
	for _, h := range headers {
		res, err := stmt.ExecContext(ctx, h.MatchID, toMillis(h.StartTime), h.DurationSeconds,
			string(h.Outcome), toMillis(seenAt))
		if err != nil {
			return added, storeErr("insert match headers", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// SetHistoryState records how far history discovery has got.
func (t *Tx) SetHistoryState(ctx context.Context, st HistoryState, at time.Time) error {
	_, err := t.exec(ctx, "set history state", `
		INSERT INTO sync_state (id, history_complete, walked, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET history_complete = excluded.history_complete,
		                              walked = excluded.walked,
		                              updated_at = excluded.updated_at`,
		boolInt(st.Complete), st.Walked, toMillis(at))
	return err
}

func (t *Tx) ReplaceMedals(ctx context.Context, matchID string, medals []model.Medal) (int, error) {
	rows := make([][]any, len(medals))
	for i, m := range medals {
		rows[i] = []any{matchID, m.MedalID, m.Count}
	}
	return t.replaceRows(ctx, "replace medals", "medals", matchID,
		`INSERT INTO medals (match_id, medal_id, count) VALUES (?, ?, ?)`, rows)
}

func (t *Tx) ReplaceScoreAwards(ctx context.Context, matchID string, awards []model.ScoreAward) (int, error) {
	rows := make([][]any, len(awards))
	for i, a := range awards {
		rows[i] = []any{matchID, a.AwardID, a.Count, a.TotalScore}
	}
	return t.replaceRows(ctx, "replace score awards", "score_awards", matchID,
		`INSERT INTO score_awards (match_id, award_id, count, total_score) VALUES (?, ?, ?, ?)`, rows)
}

func (t *Tx) ReplaceAssetRefs(ctx context.Context, matchID string, refs []model.AssetRef) (int, error) {
	rows := make([][]any, len(refs))
	for i, r := range refs {
		rows[i] = []any{matchID, r.Kind, r.AssetID, r.VersionID}
	}
	return t.replaceRows(ctx, "replace asset refs", "asset_refs", matchID,
		`INSERT INTO asset_refs (match_id, kind, asset_id, version_id) VALUES (?, ?, ?, ?)`, rows)
}

func (t *Tx) ReplaceParticipants(ctx context.Context, matchID string, parts []model.Participant) (int, error) {
	rows := make([][]any, len(parts))
	for i, p := range parts {
		rows[i] = []any{matchID, p.PlayerID, p.Gamertag, p.Team, boolInt(p.IsSelf)}
	}
	return t.replaceRows(ctx, "replace participants", "participants", matchID,
		`INSERT INTO participants (match_id, player_id, gamertag, team, is_self) VALUES (?, ?, ?, ?, ?)`, rows)
}

// upsertStatColumns writes a subset of participant_stats columns, leaving the
// columns owned by other categories as they are.
func (t *Tx) upsertStatColumns(ctx context.Context, op string, cols []string, stats []model.ParticipantStats, values func(model.ParticipantStats) []any) (int, error) {
	insertCols := "match_id, player_id"
	marks := "?, ?"
	update := ""
	for i, c := range cols {
		insertCols += ", " + c
		marks += ", ?"
		if i > 0 {
			update += ", "
		}
		update += fmt.Sprintf("%s = excluded.%s", c, c)
	}
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO participant_stats (`+insertCols+`)
		VALUES (`+marks+`)
		ON CONFLICT(match_id, player_id) DO UPDATE SET `+update)
	if err != nil {
		return 0, storeErr(op, err)
	}
	defer stmt.Close()

	for _, s := range stats {
		args := append([]any{s.MatchID, s.PlayerID}, values(s)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, storeErr(op, err)
		}
	}
	return len(stats), nil
}

func (t *Tx) UpsertParticipantScores(ctx context.Context, stats []model.ParticipantStats) (int, error) {
	return t.upsertStatColumns(ctx, "upsert participant scores",
		[]string{"personal_score", "rank"}, stats,
		func(s model.ParticipantStats) []any { return []any{s.PersonalScore, s.Rank} })
}

func (t *Tx) UpsertParticipantKDA(ctx context.Context, stats []model.ParticipantStats) (int, error) {
	return t.upsertStatColumns(ctx, "upsert participant kda",
		[]string{"kills", "deaths", "assists"}, stats,
		func(s model.ParticipantStats) []any { return []any{s.Kills, s.Deaths, s.Assists} })
}

func (t *Tx) UpsertParticipantShots(ctx context.Context, stats []model.ParticipantStats) (int, error) {
	return t.upsertStatColumns(ctx, "upsert participant shots",
		[]string{"shots_fired", "shots_hit", "damage_dealt", "damage_taken"}, stats,
		func(s model.ParticipantStats) []any {
			return []any{s.ShotsFired, s.ShotsHit, s.DamageDealt, s.DamageTaken}
		})
}

func (t *Tx) UpsertSkillSnapshot(ctx context.Context, s model.SkillSnapshot) (int, error) {
	return t.exec(ctx, "upsert skill snapshot", `
		INSERT OR REPLACE INTO skill_snapshots (match_id, pre_csr, post_csr, expected_kills, expected_deaths)
		VALUES (?, ?, ?, ?, ?)`, s.MatchID, s.PreCSR, s.PostCSR, s.ExpectedKills, s.ExpectedDeaths)
}

func (t *Tx) ReplaceOpposingSkill(ctx context.Context, matchID string, teams []model.OpposingSkill) (int, error) {
	rows := make([][]any, len(teams))
	for i, o := range teams {
		rows[i] = []any{matchID, o.Team, o.AvgCSR, o.Players}
	}
	return t.replaceRows(ctx, "replace opposing skill", "opposing_skill", matchID,
		`INSERT INTO opposing_skill (match_id, team, avg_csr, players) VALUES (?, ?, ?, ?)`, rows)
}

func (t *Tx) ReplaceEvents(ctx context.Context, matchID string, events []model.Event) (int, error) {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{matchID, e.Seq, string(e.Kind), e.TimestampMs, e.PlayerID}
	}
	return t.replaceRows(ctx, "replace events", "match_events", matchID,
		`INSERT INTO match_events (match_id, seq, kind, ts_ms, player_id) VALUES (?, ?, ?, ?, ?)`, rows)
}

func (t *Tx) ReplaceKillerVictimPairs(ctx context.Context, matchID string, pairs []model.KillerVictimPair) (int, error) {
	rows := make([][]any, len(pairs))
	for i, p := range pairs {
		rows[i] = []any{matchID, p.KillerID, p.VictimID, p.Count, p.RepresentativeMs}
	}
	return t.replaceRows(ctx, "replace killer victim pairs", "killer_victim_pairs", matchID,
		`INSERT INTO killer_victim_pairs (match_id, killer_id, victim_id, count, representative_ms)
		 VALUES (?, ?, ?, ?, ?)`, rows)
}

func (t *Tx) SetShotCounts(ctx context.Context, matchID string, fired, hit int) (int, error) {
	return t.exec(ctx, "set shot counts",
		`UPDATE matches SET shots_fired = ?, shots_hit = ? WHERE match_id = ?`, fired, hit, matchID)
}

func (t *Tx) SetAccuracy(ctx context.Context, matchID string, accuracy *float64) (int, error) {
	return t.exec(ctx, "set accuracy",
		`UPDATE matches SET accuracy = ? WHERE match_id = ?`, nullFloat(accuracy), matchID)
}

func (t *Tx) SetEndTime(ctx context.Context, matchID string, end time.Time) (int, error) {
	return t.exec(ctx, "set end time",
		`UPDATE matches SET end_time = ? WHERE match_id = ?`, toMillis(end), matchID)
}

func (t *Tx) SetPerformanceScore(ctx context.Context, matchID string, score *float64) (int, error) {
	return t.exec(ctx, "set performance score",
		`UPDATE matches SET performance_score = ? WHERE match_id = ?`, nullFloat(score), matchID)
}

// UpsertSessionAssignment persists the session of one match.
func (t *Tx) UpsertSessionAssignment(ctx context.Context, a model.SessionAssignment, computedAt time.Time) (int, error) {
	return t.exec(ctx, "upsert session assignment", `
		INSERT INTO session_assignments (match_id, session_id, session_label, anchor_date, day_ordinal, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			session_id = excluded.session_id,
			session_label = excluded.session_label,
			anchor_date = excluded.anchor_date,
			day_ordinal = excluded.day_ordinal,
			computed_at = excluded.computed_at`,
		a.MatchID, a.SessionID, a.Label, a.AnchorDate, a.DayOrdinal, toMillis(computedAt))
}

// DeleteSessionAssignments removes persisted sessions and their completion
// markers for the given matches, so they are recomputed. An empty list
// clears every match.
func (t *Tx) DeleteSessionAssignments(ctx context.Context, matchIDs []string) (int, error) {
	cat := model.CategorySessionAssignment.String()
	if len(matchIDs) == 0 {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM completion_markers WHERE category = ?`, cat); err != nil {
			return 0, storeErr("clear session markers", err)
		}
		return t.exec(ctx, "delete session assignments", `DELETE FROM session_assignments`)
	}
	args := make([]any, len(matchIDs))
	for i, id := range matchIDs {
		args[i] = id
	}
	in := placeholders(len(matchIDs))
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM completion_markers WHERE category = ? AND match_id IN (`+in+`)`,
		append([]any{cat}, args...)...); err != nil {
		return 0, storeErr("clear session markers", err)
	}
	return t.exec(ctx, "delete session assignments",
		`DELETE FROM session_assignments WHERE match_id IN (`+in+`)`, args...)
}

// MarkComplete records that category c has been materialized for matchID.
func (t *Tx) MarkComplete(ctx context.Context, matchID string, c model.Category, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO completion_markers (match_id, category, completed_at) VALUES (?, ?, ?)
		ON CONFLICT(match_id, category) DO NOTHING`, matchID, c.String(), toMillis(at))
	if err != nil {
		return storeErr("mark complete", err)
	}
	return nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
