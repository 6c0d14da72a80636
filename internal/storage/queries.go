package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// reader holds the read queries shared by DB and Tx.
type reader struct {
	q queryer
}

const matchColumns = `match_id, start_time, duration_seconds, outcome,
	end_time, shots_fired, shots_hit, accuracy, performance_score`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc rowScanner) (model.Match, error) {
	var (
		m        model.Match
		start    int64
		outcome  string
		endTime  sql.NullInt64
		fired    sql.NullInt64
		hit      sql.NullInt64
		accuracy sql.NullFloat64
		perf     sql.NullFloat64
	)
	if err := sc.Scan(&m.MatchID, &start, &m.DurationSeconds, &outcome,
		&endTime, &fired, &hit, &accuracy, &perf); err != nil {
		return m, err
	}
	m.StartTime = fromMillis(start)
	m.Outcome = model.Outcome(outcome)
	if endTime.Valid {
		t := fromMillis(endTime.Int64)
		m.EndTime = &t
	}
	if fired.Valid {
		v := int(fired.Int64)
		m.ShotsFired = &v
	}
	if hit.Valid {
		v := int(hit.Int64)
		m.ShotsHit = &v
	}
	if accuracy.Valid {
		v := accuracy.Float64
		m.Accuracy = &v
	}
	if perf.Valid {
		v := perf.Float64
		m.PerformanceScore = &v
	}
	return m, nil
}

func (r reader) queryMatches(ctx context.Context, op, query string, args ...any) ([]model.Match, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func (r reader) queryMatch(ctx context.Context, op, query string, args ...any) (*model.Match, error) {
	m, err := scanMatch(r.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(op, err)
	}
	return &m, nil
}

// Match returns the match with the given id, or nil when it is not stored.
func (r reader) Match(ctx context.Context, matchID string) (*model.Match, error) {
	return r.queryMatch(ctx, "get match",
		`SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, matchID)
}

// MatchByPrefix finds the most recent match whose id starts with prefix.
func (r reader) MatchByPrefix(ctx context.Context, prefix string) (*model.Match, error) {
	return r.queryMatch(ctx, "get match by prefix",
		`SELECT `+matchColumns+` FROM matches WHERE match_id LIKE ?
		 ORDER BY start_time DESC LIMIT 1`, prefix+"%")
}

// PrecedingMatch returns the match immediately before m in chronological order.
func (r reader) PrecedingMatch(ctx context.Context, m *model.Match) (*model.Match, error) {
	start := toMillis(m.StartTime)
	return r.queryMatch(ctx, "get preceding match",
		`SELECT `+matchColumns+` FROM matches
		 WHERE start_time < ? OR (start_time = ? AND match_id < ?)
		 ORDER BY start_time DESC, match_id DESC LIMIT 1`, start, start, m.MatchID)
}

// ListMatches returns up to limit matches, newest first. limit <= 0 means all.
func (r reader) ListMatches(ctx context.Context, limit int) ([]model.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches ORDER BY start_time DESC, match_id DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.queryMatches(ctx, "list matches", q)
}

// MatchesBetween returns matches with from <= start_time <= to in chronological order.
func (r reader) MatchesBetween(ctx context.Context, from, to time.Time) ([]model.Match, error) {
	return r.queryMatches(ctx, "list matches in range",
		`SELECT `+matchColumns+` FROM matches WHERE start_time BETWEEN ? AND ?
		 ORDER BY start_time, match_id`, toMillis(from), toMillis(to))
}

// MatchCount returns the number of stored matches.
func (r reader) MatchCount(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM matches`).Scan(&n); err != nil {
		return 0, storeErr("count matches", err)
	}
	return n, nil
}

// CandidateMatches returns, in chronological order, the matches that lack a
// completion marker for at least one of cats. When matchIDs is non-empty the
// search is restricted to those matches.
func (r reader) CandidateMatches(ctx context.Context, cats []model.Category, matchIDs []string) ([]model.Match, error) {
	if len(cats) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(cats)+len(matchIDs)+1)
	for _, c := range cats {
		args = append(args, c.String())
	}
	args = append(args, len(cats))

	q := `SELECT ` + matchColumns + ` FROM matches m
		WHERE (SELECT COUNT(1) FROM completion_markers cm
		       WHERE cm.match_id = m.match_id AND cm.category IN (` + placeholders(len(cats)) + `)) < ?`
	if len(matchIDs) > 0 {
		q += ` AND m.match_id IN (` + placeholders(len(matchIDs)) + `)`
		for _, id := range matchIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY m.start_time, m.match_id`
	return r.queryMatches(ctx, "candidate matches", q, args...)
}

// CompletedCategories returns the completed categories for each of matchIDs.
// Matches without any marker are absent from the map. Ledger rows naming a
// category this build does not know are ignored.
func (r reader) CompletedCategories(ctx context.Context, matchIDs []string) (map[string]model.CategorySet, error) {
	out := make(map[string]model.CategorySet, len(matchIDs))
	const chunk = 500
	for start := 0; start < len(matchIDs); start += chunk {
		end := min(start+chunk, len(matchIDs))
		ids := matchIDs[start:end]
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		rows, err := r.q.QueryContext(ctx,
			`SELECT match_id, category FROM completion_markers
			 WHERE match_id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return nil, storeErr("completed categories", err)
		}
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, storeErr("completed categories", err)
			}
			c, err := model.ParseCategory(name)
			if err != nil {
				continue
			}
			out[id] = out[id].Add(c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, storeErr("completed categories", err)
		}
	}
	return out, nil
}

// CompletedFor returns the completed categories of one match.
func (r reader) CompletedFor(ctx context.Context, matchID string) (model.CategorySet, error) {
	m, err := r.CompletedCategories(ctx, []string{matchID})
	if err != nil {
		return 0, err
	}
	return m[matchID], nil
}

// Participants returns the roster of a match.
func (r reader) Participants(ctx context.Context, matchID string) ([]model.Participant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT player_id, gamertag, team, is_self FROM participants
		WHERE match_id = ? ORDER BY team, player_id`, matchID)
	if err != nil {
		return nil, storeErr("participants", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p := model.Participant{MatchID: matchID}
		var self int
		if err := rows.Scan(&p.PlayerID, &p.Gamertag, &p.Team, &self); err != nil {
			return nil, storeErr("participants", err)
		}
		p.IsSelf = self != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("participants", err)
	}
	return out, nil
}

// ParticipantStats returns every participant's stats row for a match, best rank first.
func (r reader) ParticipantStats(ctx context.Context, matchID string) ([]model.ParticipantStats, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT player_id, personal_score, rank, kills, deaths, assists,
		       shots_fired, shots_hit, damage_dealt, damage_taken
		FROM participant_stats WHERE match_id = ?
		ORDER BY rank, player_id`, matchID)
	if err != nil {
		return nil, storeErr("participant stats", err)
	}
	defer rows.Close()

	var out []model.ParticipantStats
	for rows.Next() {
		s := model.ParticipantStats{MatchID: matchID}
		if err := rows.Scan(&s.PlayerID, &s.PersonalScore, &s.Rank,
			&s.Kills, &s.Deaths, &s.Assists,
			&s.ShotsFired, &s.ShotsHit, &s.DamageDealt, &s.DamageTaken); err != nil {
			return nil, storeErr("participant stats", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("participant stats", err)
	}
	return out, nil
}

// Events returns the stored event stream of a match in sequence order.
func (r reader) Events(ctx context.Context, matchID string) ([]model.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT seq, kind, ts_ms, player_id FROM match_events
		WHERE match_id = ? ORDER BY seq`, matchID)
	if err != nil {
		return nil, storeErr("events", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e := model.Event{MatchID: matchID}
		var kind string
		if err := rows.Scan(&e.Seq, &kind, &e.TimestampMs, &e.PlayerID); err != nil {
			return nil, storeErr("events", err)
		}
		e.Kind = model.EventKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("events", err)
	}
	return out, nil
}

// KillerVictimPairs returns the pairs of a match ordered by count DESC.
func (r reader) KillerVictimPairs(ctx context.Context, matchID string) ([]model.KillerVictimPair, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT killer_id, victim_id, count, representative_ms FROM killer_victim_pairs
		WHERE match_id = ? ORDER BY count DESC, killer_id, victim_id`, matchID)
	if err != nil {
		return nil, storeErr("killer victim pairs", err)
	}
	defer rows.Close()

	var out []model.KillerVictimPair
	for rows.Next() {
		p := model.KillerVictimPair{MatchID: matchID}
		if err := rows.Scan(&p.KillerID, &p.VictimID, &p.Count, &p.RepresentativeMs); err != nil {
			return nil, storeErr("killer victim pairs", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("killer victim pairs", err)
	}
	return out, nil
}

// Medals returns the medals earned in a match.
func (r reader) Medals(ctx context.Context, matchID string) ([]model.Medal, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT medal_id, count FROM medals WHERE match_id = ? ORDER BY count DESC, medal_id`, matchID)
	if err != nil {
		return nil, storeErr("medals", err)
	}
	defer rows.Close()

	var out []model.Medal
	for rows.Next() {
		m := model.Medal{MatchID: matchID}
		if err := rows.Scan(&m.MedalID, &m.Count); err != nil {
			return nil, storeErr("medals", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("medals", err)
	}
	return out, nil
}

// SessionAssignment returns the persisted session of a match, or nil.
func (r reader) SessionAssignment(ctx context.Context, matchID string) (*model.SessionAssignment, error) {
	a := model.SessionAssignment{MatchID: matchID}
	err := r.q.QueryRowContext(ctx, `
		SELECT session_id, session_label, anchor_date, day_ordinal
		FROM session_assignments WHERE match_id = ?`, matchID).
		Scan(&a.SessionID, &a.Label, &a.AnchorDate, &a.DayOrdinal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("session assignment", err)
	}
	return &a, nil
}

// SessionAssignmentsBetween returns persisted sessions of matches in [from, to], keyed by match id.
func (r reader) SessionAssignmentsBetween(ctx context.Context, from, to time.Time) (map[string]model.SessionAssignment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT s.match_id, s.session_id, s.session_label, s.anchor_date, s.day_ordinal
		FROM session_assignments s JOIN matches m ON m.match_id = s.match_id
		WHERE m.start_time BETWEEN ? AND ?`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, storeErr("session assignments", err)
	}
	defer rows.Close()

	out := make(map[string]model.SessionAssignment)
	for rows.Next() {
		var a model.SessionAssignment
		if err := rows.Scan(&a.MatchID, &a.SessionID, &a.Label, &a.AnchorDate, &a.DayOrdinal); err != nil {
			return nil, storeErr("session assignments", err)
		}
		out[a.MatchID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("session assignments", err)
	}
	return out, nil
}

// SignaturePoints returns every match starting at or before until, in
// chronological order, with the owner's teammate signature.
func (r reader) SignaturePoints(ctx context.Context, until time.Time) ([]model.SignaturePoint, error) {
	bound := toMillis(until)
	matches, err := r.queryMatches(ctx, "signature points",
		`SELECT `+matchColumns+` FROM matches WHERE start_time <= ? ORDER BY start_time, match_id`, bound)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT p.match_id, p.player_id, p.team, p.is_self
		FROM participants p JOIN matches m ON m.match_id = p.match_id
		WHERE m.start_time <= ?`, bound)
	if err != nil {
		return nil, storeErr("signature participants", err)
	}
	rosters := make(map[string][]model.Participant)
	for rows.Next() {
		var p model.Participant
		var self int
		if err := rows.Scan(&p.MatchID, &p.PlayerID, &p.Team, &self); err != nil {
			rows.Close()
			return nil, storeErr("signature participants", err)
		}
		p.IsSelf = self != 0
		rosters[p.MatchID] = append(rosters[p.MatchID], p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storeErr("signature participants", err)
	}

	complete := make(map[string]bool)
	mrows, err := r.q.QueryContext(ctx, `
		SELECT cm.match_id FROM completion_markers cm JOIN matches m ON m.match_id = cm.match_id
		WHERE cm.category = ? AND m.start_time <= ?`, model.CategoryParticipants.String(), bound)
	if err != nil {
		return nil, storeErr("signature markers", err)
	}
	for mrows.Next() {
		var id string
		if err := mrows.Scan(&id); err != nil {
			mrows.Close()
			return nil, storeErr("signature markers", err)
		}
		complete[id] = true
	}
	err = mrows.Err()
	mrows.Close()
	if err != nil {
		return nil, storeErr("signature markers", err)
	}

	out := make([]model.SignaturePoint, len(matches))
	for i, m := range matches {
		out[i] = model.SignaturePoint{
			MatchID:   m.MatchID,
			StartTime: m.StartTime,
			Signature: model.SignatureFromParticipants(rosters[m.MatchID]),
			HasRoster: complete[m.MatchID],
		}
	}
	return out, nil
}

const metricsSelect = `
	SELECT m.match_id, m.start_time, m.duration_seconds,
	       ps.kills, ps.deaths, ps.assists, m.accuracy,
	       ps.personal_score, ps.damage_dealt, ps.rank,
	       (SELECT COUNT(1) FROM participants p2 WHERE p2.match_id = m.match_id)
	FROM matches m
	JOIN participants p ON p.match_id = m.match_id AND p.is_self = 1
	JOIN participant_stats ps ON ps.match_id = m.match_id AND ps.player_id = p.player_id`

func scanMetrics(sc rowScanner) (model.PlayerMatchMetrics, error) {
	var pm model.PlayerMatchMetrics
	var start int64
	var acc sql.NullFloat64
	err := sc.Scan(&pm.MatchID, &start, &pm.DurationSeconds,
		&pm.Kills, &pm.Deaths, &pm.Assists, &acc,
		&pm.PersonalScore, &pm.DamageDealt, &pm.Rank, &pm.Players)
	pm.StartTime = fromMillis(start)
	if acc.Valid {
		pm.Accuracy = &acc.Float64
	}
	return pm, err
}

// PlayerMetrics returns the owner's scoring inputs for one match, or nil when
// the owner has no stats row in it.
func (r reader) PlayerMetrics(ctx context.Context, matchID string) (*model.PlayerMatchMetrics, error) {
	pm, err := scanMetrics(r.q.QueryRowContext(ctx, metricsSelect+` WHERE m.match_id = ?`, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("player metrics", err)
	}
	return &pm, nil
}

// MetricsHistory returns the owner's scoring inputs for every match that
// started strictly before the given time and has all of the given categories
// complete, in chronological order.
func (r reader) MetricsHistory(ctx context.Context, before time.Time, required []model.Category) ([]model.PlayerMatchMetrics, error) {
	args := []any{toMillis(before)}
	q := metricsSelect + ` WHERE m.start_time < ?`
	if len(required) > 0 {
		q += ` AND (SELECT COUNT(1) FROM completion_markers cm
		            WHERE cm.match_id = m.match_id AND cm.category IN (` + placeholders(len(required)) + `)) = ?`
		for _, c := range required {
			args = append(args, c.String())
		}
		args = append(args, len(required))
	}
	q += ` ORDER BY m.start_time, m.match_id`

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("metrics history", err)
	}
	defer rows.Close()

	var out []model.PlayerMatchMetrics
	for rows.Next() {
		pm, err := scanMetrics(rows)
		if err != nil {
			return nil, storeErr("metrics history", err)
		}
		out = append(out, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("metrics history", err)
	}
	return out, nil
}

// QueryRaw runs an arbitrary read query and returns column names and stringified rows.
func (r reader) QueryRaw(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			switch t := v.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(t)
			default:
				row[i] = fmt.Sprint(t)
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
