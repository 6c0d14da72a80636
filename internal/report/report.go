// Package report renders stored data and backfill results as terminal tables
// or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/go-match-sync/internal/backfill"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/session"
	"github.com/pable/go-match-sync/internal/storage"
)

var (
	cHeader = color.New(color.FgCyan, color.Bold)
	cOK     = color.New(color.FgGreen)
	cWarn   = color.New(color.FgYellow)
	cError  = color.New(color.FgRed, color.Bold)
	cMuted  = color.New(color.Faint)
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

// sortedCounts orders categories by declaration so tables are stable.
func sortedCounts(c backfill.Counts) []model.Category {
	cats := make([]model.Category, 0, len(c))
	for k := range c {
		cats = append(cats, k)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// PrintBackfill prints the outcome of one backfill run.
func PrintBackfill(w io.Writer, r *backfill.Report) {
	mode := "backfill"
	if r.DryRun {
		mode = "dry run"
	}
	cHeader.Fprintf(w, "\n=== %s %s ===\n", strings.ToUpper(mode[:1])+mode[1:], r.PlayerID)
	cMuted.Fprintf(w, "run %s  |  %s\n\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(w, "  Categories    : %s\n", strings.Join(r.Resolved, ", "))
	fmt.Fprintf(w, "  Candidates    : %d\n", r.Candidates)
	fmt.Fprintf(w, "  Planned       : %d", r.Planned)
	if r.Capped > 0 {
		cWarn.Fprintf(w, "  (%d more beyond the cap)", r.Capped)
	}
	fmt.Fprintln(w)
	if r.SessionsCleared > 0 {
		fmt.Fprintf(w, "  Sessions reset: %d\n", r.SessionsCleared)
	}
	if !r.DryRun {
		fmt.Fprintf(w, "  Visited       : %d (%d full, %d partial)\n",
			r.MatchesVisited, r.FullyProcessed, r.PartiallyProcessed)
		fmt.Fprintf(w, "  Batches       : %d\n", r.BatchesCommitted)
	}
	fmt.Fprintln(w)

	cats := map[model.Category]struct{}{}
	for _, c := range []backfill.Counts{r.Missing, r.Deferred, r.Completed, r.RowsWritten} {
		for k := range c {
			cats[k] = struct{}{}
		}
	}
	if len(cats) > 0 {
		all := make(backfill.Counts, len(cats))
		for k := range cats {
			all[k] = 0
		}
		t := newTable(w)
		t.Header("CATEGORY", "MISSING", "DEFERRED", "COMPLETED", "ROWS")
		for _, c := range sortedCounts(all) {
			t.Append(c.String(),
				strconv.Itoa(r.Missing[c]),
				strconv.Itoa(r.Deferred[c]),
				strconv.Itoa(r.Completed[c]),
				strconv.Itoa(r.RowsWritten[c]),
			)
		}
		t.Render()
	}

	if len(r.Errors) > 0 {
		cWarn.Fprintf(w, "\n%d item error(s):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s  %-22s %v\n", e.MatchID, e.Category, e.Err)
		}
	}

	switch {
	case !r.OK():
		cError.Fprintf(w, "\nAborted: %s\n", r.Systemic)
	case r.Interrupted:
		cWarn.Fprintln(w, "\nInterrupted. Committed work is kept; run again to resume.")
	case r.DryRun:
		cMuted.Fprintln(w, "\nNothing written.")
	case len(r.Errors) > 0:
		cWarn.Fprintln(w, "\nDone with errors. Failed items are retried on the next run.")
	default:
		cOK.Fprintln(w, "\nDone.")
	}
}

// PrintCompletion prints per-category coverage over all stored matches.
func PrintCompletion(w io.Writer, c *storage.CategoryCompletion) {
	t := newTable(w)
	t.Header("CATEGORY", "COMPLETE", "MISSING", "COVERAGE")
	for _, cat := range model.AllCategories() {
		done := c.Completed[cat]
		pct := 0.0
		if c.Matches > 0 {
			pct = 100 * float64(done) / float64(c.Matches)
		}
		t.Append(cat.String(),
			strconv.Itoa(done),
			strconv.Itoa(c.Matches-done),
			fmt.Sprintf("%.0f%%", pct),
		)
	}
	t.Render()
}

// PrintMatches prints one line per match, newest first as given.
func PrintMatches(w io.Writer, matches []model.Match) {
	t := newTable(w)
	t.Header("MATCH", "START", "MIN", "OUTCOME", "ACC%", "SCORE")
	for _, m := range matches {
		t.Append(
			m.MatchID,
			m.StartTime.Local().Format(timeLayout),
			fmt.Sprintf("%.1f", m.Minutes()),
			string(m.Outcome),
			optFloat(m.Accuracy, "%.1f"),
			optFloat(m.PerformanceScore, "%+.3f"),
		)
	}
	t.Render()
}

// MatchDetail is everything the show command prints for one match.
type MatchDetail struct {
	Match     model.Match
	Completed model.CategorySet
	Session   *model.SessionAssignment
	Roster    []model.Participant
	Stats     []model.ParticipantStats
	Medals    []model.Medal
	Pairs     []model.KillerVictimPair
}

// PrintMatch prints a match header, its roster with stats and the derived
// categories that are available.
func PrintMatch(w io.Writer, d MatchDetail) {
	m := d.Match
	cHeader.Fprintf(w, "\nMatch %s\n", m.MatchID)
	fmt.Fprintf(w, "  Start     : %s (%.1f min)  |  Outcome: %s\n",
		m.StartTime.Local().Format(timeLayout), m.Minutes(), m.Outcome)
	if m.EndTime != nil {
		fmt.Fprintf(w, "  End       : %s\n", m.EndTime.Local().Format(timeLayout))
	}
	if m.ShotsFired != nil && m.ShotsHit != nil {
		fmt.Fprintf(w, "  Shots     : %d/%d  (accuracy %s%%)\n", *m.ShotsHit, *m.ShotsFired, optFloat(m.Accuracy, "%.1f"))
	}
	fmt.Fprintf(w, "  Perf score: %s\n", optFloat(m.PerformanceScore, "%+.4f"))
	if d.Session != nil {
		fmt.Fprintf(w, "  Session   : %s\n", d.Session.Label)
	}
	missing := model.FullCategorySet().Minus(d.Completed)
	if !missing.Empty() {
		cMuted.Fprintf(w, "  Missing   : %s\n", strings.Join(missing.Names(), ", "))
	}
	fmt.Fprintln(w)

	if len(d.Roster) > 0 {
		stats := make(map[string]model.ParticipantStats, len(d.Stats))
		for _, s := range d.Stats {
			stats[s.PlayerID] = s
		}
		t := newTable(w)
		t.Header(" ", "PLAYER", "TEAM", "RANK", "SCORE", "K", "D", "A", "DMG")
		for _, p := range d.Roster {
			marker := " "
			if p.IsSelf {
				marker = ">"
			}
			s, ok := stats[p.PlayerID]
			if !ok {
				t.Append(marker, p.Gamertag, p.Team, "—", "—", "—", "—", "—", "—")
				continue
			}
			t.Append(marker, p.Gamertag, p.Team,
				strconv.Itoa(s.Rank),
				strconv.Itoa(s.PersonalScore),
				strconv.Itoa(s.Kills),
				strconv.Itoa(s.Deaths),
				strconv.Itoa(s.Assists),
				strconv.Itoa(s.DamageDealt),
			)
		}
		t.Render()
	}

	if len(d.Pairs) > 0 {
		fmt.Fprintf(w, "\n--- Killer / Victim ---\n\n")
		PrintPairs(w, d.Pairs, gamertags(d.Roster))
	}

	if len(d.Medals) > 0 {
		fmt.Fprintf(w, "\n--- Medals ---\n\n")
		t := newTable(w)
		t.Header("MEDAL", "COUNT")
		for _, md := range d.Medals {
			t.Append(strconv.FormatInt(md.MedalID, 10), strconv.Itoa(md.Count))
		}
		t.Render()
	}
}

func gamertags(roster []model.Participant) map[string]string {
	out := make(map[string]string, len(roster))
	for _, p := range roster {
		if p.Gamertag != "" {
			out[p.PlayerID] = p.Gamertag
		}
	}
	return out
}

func displayName(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

// PrintPairs prints the killer/victim pairs of one match. names maps player
// ids to gamertags; unknown ids are printed as is.
func PrintPairs(w io.Writer, pairs []model.KillerVictimPair, names map[string]string) {
	t := newTable(w)
	t.Header("KILLER", "VICTIM", "KILLS", "FIRST AT")
	for _, p := range pairs {
		t.Append(
			displayName(names, p.KillerID),
			displayName(names, p.VictimID),
			strconv.Itoa(p.Count),
			(time.Duration(p.RepresentativeMs) * time.Millisecond).String(),
		)
	}
	t.Render()
}

// PrintRivals prints pair totals across all stored matches.
func PrintRivals(w io.Writer, rivals []storage.RivalTotals, ownerID string) {
	t := newTable(w)
	t.Header("DIRECTION", "OPPONENT", "KILLS", "MATCHES")
	for _, r := range rivals {
		dir, opp := "killed", r.VictimID
		if r.VictimID == ownerID {
			dir, opp = "killed by", r.KillerID
		}
		if r.Gamertag != "" {
			opp = r.Gamertag
		}
		t.Append(dir, opp, strconv.Itoa(r.Kills), strconv.Itoa(r.Matches))
	}
	t.Render()
}

// PrintSessions prints sessions oldest first. persisted reports whether the
// assignments came from storage or were computed on the fly.
func PrintSessions(w io.Writer, sessions []session.Session, matches map[string]model.Match, persisted bool) {
	if !persisted {
		cMuted.Fprintln(w, "(computed on the fly; recent matches may still move between sessions)")
	}
	t := newTable(w)
	t.Header("SESSION", "START", "END", "MATCHES", "W-L", "AVG SCORE")
	for _, s := range sessions {
		wins, losses := 0, 0
		var sum float64
		scored := 0
		for _, id := range s.MatchIDs {
			m := matches[id]
			switch m.Outcome {
			case model.OutcomeWin:
				wins++
			case model.OutcomeLoss, model.OutcomeLeft:
				losses++
			}
			if m.PerformanceScore != nil {
				sum += *m.PerformanceScore
				scored++
			}
		}
		avg := "—"
		if scored > 0 {
			avg = fmt.Sprintf("%+.3f", sum/float64(scored))
		}
		t.Append(
			s.Label,
			s.Start.Local().Format(timeLayout),
			s.End.Local().Format("15:04"),
			strconv.Itoa(len(s.MatchIDs)),
			fmt.Sprintf("%d-%d", wins, losses),
			avg,
		)
	}
	t.Render()
}

// PrintQuery prints the result of a raw query.
func PrintQuery(w io.Writer, cols []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}
	t := newTable(w)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.Header(header...)
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		t.Append(cells...)
	}
	t.Render()
	fmt.Fprintf(w, "\n(%d rows)\n", len(rows))
}
