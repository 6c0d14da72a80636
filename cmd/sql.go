package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/report"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <player-id> <query>",
	Short: "Run a raw SQL query against a player's store",
	Long: `Run an arbitrary SQL query against a player's store and print results as a table.

Schema overview (times are unix milliseconds):
  matches(match_id, start_time, duration_seconds, outcome, end_time,
    shots_fired, shots_hit, accuracy, performance_score)
  completion_markers(match_id, category, completed_at)
  participants(match_id, player_id, gamertag, team, is_self)
  participant_stats(match_id, player_id, personal_score, rank, kills, deaths,
    assists, shots_fired, shots_hit, damage_dealt, damage_taken)
  medals(match_id, medal_id, count)
  score_awards(match_id, award_id, count, total_score)
  asset_refs(match_id, kind, asset_id, version_id)
  skill_snapshots(match_id, pre_csr, post_csr, expected_kills, expected_deaths)
  opposing_skill(match_id, team, avg_csr, players)
  match_events(match_id, seq, kind, timestamp_ms, player_id)
  killer_victim_pairs(match_id, killer_id, victim_id, count, representative_ms)
  session_assignments(match_id, session_id, session_label, anchor_date, day_ordinal, computed_at)`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args[1:], " ")
	db, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(cmd.Context(), query)
	if err != nil {
		return err
	}
	if jsonOutput {
		out := make([]map[string]string, len(rows))
		for i, row := range rows {
			out[i] = make(map[string]string, len(cols))
			for j, c := range cols {
				out[i][c] = row[j]
			}
		}
		return report.WriteJSON(os.Stdout, out)
	}
	report.PrintQuery(os.Stdout, cols, rows)
	return nil
}
