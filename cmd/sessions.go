package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/report"
	"github.com/pable/go-match-sync/internal/session"
)

var sessionsDays int

var sessionsCmd = &cobra.Command{
	Use:   "sessions <player-id>",
	Short: "Group recent matches into play sessions",
	Long: `Show play sessions of the last N days. Persisted session assignments
are used when every match in range has one; otherwise sessions are computed
on the fly, which also covers matches still inside the stability horizon.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsDays, "days", "d", 7, "how many days back to look")
}

type sessionOutput struct {
	ID       int       `json:"id"`
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	MatchIDs []string  `json:"match_ids"`
}

func runSessions(cmd *cobra.Command, args []string) error {
	db, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	now := time.Now()
	view, err := session.Sessions(cmd.Context(), db, now.AddDate(0, 0, -sessionsDays), now, now, sc)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	sessions := session.Group(view.Assignments, view.Matches)

	if jsonOutput {
		out := make([]sessionOutput, len(sessions))
		for i, s := range sessions {
			out[i] = sessionOutput{ID: s.ID, Label: s.Label, Start: s.Start, End: s.End, MatchIDs: s.MatchIDs}
		}
		return report.WriteJSON(os.Stdout, out)
	}
	if len(sessions) == 0 {
		fmt.Fprintf(os.Stdout, "No matches in the last %d day(s).\n", sessionsDays)
		return nil
	}
	report.PrintSessions(os.Stdout, sessions, view.Matches, view.Persisted)
	return nil
}
