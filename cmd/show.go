package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/report"
)

var showCmd = &cobra.Command{
	Use:   "show <player-id> <match-id-prefix>",
	Short: "Show everything stored for one match",
	Args:  cobra.ExactArgs(2),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	playerID, prefix := args[0], args[1]
	ctx := cmd.Context()

	db, err := openStore(playerID)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := db.MatchByPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("query match: %w", err)
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "No match found with id prefix %q\n", prefix)
		return nil
	}

	d := report.MatchDetail{Match: *m}
	if d.Completed, err = db.CompletedFor(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get completion: %w", err)
	}
	if d.Session, err = db.SessionAssignment(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if d.Roster, err = db.Participants(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get participants: %w", err)
	}
	if d.Stats, err = db.ParticipantStats(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get participant stats: %w", err)
	}
	if d.Medals, err = db.Medals(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get medals: %w", err)
	}
	if d.Pairs, err = db.KillerVictimPairs(ctx, m.MatchID); err != nil {
		return fmt.Errorf("get killer/victim pairs: %w", err)
	}

	if jsonOutput {
		return report.WriteJSON(os.Stdout, d)
	}
	report.PrintMatch(os.Stdout, d)
	return nil
}
