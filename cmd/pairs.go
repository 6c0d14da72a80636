package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/report"
)

var pairsLimit int

var pairsCmd = &cobra.Command{
	Use:   "pairs <player-id> [match-id-prefix]",
	Short: "Killer/victim pairs of one match, or the player's top rivals",
	Long: `With a match id prefix, print that match's killer/victim pairs. Without
one, print the opponents the player killed most and was killed by most across
every stored match.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPairs,
}

func init() {
	pairsCmd.Flags().IntVarP(&pairsLimit, "limit", "n", 10, "number of rivals to show")
}

func runPairs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		owner, err := db.OwnerID(ctx)
		if err != nil {
			return err
		}
		if owner == "" {
			owner = args[0]
		}
		rivals, err := db.RivalTotals(ctx, owner, pairsLimit)
		if err != nil {
			return fmt.Errorf("rival totals: %w", err)
		}
		if jsonOutput {
			return report.WriteJSON(os.Stdout, rivals)
		}
		if len(rivals) == 0 {
			fmt.Fprintln(os.Stdout, "No killer/victim pairs yet. Run 'matchsync backfill -c killer-victim-pairs'.")
			return nil
		}
		report.PrintRivals(os.Stdout, rivals, owner)
		return nil
	}

	m, err := db.MatchByPrefix(ctx, args[1])
	if err != nil {
		return fmt.Errorf("query match: %w", err)
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "No match found with id prefix %q\n", args[1])
		return nil
	}
	pairs, err := db.KillerVictimPairs(ctx, m.MatchID)
	if err != nil {
		return fmt.Errorf("killer/victim pairs: %w", err)
	}
	if jsonOutput {
		return report.WriteJSON(os.Stdout, pairs)
	}
	roster, err := db.Participants(ctx, m.MatchID)
	if err != nil {
		return fmt.Errorf("participants: %w", err)
	}
	names := make(map[string]string, len(roster))
	for _, p := range roster {
		names[p.PlayerID] = p.Gamertag
	}
	report.PrintPairs(os.Stdout, pairs, names)
	return nil
}
