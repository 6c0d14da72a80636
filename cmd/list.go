package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/report"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list <player-id>",
	Short: "List stored matches, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 25, "number of matches to show (0 = all)")
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	matches, err := db.ListMatches(cmd.Context(), listLimit)
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}
	if jsonOutput {
		return report.WriteJSON(os.Stdout, matches)
	}
	if len(matches) == 0 {
		fmt.Fprintf(os.Stdout, "No matches stored yet. Run 'matchsync sync %s' to add some.\n", args[0])
		return nil
	}
	report.PrintMatches(os.Stdout, matches)
	return nil
}
