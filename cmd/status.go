package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/detect"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/report"
	"github.com/pable/go-match-sync/internal/storage"
)

// statusCmd shows how far each category has been backfilled.
var statusCmd = &cobra.Command{
	Use:   "status <player-id>",
	Short: "Show category coverage of a player's store",
	Long: `Display how many stored matches carry each category, and how many
matches a full backfill would visit right now.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

type statusOutput struct {
	PlayerID  string         `json:"player_id"`
	Matches   int            `json:"matches"`
	Completed map[string]int `json:"completed"`
	Pending   int            `json:"pending_matches"`
	Deferred  map[string]int `json:"deferred"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	comp, err := db.Completion(ctx)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	plan, err := detect.New(db, reg).Plan(ctx, detect.Request{
		Categories: model.FullCategorySet(),
		Now:        time.Now(),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		out := statusOutput{
			PlayerID:  args[0],
			Matches:   comp.Matches,
			Completed: namedCounts(comp.Completed),
			Pending:   len(plan.Items),
			Deferred:  namedCounts(plan.Deferred),
		}
		return report.WriteJSON(os.Stdout, out)
	}

	if comp.Matches == 0 {
		fmt.Fprintf(os.Stdout, "No matches stored yet. Run 'matchsync sync %s' to add some.\n", args[0])
		return nil
	}
	printStatusHeader(ctx, db, args[0], comp)
	report.PrintCompletion(os.Stdout, comp)
	fmt.Fprintf(os.Stdout, "\n  Pending matches: %d", len(plan.Items))
	if n := plan.Deferred[model.CategorySessionAssignment]; n > 0 {
		fmt.Fprintf(os.Stdout, "  (%d session assignment(s) waiting for the stability horizon)", n)
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func printStatusHeader(ctx context.Context, db *storage.DB, playerID string, comp *storage.CategoryCompletion) {
	fmt.Fprintf(os.Stdout, "\n=== Store %s ===\n\n", playerID)
	fmt.Fprintf(os.Stdout, "  Path    : %s\n", storage.PlayerPath(cfg.DataDir, playerID))
	fmt.Fprintf(os.Stdout, "  Matches : %d\n", comp.Matches)
	if latest, err := db.ListMatches(ctx, 1); err == nil && len(latest) == 1 {
		fmt.Fprintf(os.Stdout, "  Latest  : %s (%s)\n", latest[0].MatchID, latest[0].StartTime.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(os.Stdout)
}

func namedCounts(c map[model.Category]int) map[string]int {
	out := make(map[string]int, len(c))
	for k, v := range c {
		out[k.String()] = v
	}
	return out
}
