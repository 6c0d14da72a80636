package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/backfill"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/report"
	"github.com/pable/go-match-sync/internal/statsapi"
)

// backfill command flags.
var (
	bfCategories    string
	bfMaxMatches    int
	bfMatchIDs      []string
	bfDryRun        bool
	bfForceSessions bool
	bfSync          bool
	bfWorkers       int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill [player-id...]",
	Short: "Materialize missing categories for stored matches",
	Long: `Finds stored matches that lack any of the requested categories (plus
their prerequisites) and materializes exactly the missing ones, fetching each
match at most once per run. Work is committed in batches; an interrupted run
resumes where it stopped.

Categories: ` + strings.Join(model.FullCategorySet().Names(), ", ") + `

Examples:
  # Everything, for the configured players
  matchsync backfill

  # Only sessions and performance scores, preview first
  matchsync backfill me --categories session-assignment,performance-score --dry-run

  # Recompute persisted sessions after changing the gap threshold
  matchsync backfill me --categories session-assignment --force-sessions`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVarP(&bfCategories, "categories", "c", "all", "comma-separated categories, or 'all'")
	backfillCmd.Flags().IntVar(&bfMaxMatches, "max", 0, "visit at most this many matches (0 = no cap)")
	backfillCmd.Flags().StringSliceVar(&bfMatchIDs, "match", nil, "restrict to these match ids")
	backfillCmd.Flags().BoolVar(&bfDryRun, "dry-run", false, "report what is missing without fetching or writing")
	backfillCmd.Flags().BoolVar(&bfForceSessions, "force-sessions", false, "drop persisted session assignments and compute them again")
	backfillCmd.Flags().BoolVar(&bfSync, "sync", false, "discover new matches before backfilling")
	backfillCmd.Flags().IntVarP(&bfWorkers, "workers", "w", 0, "players processed in parallel (0 = config value)")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ids, err := players(args)
	if err != nil {
		return err
	}
	cats, err := model.ParseCategorySet(bfCategories)
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	// A dry run needs no API.
	var api statsapi.Fetcher = offlineAPI{}
	if !bfDryRun {
		live, closer, err := newAPI()
		if err != nil {
			return err
		}
		defer closer.Close()
		api = live
		if bfSync {
			if _, err := syncPlayers(cmd, live, ids); err != nil {
				logger.Warn("history sync incomplete", "error", err)
			}
		}
	}

	reqs := make([]backfill.Request, len(ids))
	for i, id := range ids {
		reqs[i] = backfill.Request{
			PlayerID:      id,
			Categories:    cats,
			MaxMatches:    bfMaxMatches,
			MatchIDs:      bfMatchIDs,
			DryRun:        bfDryRun,
			ForceSessions: bfForceSessions,
			Now:           time.Now(),
		}
	}
	workers := cfg.Backfill.Workers
	if bfWorkers > 0 {
		workers = bfWorkers
	}

	reports, runErr := backfill.RunPlayers(cmd.Context(), reqs, workers, engineOpener(api, reg))
	if err := printReports(reports); err != nil {
		return err
	}
	return runErr
}

func printReports(reports []*backfill.Report) error {
	if jsonOutput {
		return report.WriteJSON(os.Stdout, reports)
	}
	for _, r := range reports {
		if r != nil {
			report.PrintBackfill(os.Stdout, r)
		}
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

// offlineAPI stands in for the stats service on dry runs, which never fetch.
type offlineAPI struct{}

func (offlineAPI) Fetch(context.Context, string, string, model.Section) (*model.RawPayload, error) {
	return nil, errors.New("fetch attempted without an API")
}
