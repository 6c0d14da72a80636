package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/backfill"
	"github.com/pable/go-match-sync/internal/report"
	"github.com/pable/go-match-sync/internal/statsapi"
)

var syncMaxPages int

// syncCmd discovers new matches without materializing any category.
var syncCmd = &cobra.Command{
	Use:   "sync [player-id...]",
	Short: "Discover new matches from the player's history",
	Long: `Pages through each player's match history, newest first, and stores
headers of matches not seen before. Paging stops at the first known match.
No category data is fetched; run 'matchsync backfill' for that.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncMaxPages, "max-pages", 0, "stop after this many history pages (0 = config value)")
}

type syncResult struct {
	PlayerID string `json:"player_id"`
	Added    int    `json:"added"`
	Error    string `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	ids, err := players(args)
	if err != nil {
		return err
	}
	api, closer, err := newAPI()
	if err != nil {
		return err
	}
	defer closer.Close()

	results, err := syncPlayers(cmd, api, ids)
	if jsonOutput {
		if jerr := report.WriteJSON(os.Stdout, results); jerr != nil {
			return jerr
		}
		return err
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(os.Stdout, "%-24s  error: %s\n", r.PlayerID, r.Error)
			continue
		}
		fmt.Fprintf(os.Stdout, "%-24s  %d new match(es)\n", r.PlayerID, r.Added)
	}
	return err
}

// syncPlayers runs history discovery for each player in turn. A failing
// player does not stop the others.
func syncPlayers(cmd *cobra.Command, lister statsapi.HistoryLister, ids []string) ([]syncResult, error) {
	opts := backfill.SyncOptions{PageSize: cfg.API.History.PageSize, MaxPages: cfg.API.History.MaxPages}
	if syncMaxPages > 0 {
		opts.MaxPages = syncMaxPages
	}
	var failed int
	results := make([]syncResult, 0, len(ids))
	for _, id := range ids {
		res := syncResult{PlayerID: id}
		db, err := openStore(id)
		if err == nil {
			res.Added, err = backfill.SyncHistory(cmd.Context(), db, lister, id, opts, time.Now())
			db.Close()
		}
		if err != nil {
			failed++
			res.Error = err.Error()
			logger.Error("sync failed", "player", id, "error", err)
		} else {
			logger.Info("sync finished", "player", id, "added", res.Added)
		}
		results = append(results, res)
	}
	if failed > 0 {
		return results, fmt.Errorf("sync failed for %d of %d player(s)", failed, len(ids))
	}
	return results, nil
}
