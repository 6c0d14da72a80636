package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/backfill"
	"github.com/pable/go-match-sync/internal/model"
)

var (
	watchInterval   time.Duration
	watchCategories string
)

// watchCmd keeps the stores current: sync, backfill, sleep, repeat.
var watchCmd = &cobra.Command{
	Use:   "watch [player-id...]",
	Short: "Periodically sync new matches and backfill them",
	Long: `Runs 'sync' followed by 'backfill' for every player on a fixed
interval until interrupted. The first interrupt lets the current batch commit;
a second one exits immediately. Matches still inside the session stability
horizon are picked up by a later cycle.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between cycles (0 = config value)")
	watchCmd.Flags().StringVarP(&watchCategories, "categories", "c", "all", "comma-separated categories, or 'all'")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ids, err := players(args)
	if err != nil {
		return err
	}
	cats, err := model.ParseCategorySet(watchCategories)
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	api, closer, err := newAPI()
	if err != nil {
		return err
	}
	defer closer.Close()

	interval := cfg.Backfill.WatchInterval
	if watchInterval > 0 {
		interval = watchInterval
	}
	ctx := cmd.Context()
	open := engineOpener(api, reg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for cycle := 1; ; cycle++ {
		if _, err := syncPlayers(cmd, api, ids); err != nil {
			logger.Warn("history sync incomplete", "cycle", cycle, "error", err)
		}
		reqs := make([]backfill.Request, len(ids))
		for i, id := range ids {
			reqs[i] = backfill.Request{PlayerID: id, Categories: cats, Now: time.Now()}
		}
		reports, err := backfill.RunPlayers(ctx, reqs, cfg.Backfill.Workers, open)
		if err != nil {
			logger.Error("backfill cycle failed", "cycle", cycle, "error", err)
		}
		for _, r := range reports {
			if r != nil {
				logger.Info("backfill cycle",
					"cycle", cycle, "player", r.PlayerID, "visited", r.MatchesVisited,
					"completed", r.Completed.Total(), "errors", len(r.Errors))
			}
		}
		if jsonOutput {
			if err := printReports(reports); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("watch stopped", "cycles", cycle)
			return nil
		case <-ticker.C:
		}
	}
}
