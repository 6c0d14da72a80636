package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// Opener builds an engine bound to one player's store. The returned closer
// releases the store.
type Opener func(playerID string) (*Engine, io.Closer, error)

// RunPlayers runs independent player backfills with at most workers running
// at once. Each player gets its own engine and store connection. A failure
// for one player does not stop the others; reports line up with reqs and the
// returned error joins every player's failure.
func RunPlayers(ctx context.Context, reqs []Request, workers int, open Opener) ([]*Report, error) {
	if workers <= 0 {
		workers = 1
	}
	reports := make([]*Report, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			eng, closer, err := open(req.PlayerID)
			if err != nil {
				errs[i] = fmt.Errorf("player %s: %w", req.PlayerID, err)
				return nil
			}
			defer closer.Close()

			rep, err := eng.Run(ctx, req)
			reports[i] = rep
			if err != nil {
				errs[i] = fmt.Errorf("player %s: %w", req.PlayerID, err)
			}
			return nil
		})
	}
	g.Wait()
	return reports, errors.Join(errs...)
}
