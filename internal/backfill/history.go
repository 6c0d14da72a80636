package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/statsapi"
	"github.com/pable/go-match-sync/internal/storage"
)

// SyncOptions bounds history discovery.
type SyncOptions struct {
	PageSize int
	// MaxPages stops paging after this many pages. Zero means no limit.
	MaxPages int
}

// SyncHistory pages through the player's history, newest first, and stores
// matches not seen before.
//
// Paging from the top stops at the first already stored match. If an earlier
// sync never reached the end of the history (it was capped by MaxPages or
// failed), paging then resumes below the part that sync walked, skipping
// stored matches, until a short page. Progress is saved with every page, so
// a capped or interrupted run is picked up by the next one.
func SyncHistory(ctx context.Context, db *storage.DB, lister statsapi.HistoryLister, playerID string, opts SyncOptions, now time.Time) (int, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	prev, err := db.HistoryState(ctx)
	if err != nil {
		return 0, err
	}
	s := &historySync{db: db, lister: lister, playerID: playerID, opts: opts, now: now}

	// New matches on top of the newest stored one.
	offset, known := 0, -1
	for known < 0 && s.more() {
		headers, err := s.page(ctx, offset)
		if err != nil {
			return s.added, err
		}
		var fresh []model.MatchHeader
		for i, h := range headers {
			stored, err := s.stored(ctx, h.MatchID)
			if err != nil {
				return s.added, err
			}
			if stored {
				known = offset + i
				break
			}
			fresh = append(fresh, h)
		}
		short := len(headers) < opts.PageSize

		st := storage.HistoryState{Walked: offset + len(fresh)}
		switch {
		case known >= 0 && prev.Complete, known < 0 && short:
			st = storage.HistoryState{Complete: true}
		case known >= 0:
			st.Walked = known + prev.Walked
		}
		if err := s.store(ctx, fresh, st); err != nil {
			return s.added, err
		}
		if known < 0 && short {
			return s.added, nil
		}
		offset += len(headers)
	}
	if known < 0 || prev.Complete {
		return s.added, nil
	}

	// Older matches an earlier capped or failed sync never got to.
	offset = known + prev.Walked
	for s.more() {
		headers, err := s.page(ctx, offset)
		if err != nil {
			return s.added, err
		}
		var fresh []model.MatchHeader
		for _, h := range headers {
			stored, err := s.stored(ctx, h.MatchID)
			if err != nil {
				return s.added, err
			}
			if !stored {
				fresh = append(fresh, h)
			}
		}
		offset += len(headers)
		short := len(headers) < opts.PageSize

		st := storage.HistoryState{Complete: short}
		if !short {
			st.Walked = offset
		}
		if err := s.store(ctx, fresh, st); err != nil {
			return s.added, err
		}
		if short {
			break
		}
	}
	return s.added, nil
}

type historySync struct {
	db       *storage.DB
	lister   statsapi.HistoryLister
	playerID string
	opts     SyncOptions
	now      time.Time

	pages int
	added int
}

func (s *historySync) more() bool {
	return s.opts.MaxPages == 0 || s.pages < s.opts.MaxPages
}

func (s *historySync) page(ctx context.Context, offset int) ([]model.MatchHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.pages
	s.pages++
	headers, err := s.lister.MatchHistory(ctx, s.playerID, offset, s.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("history page %d: %w", n, err)
	}
	return headers, nil
}

func (s *historySync) stored(ctx context.Context, matchID string) (bool, error) {
	m, err := s.db.Match(ctx, matchID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (s *historySync) store(ctx context.Context, fresh []model.MatchHeader, st storage.HistoryState) error {
	n, err := s.db.StoreHistoryPage(ctx, fresh, st, s.now)
	if err != nil {
		return err
	}
	s.added += n
	return nil
}
