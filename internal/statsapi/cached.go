package statsapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/cache"
	"github.com/pable/go-match-sync/internal/logging"
	"github.com/pable/go-match-sync/internal/model"
)

// Cached serves payload sections from a cache and fetches only the sections
// it does not hold. Cache failures degrade to a plain fetch.
type Cached struct {
	next  Fetcher
	store cache.Store
	ttl   time.Duration
	log   *logging.Logger
}

func NewCached(next Fetcher, store cache.Store, ttl time.Duration, log *logging.Logger) *Cached {
	if log == nil {
		log = logging.Nop()
	}
	return &Cached{next: next, store: store, ttl: ttl, log: log}
}

var allSections = []model.Section{model.SectionStats, model.SectionSkill, model.SectionEvents}

func sectionKey(playerID, matchID string, s model.Section) string {
	return fmt.Sprintf("payload:%s:%s:%s", playerID, matchID, s)
}

func (c *Cached) Fetch(ctx context.Context, playerID, matchID string, sections model.Section) (*model.RawPayload, error) {
	p := &model.RawPayload{MatchID: matchID}
	var missing model.Section

	for _, s := range allSections {
		if !sections.Has(s) {
			continue
		}
		hit, err := c.load(ctx, playerID, matchID, s, p)
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			c.log.Warn("payload cache read failed", "match_id", matchID, "section", s.String(), "error", err)
		}
		if !hit {
			missing |= s
		}
	}
	if missing == 0 {
		return p, nil
	}

	fresh, err := c.next.Fetch(ctx, playerID, matchID, missing)
	if err != nil {
		return nil, err
	}
	if fresh.Stats != nil {
		p.Stats = fresh.Stats
		c.save(ctx, sectionKey(playerID, matchID, model.SectionStats), fresh.Stats)
	}
	if fresh.Skill != nil {
		p.Skill = fresh.Skill
		c.save(ctx, sectionKey(playerID, matchID, model.SectionSkill), fresh.Skill)
	}
	if fresh.Events != nil {
		p.Events = fresh.Events
		c.save(ctx, sectionKey(playerID, matchID, model.SectionEvents), fresh.Events)
	}
	return p, nil
}

func (c *Cached) load(ctx context.Context, playerID, matchID string, s model.Section, p *model.RawPayload) (bool, error) {
	key := sectionKey(playerID, matchID, s)
	switch s {
	case model.SectionStats:
		var v model.RawStats
		if err := cache.GetJSON(ctx, c.store, key, &v); err != nil {
			return false, err
		}
		p.Stats = &v
	case model.SectionSkill:
		var v model.RawSkill
		if err := cache.GetJSON(ctx, c.store, key, &v); err != nil {
			return false, err
		}
		p.Skill = &v
	case model.SectionEvents:
		var v model.RawEventStream
		if err := cache.GetJSON(ctx, c.store, key, &v); err != nil {
			return false, err
		}
		p.Events = &v
	}
	return true, nil
}

func (c *Cached) save(ctx context.Context, key string, v any) {
	if err := cache.PutJSON(ctx, c.store, key, v, c.ttl); err != nil {
		c.log.Warn("payload cache write failed", "key", key, "error", err)
	}
}
