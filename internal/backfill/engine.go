// Package backfill drives detection and materialization for one player's
// store, committing work in fixed-size batches.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pable/go-match-sync/internal/detect"
	"github.com/pable/go-match-sync/internal/logging"
	"github.com/pable/go-match-sync/internal/materialize"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/statsapi"
	"github.com/pable/go-match-sync/internal/storage"
)

// DefaultBatchSize is the number of matches committed together.
const DefaultBatchSize = 25

// Request is one backfill run for one player.
type Request struct {
	PlayerID   string
	Categories model.CategorySet
	// MaxMatches caps how many matches are visited. Zero means no cap.
	MaxMatches int
	// MatchIDs restricts the run to these matches when non-empty.
	MatchIDs []string
	// DryRun stops after detection.
	DryRun bool
	// ForceSessions drops persisted session assignments (of MatchIDs, or of
	// every match) so they are computed again.
	ForceSessions bool
	// Now is the reference time for eligibility. Zero means the engine clock.
	Now time.Time
}

type Options struct {
	BatchSize int
	Logger    *logging.Logger
	Clock     func() time.Time
}

// Engine runs backfills against one player's store.
type Engine struct {
	db        *storage.DB
	fetcher   statsapi.Fetcher
	registry  *materialize.Registry
	batchSize int
	log       *logging.Logger
	clock     func() time.Time
}

func New(db *storage.DB, fetcher statsapi.Fetcher, registry *materialize.Registry, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		db:        db,
		fetcher:   fetcher,
		registry:  registry,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
		clock:     opts.Clock,
	}
}

// Run executes req. Per-match failures are collected in the report. A
// detection or storage failure stops the run: the current batch is rolled
// back and the error is returned together with the report of what was
// committed before. Cancelling ctx stops the run at the next batch boundary.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	now := req.Now
	if now.IsZero() {
		now = e.clock()
	}
	rep := newReport(uuid.NewString(), req.PlayerID, req.DryRun, e.clock())
	log := e.log.With("run_id", rep.RunID, "player", req.PlayerID)
	defer func() { rep.FinishedAt = e.clock() }()

	plan, err := e.registry.Resolve(req.Categories)
	if err != nil {
		return rep, fmt.Errorf("resolve categories: %w", err)
	}
	rep.Requested = req.Categories.Names()
	rep.Resolved = plan.Set.Names()

	if req.ForceSessions && plan.Set.Has(model.CategorySessionAssignment) && !req.DryRun {
		n, err := e.clearSessions(ctx, req.MatchIDs)
		if err != nil {
			return rep, e.systemic(rep, log, err)
		}
		rep.SessionsCleared = n
		log.Info("cleared persisted sessions", "count", n)
	}

	work, err := detect.New(e.db, e.registry).Plan(ctx, detect.Request{
		Categories: plan.Set,
		MaxMatches: req.MaxMatches,
		MatchIDs:   req.MatchIDs,
		Now:        now,
	})
	if err != nil {
		return rep, e.systemic(rep, log, err)
	}
	rep.Candidates = work.Candidates
	rep.Planned = len(work.Items)
	rep.Capped = work.Capped
	rep.Missing.add(work.Missing)
	rep.Deferred.add(work.Deferred)
	log.Info("detection finished",
		"candidates", work.Candidates, "matches", len(work.Items), "work_items", work.WorkItems())

	if req.DryRun {
		return rep, nil
	}

	for start := 0; start < len(work.Items); start += e.batchSize {
		if ctx.Err() != nil {
			rep.Interrupted = true
			log.Warn("run interrupted", "batches_committed", rep.BatchesCommitted,
				"matches_left", len(work.Items)-start)
			break
		}
		end := min(start+e.batchSize, len(work.Items))

		// A started batch always runs to commit or rollback.
		res, err := e.runBatch(context.WithoutCancel(ctx), log, req.PlayerID, now, plan, work.Items[start:end])
		rep.merge(res, err == nil)
		if err != nil {
			return rep, e.systemic(rep, log, err)
		}
		log.Debug("batch committed", "batch", rep.BatchesCommitted, "matches", end-start)
	}

	log.Info("backfill finished",
		"visited", rep.MatchesVisited, "full", rep.FullyProcessed,
		"partial", rep.PartiallyProcessed, "errors", len(rep.Errors))
	return rep, nil
}

func (e *Engine) systemic(rep *Report, log *logging.Logger, err error) error {
	rep.Systemic = err.Error()
	log.Error("backfill aborted", "error", err)
	return err
}

func (e *Engine) clearSessions(ctx context.Context, matchIDs []string) (int, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := tx.DeleteSessionAssignments(ctx, matchIDs)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (e *Engine) runBatch(ctx context.Context, log *logging.Logger, playerID string, now time.Time, plan *materialize.Plan, items []detect.Item) (*batchResult, error) {
	res := newBatchResult()
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for i := range items {
		if err := e.visit(ctx, tx, log, playerID, now, plan, &items[i], res); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// visit materializes the missing categories of one match in dependency
// order. Only storage failures are returned; everything else is recorded in
// res and leaves the category without a marker.
func (e *Engine) visit(ctx context.Context, tx *storage.Tx, log *logging.Logger, playerID string, now time.Time, plan *materialize.Plan, it *detect.Item, res *batchResult) error {
	m := &it.Match
	have := it.Completed
	fail := func(c model.Category, err error) {
		log.Warn("materialize failed", "match_id", m.MatchID, "category", c.String(), "error", err)
		res.errs = append(res.errs, ItemError{MatchID: m.MatchID, Category: c, Err: err})
	}

	var payload *model.RawPayload
	var fetchErr error
	if sections := plan.Sections(it.Missing); sections != 0 {
		payload, fetchErr = e.fetcher.Fetch(ctx, playerID, m.MatchID, sections)
		if fetchErr == nil && payload == nil {
			fetchErr = fmt.Errorf("%w: empty response", materialize.ErrMalformedPayload)
		}
	}

	done := 0
	for _, mat := range plan.Order {
		c := mat.Category()
		if !it.Missing.Has(c) {
			continue
		}
		if lacking := mat.Requires().Minus(have); !lacking.Empty() {
			fail(c, fmt.Errorf("%w: requires %s", materialize.ErrDependency, lacking))
			continue
		}
		if mat.Strategy() == materialize.StrategyFetch && fetchErr != nil {
			fail(c, fetchErr)
			continue
		}

		rows, err := mat.Materialize(ctx, materialize.Input{
			PlayerID: playerID,
			Match:    m,
			Payload:  payload,
			Store:    tx,
			Now:      now,
		})
		if err != nil {
			if errors.Is(err, storage.ErrStore) {
				return err
			}
			fail(c, err)
			continue
		}
		n, err := rows.Write(ctx, tx)
		if err != nil {
			if errors.Is(err, storage.ErrStore) {
				return err
			}
			fail(c, err)
			continue
		}
		if err := tx.MarkComplete(ctx, m.MatchID, c, now); err != nil {
			return err
		}
		have = have.Add(c)
		res.rows[c] += n
		res.completed[c]++
		done++
	}

	res.visited++
	if done == it.Missing.Len() {
		res.full++
	} else {
		res.partial++
	}
	return nil
}
