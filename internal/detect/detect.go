// Package detect works out which (match, category) pairs still need work.
//
// Detection is two-level. A coarse query picks the matches lacking a
// completion marker for at least one requested category; those are the only
// matches worth visiting. A fine query then reads the exact completed set of
// each candidate, so a visit only ever works on the categories that are
// actually missing for that match.
package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// ErrDetection marks a failure to read completion state. Callers must abort
// rather than assume anything is missing.
var ErrDetection = errors.New("completeness detection failed")

// Ledger is the completion state the detector reads.
type Ledger interface {
	CandidateMatches(ctx context.Context, cats []model.Category, matchIDs []string) ([]model.Match, error)
	CompletedCategories(ctx context.Context, matchIDs []string) (map[string]model.CategorySet, error)
}

// Eligibility decides whether a missing category may be worked on now.
type Eligibility interface {
	Eligible(c model.Category, m *model.Match, now time.Time) bool
}

// Request describes one detection pass.
type Request struct {
	// Categories is the requested set, already closed over prerequisites.
	Categories model.CategorySet
	// MaxMatches caps the number of matches to visit. Zero means no cap.
	MaxMatches int
	// MatchIDs restricts detection to the given matches when non-empty.
	MatchIDs []string
	Now      time.Time
}

// Item is one match to visit.
type Item struct {
	Match model.Match
	// Completed is the subset of the requested categories already done.
	Completed model.CategorySet
	// Missing is what the visit must materialize.
	Missing model.CategorySet
	// Deferred holds missing categories that are not eligible yet.
	Deferred model.CategorySet
}

// Plan is the outcome of detection.
type Plan struct {
	Items []Item
	// Missing counts, per category, the visits that will work on it.
	Missing map[model.Category]int
	// Deferred counts missing but not yet eligible (match, category) pairs.
	Deferred map[model.Category]int
	// Candidates is the number of matches the coarse filter returned.
	Candidates int
	// Capped is the number of matches left out by MaxMatches.
	Capped int
}

// WorkItems returns the number of (match, category) pairs in the plan.
func (p *Plan) WorkItems() int {
	n := 0
	for _, it := range p.Items {
		n += it.Missing.Len()
	}
	return n
}

type Detector struct {
	ledger   Ledger
	eligible Eligibility
	chunk    int
}

// New returns a detector over ledger. eligible may be nil, in which case
// every missing category is eligible.
func New(ledger Ledger, eligible Eligibility) *Detector {
	return &Detector{ledger: ledger, eligible: eligible, chunk: 200}
}

// Plan runs detection. Matches are returned in chronological order.
func (d *Detector) Plan(ctx context.Context, req Request) (*Plan, error) {
	plan := &Plan{
		Missing:  make(map[model.Category]int),
		Deferred: make(map[model.Category]int),
	}
	if req.Categories.Empty() {
		return plan, nil
	}
	requested := req.Categories.Slice()

	candidates, err := d.ledger.CandidateMatches(ctx, requested, req.MatchIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate scan: %w", ErrDetection, err)
	}
	plan.Candidates = len(candidates)

	for start := 0; start < len(candidates); start += d.chunk {
		end := min(start+d.chunk, len(candidates))
		batch := candidates[start:end]

		ids := make([]string, len(batch))
		for i, m := range batch {
			ids[i] = m.MatchID
		}
		done, err := d.ledger.CompletedCategories(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: completion ledger: %w", ErrDetection, err)
		}

		for i := range batch {
			m := batch[i]
			completed := done[m.MatchID] & req.Categories
			missing := req.Categories.Minus(completed)

			var deferred model.CategorySet
			if d.eligible != nil {
				for _, c := range missing.Slice() {
					if !d.eligible.Eligible(c, &m, req.Now) {
						deferred = deferred.Add(c)
					}
				}
			}
			missing = missing.Minus(deferred)
			for _, c := range deferred.Slice() {
				plan.Deferred[c]++
			}
			if missing.Empty() {
				continue
			}
			if req.MaxMatches > 0 && len(plan.Items) >= req.MaxMatches {
				plan.Capped++
				continue
			}
			for _, c := range missing.Slice() {
				plan.Missing[c]++
			}
			plan.Items = append(plan.Items, Item{
				Match:     m,
				Completed: completed,
				Missing:   missing,
				Deferred:  deferred,
			})
		}
	}
	return plan, nil
}
