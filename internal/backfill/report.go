package backfill

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// ItemError is a per-match, per-category failure. The pair keeps no
// completion marker and is retried on the next run.
type ItemError struct {
	MatchID  string
	Category model.Category
	Err      error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.MatchID, e.Category, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

func (e ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MatchID  string `json:"match_id"`
		Category string `json:"category"`
		Error    string `json:"error"`
	}{e.MatchID, e.Category.String(), e.Err.Error()})
}

// Counts maps a category to a number.
type Counts map[model.Category]int

func (c Counts) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(c))
	for k, v := range c {
		out[k.String()] = v
	}
	return json.Marshal(out)
}

// Total sums every category.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c Counts) add(o Counts) {
	for k, v := range o {
		c[k] += v
	}
}

// Report summarizes one backfill run. Counters only include committed batches.
type Report struct {
	RunID      string    `json:"run_id"`
	PlayerID   string    `json:"player_id"`
	Requested  []string  `json:"requested"`
	Resolved   []string  `json:"resolved"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Detection.
	Candidates int    `json:"candidates"`
	Planned    int    `json:"planned_matches"`
	Capped     int    `json:"capped_matches"`
	Missing    Counts `json:"missing"`
	Deferred   Counts `json:"deferred"`

	// Execution.
	SessionsCleared    int         `json:"sessions_cleared,omitempty"`
	MatchesVisited     int         `json:"matches_visited"`
	FullyProcessed     int         `json:"fully_processed"`
	PartiallyProcessed int         `json:"partially_processed"`
	RowsWritten        Counts      `json:"rows_written"`
	Completed          Counts      `json:"completed"`
	BatchesCommitted   int         `json:"batches_committed"`
	Errors             []ItemError `json:"errors"`
	Interrupted        bool        `json:"interrupted"`
	Systemic           string      `json:"systemic_error,omitempty"`
}

func newReport(runID, playerID string, dryRun bool, started time.Time) *Report {
	return &Report{
		RunID:       runID,
		PlayerID:    playerID,
		DryRun:      dryRun,
		StartedAt:   started,
		Missing:     Counts{},
		Deferred:    Counts{},
		RowsWritten: Counts{},
		Completed:   Counts{},
	}
}

// OK reports whether the run finished without a systemic failure.
func (r *Report) OK() bool { return r.Systemic == "" }

// batchResult accumulates one batch. It is merged into the report only after
// the batch commits, except for errors, which are always kept.
type batchResult struct {
	visited, full, partial int
	rows, completed        Counts
	errs                   []ItemError
}

func newBatchResult() *batchResult {
	return &batchResult{rows: Counts{}, completed: Counts{}}
}

func (r *Report) merge(b *batchResult, committed bool) {
	r.Errors = append(r.Errors, b.errs...)
	if !committed {
		return
	}
	r.BatchesCommitted++
	r.MatchesVisited += b.visited
	r.FullyProcessed += b.full
	r.PartiallyProcessed += b.partial
	r.RowsWritten.add(b.rows)
	r.Completed.add(b.completed)
}
