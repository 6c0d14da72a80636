// Package materialize produces the rows of every data category, either by
// extracting them from a fetched payload or by computing them from data that
// is already stored.
package materialize

import (
	"context"
	"errors"
	"time"

	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/perfscore"
	"github.com/pable/go-match-sync/internal/session"
)

var (
	// ErrMalformedPayload means the fetched payload lacked a section or had
	// an unexpected shape.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrDependency means a prerequisite category or row is not materialized.
	ErrDependency = errors.New("missing dependency")
	// ErrNotEligible means the category cannot be materialized for this
	// match yet, e.g. a session inside the stability horizon.
	ErrNotEligible = errors.New("not eligible")
)

// Strategy is how a category obtains its data.
type Strategy uint8

const (
	StrategyFetch Strategy = iota
	StrategyCompute
)

func (s Strategy) String() string {
	if s == StrategyFetch {
		return "fetch"
	}
	return "compute"
}

// Reader is the read access materializers have to stored data. Inside a
// backfill it is the batch transaction, so rows written earlier in the same
// visit are visible.
type Reader interface {
	session.Store
	Match(ctx context.Context, matchID string) (*model.Match, error)
	Events(ctx context.Context, matchID string) ([]model.Event, error)
	PlayerMetrics(ctx context.Context, matchID string) (*model.PlayerMatchMetrics, error)
	MetricsHistory(ctx context.Context, before time.Time, required []model.Category) ([]model.PlayerMatchMetrics, error)
}

// Writer is the write side of the batch transaction.
type Writer interface {
	ReplaceMedals(ctx context.Context, matchID string, medals []model.Medal) (int, error)
	ReplaceScoreAwards(ctx context.Context, matchID string, awards []model.ScoreAward) (int, error)
	ReplaceAssetRefs(ctx context.Context, matchID string, refs []model.AssetRef) (int, error)
	ReplaceParticipants(ctx context.Context, matchID string, parts []model.Participant) (int, error)
	UpsertParticipantScores(ctx context.Context, stats []model.ParticipantStats) (int, error)
	UpsertParticipantKDA(ctx context.Context, stats []model.ParticipantStats) (int, error)
	UpsertParticipantShots(ctx context.Context, stats []model.ParticipantStats) (int, error)
	UpsertSkillSnapshot(ctx context.Context, s model.SkillSnapshot) (int, error)
	ReplaceOpposingSkill(ctx context.Context, matchID string, teams []model.OpposingSkill) (int, error)
	ReplaceEvents(ctx context.Context, matchID string, events []model.Event) (int, error)
	ReplaceKillerVictimPairs(ctx context.Context, matchID string, pairs []model.KillerVictimPair) (int, error)
	SetShotCounts(ctx context.Context, matchID string, fired, hit int) (int, error)
	SetAccuracy(ctx context.Context, matchID string, accuracy *float64) (int, error)
	SetEndTime(ctx context.Context, matchID string, end time.Time) (int, error)
	SetPerformanceScore(ctx context.Context, matchID string, score *float64) (int, error)
	UpsertSessionAssignment(ctx context.Context, a model.SessionAssignment, computedAt time.Time) (int, error)
}

// Input is everything one materialization may look at.
type Input struct {
	PlayerID string
	Match    *model.Match
	// Payload holds the sections fetched for this visit; nil when the visit
	// needed no fetch.
	Payload *model.RawPayload
	Store   Reader
	Now     time.Time
}

// Rows is the output of a materialization. Write applies it idempotently and
// returns the number of rows written.
type Rows interface {
	Write(ctx context.Context, w Writer) (int, error)
}

type rowsFunc func(ctx context.Context, w Writer) (int, error)

func (f rowsFunc) Write(ctx context.Context, w Writer) (int, error) { return f(ctx, w) }

// Materializer produces the rows of one category for one match.
type Materializer interface {
	Category() model.Category
	Strategy() Strategy
	// Sections lists the payload sections a fetch category reads.
	Sections() model.Section
	// Requires lists the categories that must be complete first.
	Requires() model.CategorySet
	// Eligible reports whether the category may be materialized for m at now.
	Eligible(m *model.Match, now time.Time) bool
	Materialize(ctx context.Context, in Input) (Rows, error)
}

// Options configures the computed categories.
type Options struct {
	Session       session.Config
	PairTolerance time.Duration
	Score         perfscore.Config
}

// base carries the static description shared by every materializer.
type base struct {
	cat      model.Category
	strategy Strategy
	sections model.Section
	requires model.CategorySet
}

func (b base) Category() model.Category                  { return b.cat }
func (b base) Strategy() Strategy                        { return b.strategy }
func (b base) Sections() model.Section                   { return b.sections }
func (b base) Requires() model.CategorySet               { return b.requires }
func (b base) Eligible(_ *model.Match, _ time.Time) bool { return true }

func fetchBase(c model.Category, s model.Section, requires ...model.Category) base {
	return base{cat: c, strategy: StrategyFetch, sections: s, requires: model.NewCategorySet(requires...)}
}

func computeBase(c model.Category, requires ...model.Category) base {
	return base{cat: c, strategy: StrategyCompute, requires: model.NewCategorySet(requires...)}
}
