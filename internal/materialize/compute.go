package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/aggregator"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/perfscore"
	"github.com/pable/go-match-sync/internal/session"
)

// computer is a compute category: it reads only stored data.
type computer struct {
	base
	compute func(ctx context.Context, in Input) (Rows, error)
}

func (c computer) Materialize(ctx context.Context, in Input) (Rows, error) {
	return c.compute(ctx, in)
}

// reload returns the current stored state of the visited match, which may
// have gained columns earlier in the visit.
func reload(ctx context.Context, in Input) (*model.Match, error) {
	m, err := in.Store.Match(ctx, in.Match.MatchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: match %s not stored", ErrDependency, in.Match.MatchID)
	}
	return m, nil
}

func accuracy(ctx context.Context, in Input) (Rows, error) {
	m, err := reload(ctx, in)
	if err != nil {
		return nil, err
	}
	if m.ShotsFired == nil || m.ShotsHit == nil {
		return nil, fmt.Errorf("%w: shot counts not stored for %s", ErrDependency, m.MatchID)
	}
	var acc *float64
	if *m.ShotsFired > 0 {
		v := float64(*m.ShotsHit) / float64(*m.ShotsFired) * 100
		acc = &v
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.SetAccuracy(ctx, m.MatchID, acc)
	}), nil
}

func endTime(ctx context.Context, in Input) (Rows, error) {
	m := in.Match
	if m.DurationSeconds < 0 {
		return nil, fmt.Errorf("%w: negative duration for %s", ErrDependency, m.MatchID)
	}
	end := m.StartTime.Add(time.Duration(m.DurationSeconds) * time.Second)
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.SetEndTime(ctx, m.MatchID, end)
	}), nil
}

type pairsComputer struct {
	base
	tolerance time.Duration
}

func (p pairsComputer) Materialize(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	events, err := in.Store.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	parts, err := in.Store.Participants(ctx, id)
	if err != nil {
		return nil, err
	}
	pairs, err := aggregator.Pairs(id, events, aggregator.TeamsFromParticipants(parts), p.tolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceKillerVictimPairs(ctx, id, pairs)
	}), nil
}

type sessionComputer struct {
	base
	cfg session.Config
}

// Eligible holds back matches inside the stability horizon: their grouping
// may still change when later matches arrive.
func (s sessionComputer) Eligible(m *model.Match, now time.Time) bool {
	return s.cfg.Stable(m.StartTime, now)
}

func (s sessionComputer) Materialize(ctx context.Context, in Input) (Rows, error) {
	if !s.Eligible(in.Match, in.Now) {
		return nil, fmt.Errorf("%w: %s is inside the stability horizon", ErrNotEligible, in.Match.MatchID)
	}
	a, err := session.Assign(ctx, in.Store, in.Match, s.cfg)
	if errors.Is(err, session.ErrRosterMissing) {
		return nil, fmt.Errorf("%w: %w", ErrDependency, err)
	}
	if err != nil {
		return nil, err
	}
	now := in.Now
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.UpsertSessionAssignment(ctx, a, now)
	}), nil
}

// scoreInputs are the categories whose data feeds performance scoring.
var scoreInputs = []model.Category{
	model.CategoryParticipantKDA,
	model.CategoryParticipantScores,
	model.CategoryParticipantShots,
	model.CategoryAccuracy,
}

type scoreComputer struct {
	base
	cfg perfscore.Config
}

func (s scoreComputer) Materialize(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	target, err := in.Store.PlayerMetrics(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no stats row for the owner in %s", ErrDependency, id)
	}
	history, err := in.Store.MetricsHistory(ctx, in.Match.StartTime, scoreInputs)
	if err != nil {
		return nil, err
	}
	score := perfscore.Score(*target, history, s.cfg)
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.SetPerformanceScore(ctx, id, score)
	}), nil
}
