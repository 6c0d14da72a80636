package materialize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func indexOf(order []Materializer, c model.Category) int {
	for i, m := range order {
		if m.Category() == c {
			return i
		}
	}
	return -1
}

func TestResolveClosesOverPrerequisites(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	p, err := r.Resolve(model.NewCategorySet(model.CategoryPerformanceScore))
	require.NoError(t, err)

	for _, c := range []model.Category{
		model.CategoryParticipants,
		model.CategoryParticipantKDA,
		model.CategoryParticipantScores,
		model.CategoryParticipantShots,
		model.CategoryShotCounts,
		model.CategoryAccuracy,
		model.CategoryPerformanceScore,
	} {
		assert.True(t, p.Set.Has(c), "closure should contain %s", c)
	}
	assert.False(t, p.Set.Has(model.CategoryMedals))
	assert.Equal(t, p.Set.Len(), len(p.Order))

	for _, m := range p.Order {
		for _, dep := range m.Requires().Slice() {
			assert.Less(t, indexOf(p.Order, dep), indexOf(p.Order, m.Category()),
				"%s must come before %s", dep, m.Category())
		}
	}
}

func TestResolveAllCategories(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	p, err := r.Resolve(model.FullCategorySet())
	require.NoError(t, err)
	assert.Len(t, p.Order, len(model.AllCategories()))
}

type loopMaterializer struct {
	base
}

func (loopMaterializer) Materialize(context.Context, Input) (Rows, error) { return nil, nil }

func TestResolveRejectsCycle(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	r.Register(loopMaterializer{computeBase(model.CategoryEndTime, model.CategoryAccuracy)})
	r.Register(loopMaterializer{computeBase(model.CategoryAccuracy, model.CategoryEndTime)})

	_, err := r.Resolve(model.NewCategorySet(model.CategoryEndTime))
	assert.Error(t, err)
}

func TestPlanSectionsOnlyForMissingFetchCategories(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	p, err := r.Resolve(model.FullCategorySet())
	require.NoError(t, err)

	assert.Equal(t, model.Section(0), p.Sections(model.NewCategorySet(model.CategoryEndTime, model.CategoryAccuracy)))
	assert.Equal(t, model.SectionSkill, p.Sections(model.NewCategorySet(model.CategorySkillSnapshot)))
	assert.Equal(t, model.SectionStats|model.SectionEvents,
		p.Sections(model.NewCategorySet(model.CategoryMedals, model.CategoryEventLog, model.CategoryKillerVictimPairs)))
}

func TestSessionEligibility(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	m := &model.Match{MatchID: "m1", StartTime: t0}
	assert.False(t, r.Eligible(model.CategorySessionAssignment, m, t0.Add(time.Hour)))
	assert.True(t, r.Eligible(model.CategorySessionAssignment, m, t0.Add(4*time.Hour)))
	assert.True(t, r.Eligible(model.CategoryMedals, m, t0))
}

// ---- materializers against a real store ----

type env struct {
	ctx context.Context
	db  *storage.DB
	reg *Registry
	m   *model.Match
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	_, err = db.InsertMatchHeaders(ctx, []model.MatchHeader{
		{MatchID: "m1", StartTime: t0, DurationSeconds: 720, Outcome: model.OutcomeWin},
	}, t0)
	require.NoError(t, err)
	m, err := db.Match(ctx, "m1")
	require.NoError(t, err)
	return &env{ctx: ctx, db: db, reg: NewRegistry(DefaultOptions()), m: m}
}

// run materializes c inside its own transaction and commits.
func (e *env) run(t *testing.T, c model.Category, payload *model.RawPayload) (int, error) {
	t.Helper()
	tx, err := e.db.Begin(e.ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	rows, err := e.reg.Get(c).Materialize(e.ctx, Input{
		PlayerID: "me", Match: e.m, Payload: payload, Store: tx, Now: t0.Add(24 * time.Hour),
	})
	if err != nil {
		return 0, err
	}
	n, err := rows.Write(e.ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkComplete(e.ctx, e.m.MatchID, c, t0))
	require.NoError(t, tx.Commit())
	return n, nil
}

func statsPayload() *model.RawPayload {
	return &model.RawPayload{MatchID: "m1", Stats: &model.RawStats{
		Medals: []model.RawMedal{{MedalID: 11, Count: 2}},
		Players: []model.RawPlayer{
			{PlayerID: "me", Team: "red", Rank: 1, Kills: 15, Deaths: 7, Assists: 4, ShotsFired: 200, ShotsHit: 90, PersonalScore: 2400},
			{PlayerID: "mate", Team: "red", Rank: 3, Kills: 9, Deaths: 9},
			{PlayerID: "foe", Team: "blue", Rank: 2, Kills: 11, Deaths: 10},
		},
	}}
}

func TestFetchCategoryRequiresSection(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryMedals, &model.RawPayload{MatchID: "m1"})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	done, err := e.db.CompletedFor(e.ctx, "m1")
	require.NoError(t, err)
	assert.True(t, done.Empty())
}

func TestParticipantsMarksOwner(t *testing.T) {
	e := newEnv(t)
	n, err := e.run(t, model.CategoryParticipants, statsPayload())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	parts, err := e.db.Participants(e.ctx, "m1")
	require.NoError(t, err)
	for _, p := range parts {
		assert.Equal(t, p.PlayerID == "me", p.IsSelf, p.PlayerID)
	}
}

func TestParticipantsRejectsRosterWithoutOwner(t *testing.T) {
	e := newEnv(t)
	p := statsPayload()
	p.Stats.Players = p.Stats.Players[1:]
	_, err := e.run(t, model.CategoryParticipants, p)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestAccuracyFromShotCounts(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryAccuracy, nil)
	assert.ErrorIs(t, err, ErrDependency)

	_, err = e.run(t, model.CategoryShotCounts, statsPayload())
	require.NoError(t, err)
	_, err = e.run(t, model.CategoryAccuracy, nil)
	require.NoError(t, err)

	m, err := e.db.Match(e.ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m.Accuracy)
	assert.InDelta(t, 45.0, *m.Accuracy, 1e-9)
}

func TestEndTime(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryEndTime, nil)
	require.NoError(t, err)

	m, err := e.db.Match(e.ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m.EndTime)
	assert.Equal(t, t0.Add(12*time.Minute), *m.EndTime)
}

func TestEventLogRejectsUnknownKind(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryEventLog, &model.RawPayload{MatchID: "m1", Events: &model.RawEventStream{
		Events: []model.RawEvent{{Kind: "respawn", TimestampMs: 5, PlayerID: "me"}},
	}})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestKillerVictimPairsFromStoredEvents(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryParticipants, statsPayload())
	require.NoError(t, err)
	_, err = e.run(t, model.CategoryEventLog, &model.RawPayload{MatchID: "m1", Events: &model.RawEventStream{
		Events: []model.RawEvent{
			{Kind: "kill", TimestampMs: 1000, PlayerID: "me"},
			{Kind: "death", TimestampMs: 1100, PlayerID: "foe"},
			{Kind: "kill", TimestampMs: 8000, PlayerID: "me"},
			{Kind: "death", TimestampMs: 8200, PlayerID: "foe"},
		},
	}})
	require.NoError(t, err)

	n, err := e.run(t, model.CategoryKillerVictimPairs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pairs, err := e.db.KillerVictimPairs(e.ctx, "m1")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 2, pairs[0].Count)
}

func TestOpposingSkillAveragesOtherTeams(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, model.CategoryParticipants, statsPayload())
	require.NoError(t, err)

	n, err := e.run(t, model.CategoryOpposingSkill, &model.RawPayload{MatchID: "m1", Skill: &model.RawSkill{
		Players: []model.RawPlayerSkill{
			{PlayerID: "me", Team: "red", CSR: 1500},
			{PlayerID: "foe", Team: "blue", CSR: 1400},
			{PlayerID: "foe2", Team: "blue", CSR: 1600},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPerformanceScoreNullWithoutHistory(t *testing.T) {
	e := newEnv(t)
	p := statsPayload()
	for _, c := range []model.Category{
		model.CategoryParticipants,
		model.CategoryParticipantKDA,
		model.CategoryParticipantScores,
		model.CategoryParticipantShots,
		model.CategoryShotCounts,
	} {
		_, err := e.run(t, c, p)
		require.NoError(t, err, c.String())
	}
	_, err := e.run(t, model.CategoryAccuracy, nil)
	require.NoError(t, err)

	_, err = e.run(t, model.CategoryPerformanceScore, nil)
	require.NoError(t, err)
	m, err := e.db.Match(e.ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m.PerformanceScore)

	done, err := e.db.CompletedFor(e.ctx, "m1")
	require.NoError(t, err)
	assert.True(t, done.Has(model.CategoryPerformanceScore), "a null score is still complete")
}
