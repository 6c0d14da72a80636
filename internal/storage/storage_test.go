package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func openMemDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMatches(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	headers := make([]model.MatchHeader, len(ids))
	for i, id := range ids {
		headers[i] = model.MatchHeader{
			MatchID:         id,
			StartTime:       t0.Add(time.Duration(i) * 20 * time.Minute),
			DurationSeconds: 600,
			Outcome:         model.OutcomeWin,
		}
	}
	if _, err := db.InsertMatchHeaders(context.Background(), headers, t0); err != nil {
		t.Fatalf("InsertMatchHeaders: %v", err)
	}
}

func withTx(t *testing.T, db *DB, fn func(tx *Tx)) {
	t.Helper()
	tx, err := db.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestInsertMatchHeadersIgnoresKnown(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	seedMatches(t, db, "m1", "m2")
	n, err := db.InsertMatchHeaders(ctx, []model.MatchHeader{
		{MatchID: "m2", StartTime: t0, Outcome: model.OutcomeLoss},
		{MatchID: "m3", StartTime: t0.Add(time.Hour), Outcome: model.OutcomeTie},
	}, t0)
	if err != nil {
		t.Fatalf("InsertMatchHeaders: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 new match, got %d", n)
	}

	m, err := db.Match(ctx, "m2")
	if err != nil || m == nil {
		t.Fatalf("Match m2: %v %v", m, err)
	}
	if m.Outcome != model.OutcomeWin {
		t.Errorf("known match must not be overwritten, outcome=%s", m.Outcome)
	}
}

func TestListMatchesNewestFirst(t *testing.T) {
	db := openMemDB(t)
	seedMatches(t, db, "a", "b", "c")

	list, err := db.ListMatches(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(list))
	}
	if list[0].MatchID != "c" || list[1].MatchID != "b" {
		t.Errorf("unexpected order: %s, %s", list[0].MatchID, list[1].MatchID)
	}
}

func TestMatchByPrefix(t *testing.T) {
	db := openMemDB(t)
	seedMatches(t, db, "deadbeef1234")

	m, err := db.MatchByPrefix(context.Background(), "deadb")
	if err != nil {
		t.Fatalf("MatchByPrefix: %v", err)
	}
	if m == nil || m.MatchID != "deadbeef1234" {
		t.Fatalf("expected deadbeef1234, got %+v", m)
	}

	m2, err := db.MatchByPrefix(context.Background(), "ffff")
	if err != nil {
		t.Fatalf("MatchByPrefix no-match: %v", err)
	}
	if m2 != nil {
		t.Error("expected nil for unknown prefix")
	}
}

func TestCandidateAndCompletedCategories(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2", "m3")

	withTx(t, db, func(tx *Tx) {
		for _, c := range []model.Category{model.CategoryMedals, model.CategoryEventLog} {
			if err := tx.MarkComplete(ctx, "m1", c, t0); err != nil {
				t.Fatalf("MarkComplete: %v", err)
			}
		}
		if err := tx.MarkComplete(ctx, "m2", model.CategoryMedals, t0); err != nil {
			t.Fatalf("MarkComplete: %v", err)
		}
	})

	cats := []model.Category{model.CategoryMedals, model.CategoryEventLog}
	cands, err := db.CandidateMatches(ctx, cats, nil)
	if err != nil {
		t.Fatalf("CandidateMatches: %v", err)
	}
	if len(cands) != 2 || cands[0].MatchID != "m2" || cands[1].MatchID != "m3" {
		t.Fatalf("unexpected candidates: %+v", cands)
	}

	only, err := db.CandidateMatches(ctx, cats, []string{"m1", "m3"})
	if err != nil {
		t.Fatalf("CandidateMatches restricted: %v", err)
	}
	if len(only) != 1 || only[0].MatchID != "m3" {
		t.Fatalf("unexpected restricted candidates: %+v", only)
	}

	done, err := db.CompletedCategories(ctx, []string{"m1", "m2", "m3"})
	if err != nil {
		t.Fatalf("CompletedCategories: %v", err)
	}
	if done["m1"].Len() != 2 {
		t.Errorf("m1: expected 2 completed, got %s", done["m1"])
	}
	if !done["m2"].Has(model.CategoryMedals) || done["m2"].Has(model.CategoryEventLog) {
		t.Errorf("m2: unexpected completed set %s", done["m2"])
	}
	if !done["m3"].Empty() {
		t.Errorf("m3: expected nothing completed, got %s", done["m3"])
	}
}

func TestMarkCompleteIdempotent(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1")

	for i := 0; i < 2; i++ {
		withTx(t, db, func(tx *Tx) {
			if err := tx.MarkComplete(ctx, "m1", model.CategoryMedals, t0); err != nil {
				t.Fatalf("MarkComplete #%d: %v", i, err)
			}
		})
	}
	c, err := db.Completion(ctx)
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if c.Completed[model.CategoryMedals] != 1 {
		t.Errorf("expected 1 medals marker, got %d", c.Completed[model.CategoryMedals])
	}
}

func TestReplaceRowsIdempotent(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1")

	pairs := []model.KillerVictimPair{
		{KillerID: "x", VictimID: "y", Count: 2, RepresentativeMs: 1000},
		{KillerID: "y", VictimID: "x", Count: 1, RepresentativeMs: 4000},
	}
	for i := 0; i < 2; i++ {
		withTx(t, db, func(tx *Tx) {
			if _, err := tx.ReplaceKillerVictimPairs(ctx, "m1", pairs); err != nil {
				t.Fatalf("ReplaceKillerVictimPairs: %v", err)
			}
		})
	}
	got, err := db.KillerVictimPairs(ctx, "m1")
	if err != nil {
		t.Fatalf("KillerVictimPairs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs after repeated writes, got %d", len(got))
	}
	if got[0].KillerID != "x" || got[0].Count != 2 {
		t.Errorf("expected x->y count 2 first, got %+v", got[0])
	}
}

func TestParticipantStatColumnsAreIndependent(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1")

	withTx(t, db, func(tx *Tx) {
		if _, err := tx.UpsertParticipantKDA(ctx, []model.ParticipantStats{
			{MatchID: "m1", PlayerID: "p1", Kills: 12, Deaths: 8, Assists: 4},
		}); err != nil {
			t.Fatalf("UpsertParticipantKDA: %v", err)
		}
		if _, err := tx.UpsertParticipantScores(ctx, []model.ParticipantStats{
			{MatchID: "m1", PlayerID: "p1", PersonalScore: 2100, Rank: 3},
		}); err != nil {
			t.Fatalf("UpsertParticipantScores: %v", err)
		}
	})

	stats, err := db.ParticipantStats(ctx, "m1")
	if err != nil {
		t.Fatalf("ParticipantStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 row, got %d", len(stats))
	}
	s := stats[0]
	if s.Kills != 12 || s.Deaths != 8 || s.Assists != 4 {
		t.Errorf("kda overwritten by score upsert: %+v", s)
	}
	if s.PersonalScore != 2100 || s.Rank != 3 {
		t.Errorf("score columns mismatch: %+v", s)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1")

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.MarkComplete(ctx, "m1", model.CategoryMedals, t0); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	// Reads through the tx see its own writes.
	inTx, err := tx.CompletedFor(ctx, "m1")
	if err != nil {
		t.Fatalf("CompletedFor in tx: %v", err)
	}
	if !inTx.Has(model.CategoryMedals) {
		t.Error("expected tx to see its own marker")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	after, err := db.CompletedFor(ctx, "m1")
	if err != nil {
		t.Fatalf("CompletedFor: %v", err)
	}
	if !after.Empty() {
		t.Errorf("expected no markers after rollback, got %s", after)
	}
}

func TestSessionAssignmentsDeleteClearsMarkers(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2")

	withTx(t, db, func(tx *Tx) {
		for i, id := range []string{"m1", "m2"} {
			a := model.SessionAssignment{MatchID: id, SessionID: 1, Label: "2025-03-01 #1", AnchorDate: "2025-03-01", DayOrdinal: 1}
			if _, err := tx.UpsertSessionAssignment(ctx, a, t0); err != nil {
				t.Fatalf("UpsertSessionAssignment %d: %v", i, err)
			}
			if err := tx.MarkComplete(ctx, id, model.CategorySessionAssignment, t0); err != nil {
				t.Fatalf("MarkComplete: %v", err)
			}
		}
	})
	withTx(t, db, func(tx *Tx) {
		n, err := tx.DeleteSessionAssignments(ctx, []string{"m2"})
		if err != nil {
			t.Fatalf("DeleteSessionAssignments: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 deleted, got %d", n)
		}
	})

	if a, _ := db.SessionAssignment(ctx, "m1"); a == nil {
		t.Error("m1 assignment should survive")
	}
	if a, _ := db.SessionAssignment(ctx, "m2"); a != nil {
		t.Error("m2 assignment should be deleted")
	}
	done, _ := db.CompletedFor(ctx, "m2")
	if done.Has(model.CategorySessionAssignment) {
		t.Error("m2 session marker should be cleared")
	}
}

func TestSignaturePoints(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2")

	withTx(t, db, func(tx *Tx) {
		if _, err := tx.ReplaceParticipants(ctx, "m1", []model.Participant{
			{PlayerID: "me", Team: "red", IsSelf: true},
			{PlayerID: "b", Team: "red"},
			{PlayerID: "a", Team: "red"},
			{PlayerID: "z", Team: "blue"},
		}); err != nil {
			t.Fatalf("ReplaceParticipants: %v", err)
		}
		if err := tx.MarkComplete(ctx, "m1", model.CategoryParticipants, t0); err != nil {
			t.Fatalf("MarkComplete: %v", err)
		}
	})

	pts, err := db.SignaturePoints(ctx, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SignaturePoints: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if !pts[0].HasRoster || pts[0].Signature.String() != "a,b" {
		t.Errorf("m1: unexpected point %+v (%s)", pts[0], pts[0].Signature)
	}
	if pts[1].HasRoster || pts[1].Signature.Known() {
		t.Errorf("m2: expected no roster, got %+v", pts[1])
	}
}

func TestStoreErrorsAreClassified(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	_, err = db.CompletedCategories(context.Background(), []string{"m1"})
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if !errors.Is(err, ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}

func TestPlayerPathSanitizes(t *testing.T) {
	got := PlayerPath("/data", "xuid(2535/..)")
	if filepath.Dir(got) != "/data" {
		t.Errorf("path escaped data dir: %s", got)
	}
}

func TestCompletionCounts(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2", "m3")
	withTx(t, db, func(tx *Tx) {
		for _, id := range []string{"m1", "m2"} {
			if err := tx.MarkComplete(ctx, id, model.CategoryMedals, t0); err != nil {
				t.Fatalf("MarkComplete: %v", err)
			}
		}
		if err := tx.MarkComplete(ctx, "m3", model.CategoryEndTime, t0); err != nil {
			t.Fatalf("MarkComplete: %v", err)
		}
	})

	c, err := db.Completion(ctx)
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if c.Matches != 3 {
		t.Errorf("matches = %d, want 3", c.Matches)
	}
	if c.Completed[model.CategoryMedals] != 2 || c.Completed[model.CategoryEndTime] != 1 {
		t.Errorf("unexpected counts %v", c.Completed)
	}
	if c.Completed[model.CategoryAccuracy] != 0 {
		t.Errorf("accuracy should have no markers")
	}
}

func TestRivalTotalsAndOwner(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2")

	owner, err := db.OwnerID(ctx)
	if err != nil || owner != "" {
		t.Fatalf("OwnerID before rosters = %q, %v", owner, err)
	}

	withTx(t, db, func(tx *Tx) {
		for _, id := range []string{"m1", "m2"} {
			if _, err := tx.ReplaceParticipants(ctx, id, []model.Participant{
				{MatchID: id, PlayerID: "me", Gamertag: "Me", Team: "red", IsSelf: true},
				{MatchID: id, PlayerID: "foe", Gamertag: "Foe", Team: "blue"},
				{MatchID: id, PlayerID: "ace", Gamertag: "Ace", Team: "blue"},
			}); err != nil {
				t.Fatalf("ReplaceParticipants: %v", err)
			}
		}
		mustPairs := func(id string, pairs ...model.KillerVictimPair) {
			if _, err := tx.ReplaceKillerVictimPairs(ctx, id, pairs); err != nil {
				t.Fatalf("ReplaceKillerVictimPairs: %v", err)
			}
		}
		mustPairs("m1",
			model.KillerVictimPair{MatchID: "m1", KillerID: "me", VictimID: "foe", Count: 3, RepresentativeMs: 100},
			model.KillerVictimPair{MatchID: "m1", KillerID: "ace", VictimID: "me", Count: 1, RepresentativeMs: 200},
			model.KillerVictimPair{MatchID: "m1", KillerID: "ace", VictimID: "foe", Count: 9, RepresentativeMs: 300})
		mustPairs("m2",
			model.KillerVictimPair{MatchID: "m2", KillerID: "me", VictimID: "foe", Count: 2, RepresentativeMs: 100})
	})

	owner, err = db.OwnerID(ctx)
	if err != nil || owner != "me" {
		t.Fatalf("OwnerID = %q, %v", owner, err)
	}

	rivals, err := db.RivalTotals(ctx, "me", 0)
	if err != nil {
		t.Fatalf("RivalTotals: %v", err)
	}
	if len(rivals) != 2 {
		t.Fatalf("expected 2 rivals (pairs without the owner excluded), got %+v", rivals)
	}
	top := rivals[0]
	if top.VictimID != "foe" || top.Kills != 5 || top.Matches != 2 || top.Gamertag != "Foe" {
		t.Errorf("unexpected top rival %+v", top)
	}
	if rivals[1].KillerID != "ace" || rivals[1].Gamertag != "Ace" {
		t.Errorf("unexpected second rival %+v", rivals[1])
	}

	limited, err := db.RivalTotals(ctx, "me", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("RivalTotals limit 1 = %v, %v", limited, err)
	}
}

func TestPlayerMetricsKeepsMissingAccuracy(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	seedMatches(t, db, "m1", "m2")

	acc := 42.5
	withTx(t, db, func(tx *Tx) {
		for _, id := range []string{"m1", "m2"} {
			if _, err := tx.ReplaceParticipants(ctx, id, []model.Participant{
				{MatchID: id, PlayerID: "me", IsSelf: true},
			}); err != nil {
				t.Fatalf("ReplaceParticipants: %v", err)
			}
			if _, err := tx.UpsertParticipantKDA(ctx, []model.ParticipantStats{
				{MatchID: id, PlayerID: "me", Kills: 10, Deaths: 5},
			}); err != nil {
				t.Fatalf("UpsertParticipantKDA: %v", err)
			}
		}
		if _, err := tx.SetAccuracy(ctx, "m1", &acc); err != nil {
			t.Fatalf("SetAccuracy: %v", err)
		}
		if _, err := tx.SetAccuracy(ctx, "m2", nil); err != nil {
			t.Fatalf("SetAccuracy: %v", err)
		}
	})

	pm, err := db.PlayerMetrics(ctx, "m2")
	if err != nil || pm == nil {
		t.Fatalf("PlayerMetrics = %v, %v", pm, err)
	}
	if pm.Accuracy != nil {
		t.Errorf("zero-shot match must have no accuracy, got %v", *pm.Accuracy)
	}

	hist, err := db.MetricsHistory(ctx, t0.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("MetricsHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(hist))
	}
	if hist[0].Accuracy == nil || *hist[0].Accuracy != acc {
		t.Errorf("m1 accuracy = %v, want %v", hist[0].Accuracy, acc)
	}
	if hist[1].Accuracy != nil {
		t.Errorf("m2 accuracy should be missing, got %v", *hist[1].Accuracy)
	}
}

func TestHistoryStatePersistsWithPage(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	st, err := db.HistoryState(ctx)
	if err != nil || st != (HistoryState{}) {
		t.Fatalf("fresh HistoryState = %+v, %v", st, err)
	}

	n, err := db.StoreHistoryPage(ctx, []model.MatchHeader{
		{MatchID: "m1", StartTime: t0, Outcome: model.OutcomeWin},
		{MatchID: "m2", StartTime: t0.Add(time.Hour), Outcome: model.OutcomeWin},
	}, HistoryState{Walked: 2}, t0)
	if err != nil || n != 2 {
		t.Fatalf("StoreHistoryPage = %d, %v", n, err)
	}
	if st, _ = db.HistoryState(ctx); st != (HistoryState{Walked: 2}) {
		t.Errorf("HistoryState = %+v, want walked 2", st)
	}

	if _, err := db.StoreHistoryPage(ctx, nil, HistoryState{Complete: true}, t0); err != nil {
		t.Fatalf("StoreHistoryPage: %v", err)
	}
	if st, _ = db.HistoryState(ctx); st != (HistoryState{Complete: true}) {
		t.Errorf("HistoryState = %+v, want complete", st)
	}
}
