package perfscore

import (
	"fmt"
	"testing"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// makeHistory builds n matches before base with kills varying 8..12.
func makeHistory(n int) []model.PlayerMatchMetrics {
	out := make([]model.PlayerMatchMetrics, n)
	for i := range out {
		out[i] = model.PlayerMatchMetrics{
			MatchID:         fmt.Sprintf("h%02d", i),
			StartTime:       base.Add(-time.Duration(n-i) * time.Hour),
			DurationSeconds: 600,
			Kills:           8 + i%5,
			Deaths:          10 - i%3,
			Assists:         3 + i%2,
			Accuracy:        pct(40 + float64(i%4)),
			PersonalScore:   1500 + 50*(i%3),
			DamageDealt:     2000 + 100*(i%5),
			Rank:            1 + i%8,
			Players:         8,
		}
	}
	return out
}

func pct(v float64) *float64 { return &v }

func target(kills, deaths int) model.PlayerMatchMetrics {
	return model.PlayerMatchMetrics{
		MatchID: "t", StartTime: base, DurationSeconds: 600,
		Kills: kills, Deaths: deaths, Assists: 3, Accuracy: pct(41),
		PersonalScore: 1550, DamageDealt: 2200, Rank: 4, Players: 8,
	}
}

func TestScoreNilBelowMinHistory(t *testing.T) {
	cfg := DefaultConfig()
	if s := Score(target(10, 8), makeHistory(9), cfg); s != nil {
		t.Errorf("expected nil with 9 prior matches, got %v", *s)
	}
	if s := Score(target(10, 8), makeHistory(10), cfg); s == nil {
		t.Error("expected a score with 10 prior matches")
	}
}

func TestScoreExcludesTargetAndLaterMatches(t *testing.T) {
	h := makeHistory(9)
	// The target itself and a later match must not count towards the baseline.
	h = append(h, target(10, 8))
	later := target(10, 8)
	later.MatchID = "later"
	later.StartTime = base.Add(time.Hour)
	h = append(h, later)

	if s := Score(target(10, 8), h, DefaultConfig()); s != nil {
		t.Errorf("expected nil, baseline must only hold 9 earlier matches; got %v", *s)
	}
}

func TestBetterMatchScoresHigher(t *testing.T) {
	h := makeHistory(20)
	cfg := DefaultConfig()
	good := Score(target(20, 4), h, cfg)
	bad := Score(target(4, 16), h, cfg)
	if good == nil || bad == nil {
		t.Fatal("expected scores")
	}
	if *good <= 0 || *bad >= 0 {
		t.Errorf("expected good > 0 > bad, got good=%v bad=%v", *good, *bad)
	}
}

func TestFewerDeathsScoresHigher(t *testing.T) {
	h := makeHistory(20)
	cfg := DefaultConfig()
	few := Score(target(10, 5), h, cfg)
	many := Score(target(10, 12), h, cfg)
	if *few <= *many {
		t.Errorf("fewer deaths should score higher: few=%v many=%v", *few, *many)
	}
}

func TestConstantHistoryGivesZero(t *testing.T) {
	h := make([]model.PlayerMatchMetrics, 10)
	for i := range h {
		h[i] = target(10, 8)
		h[i].MatchID = fmt.Sprintf("c%d", i)
		h[i].StartTime = base.Add(-time.Duration(i+1) * time.Hour)
	}
	s := Score(target(30, 1), h, DefaultConfig())
	if s == nil || *s != 0 {
		t.Errorf("zero spread must give z=0 everywhere, got %v", s)
	}
}

func TestConstantFractionalHistoryGivesZero(t *testing.T) {
	h := make([]model.PlayerMatchMetrics, 12)
	for i := range h {
		h[i] = target(7, 3)
		h[i].DurationSeconds = 730
		h[i].Accuracy = pct(33.3)
		h[i].MatchID = fmt.Sprintf("c%d", i)
		h[i].StartTime = base.Add(-time.Duration(i+1) * time.Hour)
	}
	tg := target(7, 3)
	tg.DurationSeconds = 730
	tg.Accuracy = pct(33.3)
	s := Score(tg, h, DefaultConfig())
	if s == nil || *s != 0 {
		t.Errorf("a match identical to a constant history must score 0, got %v", s)
	}
}

func TestMissingAccuracyIsNeutral(t *testing.T) {
	h := makeHistory(20)
	cfg := DefaultConfig()

	avg := Score(target(10, 8), h, cfg)
	noShots := target(10, 8)
	noShots.Accuracy = nil
	got := Score(noShots, h, cfg)
	if avg == nil || got == nil {
		t.Fatal("expected scores")
	}

	// Average accuracy in makeHistory is 41.5, so target(10, 8) at 41 sits
	// just below it. Without a reading the accuracy term drops to 0.
	mean, std := meanStd(observations(h), metricAccuracy)
	want := *avg - DefaultWeights.Accuracy*(41-mean)/std
	if diff := *got - want; diff > 2e-4 || diff < -2e-4 {
		t.Errorf("missing accuracy should contribute 0: got %v, want %v", *got, want)
	}
}

func TestMissingAccuracyLeftOutOfBaseline(t *testing.T) {
	h := makeHistory(20)
	withGaps := makeHistory(20)
	for i := 0; i < 5; i++ {
		extra := withGaps[i]
		extra.MatchID = fmt.Sprintf("z%02d", i)
		extra.Accuracy = nil
		withGaps = append(withGaps, extra)
	}
	mean, _ := meanStd(observations(h), metricAccuracy)
	gapMean, _ := meanStd(observations(withGaps), metricAccuracy)
	if mean != gapMean {
		t.Errorf("matches without shots must not pull the accuracy mean: %v vs %v", mean, gapMean)
	}
}

func observations(ms []model.PlayerMatchMetrics) []observation {
	out := make([]observation, len(ms))
	for i, m := range ms {
		v, known := Metrics(m)
		out[i] = observation{v, known}
	}
	return out
}

func TestScoreIsClamped(t *testing.T) {
	s := Score(target(500, 0), makeHistory(20), DefaultConfig())
	if s == nil || *s > 3 || *s < -3 {
		t.Errorf("score must stay within clamp, got %v", s)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	if err := DefaultWeights.Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
	w := DefaultWeights
	w.Accuracy = 0.5
	if err := w.Validate(); err == nil {
		t.Error("expected error for weights not summing to 1")
	}
}

func TestRankPerformance(t *testing.T) {
	cases := []struct {
		rank, players int
		want          float64
	}{
		{1, 8, 1},
		{8, 8, 0},
		{1, 1, 1},
		{0, 8, 0.5},
	}
	for _, c := range cases {
		if got := rankPerformance(c.rank, c.players); got != c.want {
			t.Errorf("rankPerformance(%d,%d) = %v, want %v", c.rank, c.players, got, c.want)
		}
	}
}
