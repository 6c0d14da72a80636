// Package perfscore rates one match against the player's own earlier matches.
//
// Each metric is turned into a z-score against the history's mean and sample
// standard deviation, clamped to ±Clamp, and the z-scores are combined with
// fixed weights. A score of 0 is an average match for that player; positive
// is better. Deaths per minute is inverted so that fewer deaths score higher.
package perfscore

import (
	"fmt"
	"math"

	"github.com/pable/go-match-sync/internal/model"
)

const (
	metricKPM = iota
	metricDPM
	metricAPM
	metricKDA
	metricAccuracy
	metricSPM
	metricDamagePM
	metricRank

	numMetrics
)

var metricNames = [numMetrics]string{"kpm", "dpm", "apm", "kda", "accuracy", "spm", "dmgpm", "rank"}

// Weights of each normalized metric in the final score. They must sum to 1.
type Weights struct {
	KillsPerMinute  float64 `yaml:"kills_per_minute"`
	DeathsPerMinute float64 `yaml:"deaths_per_minute"`
	AssistsPerMin   float64 `yaml:"assists_per_minute"`
	KDARatio        float64 `yaml:"kda_ratio"`
	Accuracy        float64 `yaml:"accuracy"`
	ScorePerMinute  float64 `yaml:"score_per_minute"`
	DamagePerMinute float64 `yaml:"damage_per_minute"`
	RankPerformance float64 `yaml:"rank_performance"`
}

var DefaultWeights = Weights{
	KillsPerMinute:  0.22,
	DeathsPerMinute: 0.18,
	AssistsPerMin:   0.10,
	KDARatio:        0.15,
	Accuracy:        0.08,
	ScorePerMinute:  0.12,
	DamagePerMinute: 0.10,
	RankPerformance: 0.05,
}

func (w Weights) vector() [numMetrics]float64 {
	return [numMetrics]float64{
		w.KillsPerMinute, w.DeathsPerMinute, w.AssistsPerMin, w.KDARatio,
		w.Accuracy, w.ScorePerMinute, w.DamagePerMinute, w.RankPerformance,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var s float64
	for _, v := range w.vector() {
		s += v
	}
	return s
}

// Validate checks that no weight is negative and that they sum to 1.
func (w Weights) Validate() error {
	for i, v := range w.vector() {
		if v < 0 {
			return fmt.Errorf("weight %s is negative", metricNames[i])
		}
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("weights sum to %.4f, want 1", w.Sum())
	}
	return nil
}

type Config struct {
	MinHistory int     `yaml:"min_history"`
	Clamp      float64 `yaml:"clamp"`
	Weights    Weights `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{MinHistory: 10, Clamp: 3, Weights: DefaultWeights}
}

// Metrics returns the raw metric vector of one match and which of its slots
// hold a reading. Accuracy is missing for a match with no shots fired.
func Metrics(m model.PlayerMatchMetrics) ([numMetrics]float64, [numMetrics]bool) {
	var v [numMetrics]float64
	var known [numMetrics]bool
	for i := range known {
		known[i] = true
	}
	if mins := float64(m.DurationSeconds) / 60; mins > 0 {
		v[metricKPM] = float64(m.Kills) / mins
		v[metricDPM] = float64(m.Deaths) / mins
		v[metricAPM] = float64(m.Assists) / mins
		v[metricSPM] = float64(m.PersonalScore) / mins
		v[metricDamagePM] = float64(m.DamageDealt) / mins
	}
	v[metricKDA] = float64(m.Kills+m.Assists) / float64(max(m.Deaths, 1))
	if m.Accuracy != nil {
		v[metricAccuracy] = *m.Accuracy
	} else {
		known[metricAccuracy] = false
	}
	v[metricRank] = rankPerformance(m.Rank, m.Players)
	return v, known
}

// rankPerformance maps rank 1 to 1.0 and last place to 0.0.
func rankPerformance(rank, players int) float64 {
	switch {
	case rank <= 0:
		return 0.5
	case players <= 1:
		return 1
	}
	r := 1 - float64(rank-1)/float64(players-1)
	return math.Max(0, math.Min(1, r))
}

// Score rates target against history. Only history entries that started
// strictly before target (and are not target itself) are used. It returns
// nil when fewer than cfg.MinHistory such entries exist.
//
// A metric the target has no reading for contributes 0, and history entries
// without a reading are left out of that metric's mean and spread.
func Score(target model.PlayerMatchMetrics, history []model.PlayerMatchMetrics, cfg Config) *float64 {
	var baseline []observation
	for _, h := range history {
		if h.MatchID == target.MatchID || !h.StartTime.Before(target.StartTime) {
			continue
		}
		v, known := Metrics(h)
		baseline = append(baseline, observation{v, known})
	}
	if len(baseline) < cfg.MinHistory || len(baseline) == 0 {
		return nil
	}

	x, known := Metrics(target)
	w := cfg.Weights.vector()
	var score float64
	for i := 0; i < numMetrics; i++ {
		if !known[i] {
			continue
		}
		mean, std := meanStd(baseline, i)
		z := 0.0
		if std > 0 {
			z = (x[i] - mean) / std
		}
		if i == metricDPM {
			z = -z
		}
		if cfg.Clamp > 0 {
			z = math.Max(-cfg.Clamp, math.Min(cfg.Clamp, z))
		}
		score += w[i] * z
	}
	score = math.Round(score*10000) / 10000
	return &score
}

type observation struct {
	v     [numMetrics]float64
	known [numMetrics]bool
}

// spreadEpsilon is the relative spread below which a metric counts as
// constant. Summing identical floats leaves residue around 1e-16.
const spreadEpsilon = 1e-9

// meanStd returns the mean and sample standard deviation of metric i over the
// rows that have a reading for it. The deviation is 0 when fewer than two
// rows have one or when the spread is within rounding of the mean.
func meanStd(rows []observation, i int) (float64, float64) {
	var n, sum float64
	for _, r := range rows {
		if r.known[i] {
			sum += r.v[i]
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, r := range rows {
		if r.known[i] {
			d := r.v[i] - mean
			sq += d * d
		}
	}
	std := math.Sqrt(sq / (n - 1))
	if std <= spreadEpsilon*math.Max(1, math.Abs(mean)) {
		return mean, 0
	}
	return mean, std
}
