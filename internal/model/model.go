package model

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the player's result for a match.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeTie  Outcome = "tie"
	OutcomeLeft Outcome = "left"
)

// ParseOutcome maps the provider's outcome strings onto Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win", "won":
		return OutcomeWin, nil
	case "loss", "lost":
		return OutcomeLoss, nil
	case "tie", "draw":
		return OutcomeTie, nil
	case "left", "dnf":
		return OutcomeLeft, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

// Match is one stored match of the store's owner. The optional pointer fields
// are filled in by category materializers.
type Match struct {
	MatchID         string
	StartTime       time.Time
	DurationSeconds int
	Outcome         Outcome

	EndTime          *time.Time
	ShotsFired       *int
	ShotsHit         *int
	Accuracy         *float64
	PerformanceScore *float64
}

// Minutes returns the match duration in minutes, or 0 for a zero duration.
func (m *Match) Minutes() float64 {
	return float64(m.DurationSeconds) / 60
}

// ---- Row sets written by materializers ----

type Participant struct {
	MatchID  string
	PlayerID string
	Gamertag string
	Team     string // "" when the provider did not report a team
	IsSelf   bool
}

// ParticipantStats is the per-player row shared by the participant-scores,
// participant-kda and participant-shots categories. Each category only
// touches its own columns.
type ParticipantStats struct {
	MatchID  string
	PlayerID string

	PersonalScore int
	Rank          int

	Kills   int
	Deaths  int
	Assists int

	ShotsFired  int
	ShotsHit    int
	DamageDealt int
	DamageTaken int
}

type Medal struct {
	MatchID string
	MedalID int64
	Count   int
}

type ScoreAward struct {
	MatchID    string
	AwardID    int64
	Count      int
	TotalScore int
}

// AssetRef points at a versioned asset (map, mode, playlist) used by the match.
type AssetRef struct {
	MatchID   string
	Kind      string
	AssetID   string
	VersionID string
}

// SkillSnapshot is the owner's skill rating around one match.
type SkillSnapshot struct {
	MatchID        string
	PreCSR         int
	PostCSR        int
	ExpectedKills  float64
	ExpectedDeaths float64
}

// OpposingSkill is the average skill of one team the owner played against.
type OpposingSkill struct {
	MatchID string
	Team    string
	AvgCSR  float64
	Players int
}

// EventKind is the type of a recorded match event.
type EventKind string

const (
	EventKill  EventKind = "kill"
	EventDeath EventKind = "death"
)

// Event is one entry of a match's recorded event stream. TimestampMs is the
// offset from match start.
type Event struct {
	MatchID     string
	Seq         int
	Kind        EventKind
	TimestampMs int64
	PlayerID    string
}

// KillerVictimPair aggregates how often KillerID killed VictimID in one match.
type KillerVictimPair struct {
	MatchID          string
	KillerID         string
	VictimID         string
	Count            int
	RepresentativeMs int64 // timestamp of the first kill of the pair
}

// SessionAssignment places a match into a play session.
type SessionAssignment struct {
	MatchID    string
	SessionID  int
	Label      string
	AnchorDate string // "YYYY-MM-DD" after the hour-of-day cutover is applied
	DayOrdinal int    // 1-based position of the session within AnchorDate
}

// PlayerMatchMetrics is the owner's per-match input to performance scoring.
type PlayerMatchMetrics struct {
	MatchID         string
	StartTime       time.Time
	DurationSeconds int

	Kills         int
	Deaths        int
	Assists       int
	Accuracy      *float64 // percent, 0–100; nil with no shots fired
	PersonalScore int
	DamageDealt   int
	Rank          int
	Players       int
}

// MatchHeader is one entry of the provider's match history listing.
type MatchHeader struct {
	MatchID         string
	StartTime       time.Time
	DurationSeconds int
	Outcome         Outcome
}
