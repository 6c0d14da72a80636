package model

import "strings"

// Section selects which parts of a match payload a fetch should return.
// Sections combine as a bit set.
type Section uint8

const (
	SectionStats Section = 1 << iota
	SectionSkill
	SectionEvents
)

func (s Section) Has(o Section) bool { return s&o == o }

func (s Section) String() string {
	var parts []string
	if s.Has(SectionStats) {
		parts = append(parts, "stats")
	}
	if s.Has(SectionSkill) {
		parts = append(parts, "skill")
	}
	if s.Has(SectionEvents) {
		parts = append(parts, "events")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ---- Raw payloads returned by the stats provider ----

// RawPayload is what one fetch returns for a match. A nil section means the
// provider did not return it (either not requested or unavailable).
type RawPayload struct {
	MatchID string          `json:"match_id"`
	Stats   *RawStats       `json:"stats,omitempty"`
	Skill   *RawSkill       `json:"skill,omitempty"`
	Events  *RawEventStream `json:"events,omitempty"`
}

type RawStats struct {
	Medals      []RawMedal      `json:"medals"`
	ScoreAwards []RawScoreAward `json:"personal_score_awards"`
	Assets      []RawAsset      `json:"assets"`
	Players     []RawPlayer     `json:"players"`
}

type RawMedal struct {
	MedalID int64 `json:"medal_id"`
	Count   int   `json:"count"`
}

type RawScoreAward struct {
	AwardID    int64 `json:"award_id"`
	Count      int   `json:"count"`
	TotalScore int   `json:"total_score"`
}

type RawAsset struct {
	Kind      string `json:"kind"`
	AssetID   string `json:"asset_id"`
	VersionID string `json:"version_id"`
}

// RawPlayer is one participant row of the stats section.
type RawPlayer struct {
	PlayerID      string `json:"player_id"`
	Gamertag      string `json:"gamertag"`
	Team          string `json:"team"`
	Rank          int    `json:"rank"`
	PersonalScore int    `json:"personal_score"`
	Kills         int    `json:"kills"`
	Deaths        int    `json:"deaths"`
	Assists       int    `json:"assists"`
	ShotsFired    int    `json:"shots_fired"`
	ShotsHit      int    `json:"shots_hit"`
	DamageDealt   int    `json:"damage_dealt"`
	DamageTaken   int    `json:"damage_taken"`
}

type RawSkill struct {
	Self    *RawSelfSkill    `json:"self"`
	Players []RawPlayerSkill `json:"players"`
}

type RawSelfSkill struct {
	PreCSR         int     `json:"pre_csr"`
	PostCSR        int     `json:"post_csr"`
	ExpectedKills  float64 `json:"expected_kills"`
	ExpectedDeaths float64 `json:"expected_deaths"`
}

type RawPlayerSkill struct {
	PlayerID string `json:"player_id"`
	Team     string `json:"team"`
	CSR      int    `json:"csr"`
}

// RawEventStream wraps the event list so that "no stream" (nil pointer) and
// "empty stream" stay distinguishable.
type RawEventStream struct {
	Events []RawEvent `json:"events"`
}

type RawEvent struct {
	Kind        string `json:"kind"`
	TimestampMs int64  `json:"timestamp_ms"`
	PlayerID    string `json:"player_id"`
}
