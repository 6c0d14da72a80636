package model

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Category is one independently backfillable facet of a match.
type Category uint8

const (
	CategoryMedals Category = iota
	CategoryEventLog
	CategorySkillSnapshot
	CategoryScoreAwards
	CategoryParticipants
	CategoryParticipantScores
	CategoryParticipantKDA
	CategoryParticipantShots
	CategoryAccuracy
	CategoryShotCounts
	CategoryOpposingSkill
	CategoryAssetRefs
	CategoryKillerVictimPairs
	CategoryEndTime
	CategorySessionAssignment
	CategoryPerformanceScore

	numCategories
)

var categoryNames = [numCategories]string{
	CategoryMedals:            "medals",
	CategoryEventLog:          "event-log",
	CategorySkillSnapshot:     "skill-snapshot",
	CategoryScoreAwards:       "personal-score-awards",
	CategoryParticipants:      "participants",
	CategoryParticipantScores: "participant-scores",
	CategoryParticipantKDA:    "participant-kda",
	CategoryParticipantShots:  "participant-shots",
	CategoryAccuracy:          "accuracy",
	CategoryShotCounts:        "shot-counts",
	CategoryOpposingSkill:     "opposing-team-skill",
	CategoryAssetRefs:         "asset-references",
	CategoryKillerVictimPairs: "killer-victim-pairs",
	CategoryEndTime:           "end-time",
	CategorySessionAssignment: "session-assignment",
	CategoryPerformanceScore:  "performance-score",
}

func (c Category) String() string {
	if c < numCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c < numCategories
}

// ParseCategory resolves a category by its stored name.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// CategorySet is a bit set of categories.
type CategorySet uint32

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	var s CategorySet
	for _, c := range cats {
		s = s.Add(c)
	}
	return s
}

// FullCategorySet contains every declared category.
func FullCategorySet() CategorySet {
	return CategorySet(1<<numCategories - 1)
}

// ParseCategorySet parses a comma separated list of category names.
// "all" selects every category.
func ParseCategorySet(list string) (CategorySet, error) {
	var s CategorySet
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "all") {
			return FullCategorySet(), nil
		}
		c, err := ParseCategory(part)
		if err != nil {
			return 0, err
		}
		s = s.Add(c)
	}
	return s, nil
}

func (s CategorySet) Add(c Category) CategorySet      { return s | 1<<c }
func (s CategorySet) Has(c Category) bool             { return s&(1<<c) != 0 }
func (s CategorySet) Union(o CategorySet) CategorySet { return s | o }
func (s CategorySet) Minus(o CategorySet) CategorySet { return s &^ o }
func (s CategorySet) Empty() bool                     { return s == 0 }
func (s CategorySet) Len() int                        { return bits.OnesCount32(uint32(s)) }

// Slice returns the members in declaration order.
func (s CategorySet) Slice() []Category {
	out := make([]Category, 0, s.Len())
	for c := Category(0); c < numCategories; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the member names in declaration order.
func (s CategorySet) Names() []string {
	cats := s.Slice()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}

func (s CategorySet) String() string {
	return strings.Join(s.Names(), ",")
}

// MarshalJSON encodes the set as a list of category names.
func (s CategorySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}
