// Package aggregator derives killer/victim pair statistics from a match's
// recorded event stream.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// DefaultTolerance is the widest gap between a kill and the death it is
// attributed to.
const DefaultTolerance = 500 * time.Millisecond

// Pairs correlates every kill with the temporally closest unclaimed death of
// an opposing player within tolerance and counts the resulting
// (killer, victim) pairs. teams maps player id to team; players missing from
// it, or with an empty team, are treated as opposing everyone but themselves.
//
// Ties between equally close deaths go to the earlier death. Each death is
// claimed at most once. The representative timestamp of a pair is the
// timestamp of its first kill.
func Pairs(matchID string, events []model.Event, teams map[string]string, tolerance time.Duration) ([]model.KillerVictimPair, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("negative tolerance %s", tolerance)
	}
	tolMs := tolerance.Milliseconds()

	// ---- Pass 1: split and order the stream. ----

	var kills, deaths []model.Event
	for _, e := range events {
		switch e.Kind {
		case model.EventKill:
			kills = append(kills, e)
		case model.EventDeath:
			deaths = append(deaths, e)
		default:
			return nil, fmt.Errorf("match %s: event %d has unknown kind %q", matchID, e.Seq, e.Kind)
		}
	}
	byTime := func(s []model.Event) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].TimestampMs != s[j].TimestampMs {
				return s[i].TimestampMs < s[j].TimestampMs
			}
			return s[i].Seq < s[j].Seq
		})
	}
	byTime(kills)
	byTime(deaths)

	// ---- Pass 2: claim the closest eligible death for each kill. ----

	type pairKey struct{ killer, victim string }
	counts := make(map[pairKey]*model.KillerVictimPair)
	claimed := make([]bool, len(deaths))

	for _, k := range kills {
		lo := sort.Search(len(deaths), func(i int) bool {
			return deaths[i].TimestampMs >= k.TimestampMs-tolMs
		})
		best := -1
		var bestDist int64
		for j := lo; j < len(deaths) && deaths[j].TimestampMs <= k.TimestampMs+tolMs; j++ {
			d := deaths[j]
			if claimed[j] || d.PlayerID == k.PlayerID || !opposing(teams, k.PlayerID, d.PlayerID) {
				continue
			}
			dist := abs(d.TimestampMs - k.TimestampMs)
			// deaths are scanned in time order, so strict < keeps the earlier one on a tie
			if best == -1 || dist < bestDist {
				best, bestDist = j, dist
			}
		}
		if best == -1 {
			continue
		}
		claimed[best] = true

		key := pairKey{killer: k.PlayerID, victim: deaths[best].PlayerID}
		p, ok := counts[key]
		if !ok {
			p = &model.KillerVictimPair{
				MatchID:          matchID,
				KillerID:         key.killer,
				VictimID:         key.victim,
				RepresentativeMs: k.TimestampMs,
			}
			counts[key] = p
		}
		p.Count++
	}

	// ---- Pass 3: stable output order. ----

	out := make([]model.KillerVictimPair, 0, len(counts))
	for _, p := range counts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].KillerID != out[j].KillerID {
			return out[i].KillerID < out[j].KillerID
		}
		return out[i].VictimID < out[j].VictimID
	})
	return out, nil
}

// TeamsFromParticipants builds the player→team lookup used by Pairs.
func TeamsFromParticipants(parts []model.Participant) map[string]string {
	teams := make(map[string]string, len(parts))
	for _, p := range parts {
		teams[p.PlayerID] = p.Team
	}
	return teams
}

func opposing(teams map[string]string, a, b string) bool {
	ta, tb := teams[a], teams[b]
	if ta == "" || tb == "" {
		return true
	}
	return ta != tb
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
