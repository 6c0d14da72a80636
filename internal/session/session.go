// Package session groups a player's matches into play sessions.
//
// A new session starts when the gap to the previous match exceeds the gap
// threshold or when the teammate signature changes. Sessions are labelled by
// an anchor date: the date of their first match, moved back one day when that
// match started before the cutover hour, so late-night play stays in the
// evening's session.
package session

import (
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

type Config struct {
	GapThreshold     time.Duration `yaml:"gap_threshold"`
	CutoverHour      int           `yaml:"cutover_hour"`
	StabilityHorizon time.Duration `yaml:"stability_horizon"`
	// Location is the zone anchor dates are computed in. Nil means UTC.
	Location *time.Location `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		GapThreshold:     120 * time.Minute,
		CutoverHour:      8,
		StabilityHorizon: 4 * time.Hour,
		Location:         time.UTC,
	}
}

func (c Config) Validate() error {
	if c.GapThreshold <= 0 {
		return fmt.Errorf("session gap threshold must be positive, got %s", c.GapThreshold)
	}
	if c.CutoverHour < 0 || c.CutoverHour > 23 {
		return fmt.Errorf("session cutover hour must be 0-23, got %d", c.CutoverHour)
	}
	if c.StabilityHorizon < 0 {
		return fmt.Errorf("session stability horizon must not be negative, got %s", c.StabilityHorizon)
	}
	return nil
}

func (c Config) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// AnchorDate returns the session date a session starting at t belongs to.
func (c Config) AnchorDate(t time.Time) string {
	local := t.In(c.loc())
	if local.Hour() < c.CutoverHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format("2006-01-02")
}

// Stable reports whether a match started at t is old enough for its session
// to be final.
func (c Config) Stable(t, now time.Time) bool {
	return now.Sub(t) >= c.StabilityHorizon
}

// Label formats the human-facing session label.
func Label(anchorDate string, ordinal int) string {
	return fmt.Sprintf("%s #%d", anchorDate, ordinal)
}

// Breaks reports whether cur starts a new session after prev.
func (c Config) Breaks(prevStart, curStart time.Time, prevSig, curSig model.TeammateSignature) bool {
	if curStart.Sub(prevStart) > c.GapThreshold {
		return true
	}
	return !prevSig.Equal(curSig)
}

// Segment assigns sessions to points, which must be in chronological order.
// Session ids start at 1 and increase by one per session.
func Segment(points []model.SignaturePoint, cfg Config) []model.SessionAssignment {
	out := make([]model.SessionAssignment, 0, len(points))
	var cur model.SessionAssignment
	for i, p := range points {
		if i == 0 || cfg.Breaks(points[i-1].StartTime, p.StartTime, points[i-1].Signature, p.Signature) {
			cur = next(cur, i == 0, cfg.AnchorDate(p.StartTime))
		}
		a := cur
		a.MatchID = p.MatchID
		out = append(out, a)
	}
	return out
}

// next returns the session following prev, anchored on anchor.
func next(prev model.SessionAssignment, first bool, anchor string) model.SessionAssignment {
	if first {
		return model.SessionAssignment{SessionID: 1, AnchorDate: anchor, DayOrdinal: 1, Label: Label(anchor, 1)}
	}
	ordinal := 1
	if prev.AnchorDate == anchor {
		ordinal = prev.DayOrdinal + 1
	}
	return model.SessionAssignment{
		SessionID:  prev.SessionID + 1,
		AnchorDate: anchor,
		DayOrdinal: ordinal,
		Label:      Label(anchor, ordinal),
	}
}

// Session is a group of consecutive matches sharing an assignment.
type Session struct {
	ID       int
	Label    string
	MatchIDs []string
	Start    time.Time
	End      time.Time
}

// Group collapses per-match assignments into sessions. matches supplies
// start times and must cover every assigned match id.
func Group(assignments []model.SessionAssignment, matches map[string]model.Match) []Session {
	var out []Session
	for _, a := range assignments {
		m := matches[a.MatchID]
		end := m.StartTime.Add(time.Duration(m.DurationSeconds) * time.Second)
		if n := len(out); n > 0 && out[n-1].ID == a.SessionID {
			s := &out[n-1]
			s.MatchIDs = append(s.MatchIDs, a.MatchID)
			if end.After(s.End) {
				s.End = end
			}
			continue
		}
		out = append(out, Session{
			ID:       a.SessionID,
			Label:    a.Label,
			MatchIDs: []string{a.MatchID},
			Start:    m.StartTime,
			End:      end,
		})
	}
	return out
}
