package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// ErrRosterMissing is returned when the match before the one being assigned
// has no materialized roster yet, so its teammate signature is not known.
var ErrRosterMissing = errors.New("preceding match roster not materialized")

// Store is the read access session assignment and the read path need.
type Store interface {
	PrecedingMatch(ctx context.Context, m *model.Match) (*model.Match, error)
	Participants(ctx context.Context, matchID string) ([]model.Participant, error)
	CompletedFor(ctx context.Context, matchID string) (model.CategorySet, error)
	SessionAssignment(ctx context.Context, matchID string) (*model.SessionAssignment, error)
	SignaturePoints(ctx context.Context, until time.Time) ([]model.SignaturePoint, error)
	MatchesBetween(ctx context.Context, from, to time.Time) ([]model.Match, error)
	SessionAssignmentsBetween(ctx context.Context, from, to time.Time) (map[string]model.SessionAssignment, error)
}

// Assign computes the session of m. When the preceding match already has a
// persisted session, m either joins it or starts the next one. Otherwise the
// player's history up to m is segmented from scratch.
func Assign(ctx context.Context, st Store, m *model.Match, cfg Config) (model.SessionAssignment, error) {
	anchor := cfg.AnchorDate(m.StartTime)

	prev, err := st.PrecedingMatch(ctx, m)
	if err != nil {
		return model.SessionAssignment{}, err
	}
	if prev == nil {
		a := next(model.SessionAssignment{}, true, anchor)
		a.MatchID = m.MatchID
		return a, nil
	}

	done, err := st.CompletedFor(ctx, prev.MatchID)
	if err != nil {
		return model.SessionAssignment{}, err
	}
	if !done.Has(model.CategoryParticipants) {
		return model.SessionAssignment{}, fmt.Errorf("%w: %s", ErrRosterMissing, prev.MatchID)
	}

	prevAssign, err := st.SessionAssignment(ctx, prev.MatchID)
	if err != nil {
		return model.SessionAssignment{}, err
	}
	if prevAssign == nil {
		return fromHistory(ctx, st, m, cfg)
	}

	curSig, err := signature(ctx, st, m.MatchID)
	if err != nil {
		return model.SessionAssignment{}, err
	}
	prevSig, err := signature(ctx, st, prev.MatchID)
	if err != nil {
		return model.SessionAssignment{}, err
	}

	var a model.SessionAssignment
	if cfg.Breaks(prev.StartTime, m.StartTime, prevSig, curSig) {
		a = next(*prevAssign, false, anchor)
	} else {
		a = *prevAssign
	}
	a.MatchID = m.MatchID
	return a, nil
}

func signature(ctx context.Context, st Store, matchID string) (model.TeammateSignature, error) {
	parts, err := st.Participants(ctx, matchID)
	if err != nil {
		return model.UnknownSignature, err
	}
	return model.SignatureFromParticipants(parts), nil
}

func fromHistory(ctx context.Context, st Store, m *model.Match, cfg Config) (model.SessionAssignment, error) {
	points, err := st.SignaturePoints(ctx, m.StartTime)
	if err != nil {
		return model.SessionAssignment{}, err
	}
	for _, a := range Segment(points, cfg) {
		if a.MatchID == m.MatchID {
			return a, nil
		}
	}
	return model.SessionAssignment{}, fmt.Errorf("match %s not found in history", m.MatchID)
}

// View is the result of the session read path.
type View struct {
	Assignments []model.SessionAssignment
	Matches     map[string]model.Match
	// Persisted is true when every assignment came from storage.
	Persisted bool
}

// Sessions returns the sessions of matches started in [from, to]. Persisted
// assignments are used only when every match in range has one and is past
// the stability horizon; otherwise the whole history up to to is segmented
// again and the result filtered to the range.
func Sessions(ctx context.Context, st Store, from, to, now time.Time, cfg Config) (*View, error) {
	matches, err := st.MatchesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	view := &View{Matches: make(map[string]model.Match, len(matches))}
	for _, m := range matches {
		view.Matches[m.MatchID] = m
	}
	if len(matches) == 0 {
		return view, nil
	}

	persisted, err := st.SessionAssignmentsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	usable := true
	for _, m := range matches {
		if _, ok := persisted[m.MatchID]; !ok || !cfg.Stable(m.StartTime, now) {
			usable = false
			break
		}
	}
	if usable {
		for _, m := range matches {
			view.Assignments = append(view.Assignments, persisted[m.MatchID])
		}
		view.Persisted = true
		return view, nil
	}

	points, err := st.SignaturePoints(ctx, to)
	if err != nil {
		return nil, err
	}
	for _, a := range Segment(points, cfg) {
		if _, ok := view.Matches[a.MatchID]; ok {
			view.Assignments = append(view.Assignments, a)
		}
	}
	return view, nil
}
