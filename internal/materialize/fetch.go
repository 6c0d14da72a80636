package materialize

import (
	"context"
	"fmt"
	"sort"

	"github.com/pable/go-match-sync/internal/model"
)

// extractor is a fetch category: its rows come straight out of the payload.
type extractor struct {
	base
	extract func(ctx context.Context, in Input) (Rows, error)
}

func (e extractor) Materialize(ctx context.Context, in Input) (Rows, error) {
	if err := requireSections(in.Payload, e.sections); err != nil {
		return nil, fmt.Errorf("%s: %w", e.cat, err)
	}
	return e.extract(ctx, in)
}

func requireSections(p *model.RawPayload, want model.Section) error {
	if p == nil {
		return fmt.Errorf("%w: no payload", ErrMalformedPayload)
	}
	if want.Has(model.SectionStats) && p.Stats == nil {
		return fmt.Errorf("%w: stats section missing", ErrMalformedPayload)
	}
	if want.Has(model.SectionSkill) && p.Skill == nil {
		return fmt.Errorf("%w: skill section missing", ErrMalformedPayload)
	}
	if want.Has(model.SectionEvents) && p.Events == nil {
		return fmt.Errorf("%w: event stream missing", ErrMalformedPayload)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

func medals(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	out := make([]model.Medal, 0, len(in.Payload.Stats.Medals))
	for _, m := range in.Payload.Stats.Medals {
		if m.MedalID == 0 || m.Count < 0 {
			return nil, malformed("medal %d with count %d", m.MedalID, m.Count)
		}
		out = append(out, model.Medal{MatchID: id, MedalID: m.MedalID, Count: m.Count})
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceMedals(ctx, id, out)
	}), nil
}

func scoreAwards(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	out := make([]model.ScoreAward, 0, len(in.Payload.Stats.ScoreAwards))
	for _, a := range in.Payload.Stats.ScoreAwards {
		if a.AwardID == 0 || a.Count < 0 {
			return nil, malformed("score award %d with count %d", a.AwardID, a.Count)
		}
		out = append(out, model.ScoreAward{MatchID: id, AwardID: a.AwardID, Count: a.Count, TotalScore: a.TotalScore})
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceScoreAwards(ctx, id, out)
	}), nil
}

func assetRefs(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	out := make([]model.AssetRef, 0, len(in.Payload.Stats.Assets))
	for _, a := range in.Payload.Stats.Assets {
		if a.Kind == "" || a.AssetID == "" {
			return nil, malformed("asset reference without kind or id")
		}
		out = append(out, model.AssetRef{MatchID: id, Kind: a.Kind, AssetID: a.AssetID, VersionID: a.VersionID})
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceAssetRefs(ctx, id, out)
	}), nil
}

// roster validates the player rows of the stats section. The owner must be
// among them.
func roster(in Input) ([]model.RawPlayer, error) {
	players := in.Payload.Stats.Players
	if len(players) == 0 {
		return nil, malformed("empty player list")
	}
	seen := make(map[string]bool, len(players))
	self := false
	for _, p := range players {
		if p.PlayerID == "" {
			return nil, malformed("player without id")
		}
		if seen[p.PlayerID] {
			return nil, malformed("duplicate player %s", p.PlayerID)
		}
		seen[p.PlayerID] = true
		if p.PlayerID == in.PlayerID {
			self = true
		}
	}
	if !self {
		return nil, malformed("player %s not in roster", in.PlayerID)
	}
	return players, nil
}

func participants(ctx context.Context, in Input) (Rows, error) {
	players, err := roster(in)
	if err != nil {
		return nil, err
	}
	id := in.Match.MatchID
	out := make([]model.Participant, len(players))
	for i, p := range players {
		out[i] = model.Participant{
			MatchID:  id,
			PlayerID: p.PlayerID,
			Gamertag: p.Gamertag,
			Team:     p.Team,
			IsSelf:   p.PlayerID == in.PlayerID,
		}
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceParticipants(ctx, id, out)
	}), nil
}

// playerStats converts the roster into stats rows. The three participant
// stat categories share this and each writes only its own columns.
func playerStats(in Input) ([]model.ParticipantStats, error) {
	players, err := roster(in)
	if err != nil {
		return nil, err
	}
	out := make([]model.ParticipantStats, len(players))
	for i, p := range players {
		if p.Kills < 0 || p.Deaths < 0 || p.Assists < 0 || p.ShotsFired < 0 || p.ShotsHit < 0 {
			return nil, malformed("implausible stats for player %s", p.PlayerID)
		}
		out[i] = model.ParticipantStats{
			MatchID:       in.Match.MatchID,
			PlayerID:      p.PlayerID,
			PersonalScore: p.PersonalScore,
			Rank:          p.Rank,
			Kills:         p.Kills,
			Deaths:        p.Deaths,
			Assists:       p.Assists,
			ShotsFired:    p.ShotsFired,
			ShotsHit:      p.ShotsHit,
			DamageDealt:   p.DamageDealt,
			DamageTaken:   p.DamageTaken,
		}
	}
	return out, nil
}

func participantScores(ctx context.Context, in Input) (Rows, error) {
	stats, err := playerStats(in)
	if err != nil {
		return nil, err
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.UpsertParticipantScores(ctx, stats)
	}), nil
}

func participantKDA(ctx context.Context, in Input) (Rows, error) {
	stats, err := playerStats(in)
	if err != nil {
		return nil, err
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.UpsertParticipantKDA(ctx, stats)
	}), nil
}

func participantShots(ctx context.Context, in Input) (Rows, error) {
	stats, err := playerStats(in)
	if err != nil {
		return nil, err
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.UpsertParticipantShots(ctx, stats)
	}), nil
}

func shotCounts(ctx context.Context, in Input) (Rows, error) {
	players, err := roster(in)
	if err != nil {
		return nil, err
	}
	var self model.RawPlayer
	for _, p := range players {
		if p.PlayerID == in.PlayerID {
			self = p
		}
	}
	if self.ShotsFired < 0 || self.ShotsHit < 0 || self.ShotsHit > self.ShotsFired {
		return nil, malformed("shots %d/%d", self.ShotsHit, self.ShotsFired)
	}
	id := in.Match.MatchID
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.SetShotCounts(ctx, id, self.ShotsFired, self.ShotsHit)
	}), nil
}

func skillSnapshot(ctx context.Context, in Input) (Rows, error) {
	s := in.Payload.Skill.Self
	if s == nil {
		return nil, malformed("skill section without player entry")
	}
	snap := model.SkillSnapshot{
		MatchID:        in.Match.MatchID,
		PreCSR:         s.PreCSR,
		PostCSR:        s.PostCSR,
		ExpectedKills:  s.ExpectedKills,
		ExpectedDeaths: s.ExpectedDeaths,
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.UpsertSkillSnapshot(ctx, snap)
	}), nil
}

// opposingSkill averages the skill of every team other than the owner's.
// The owner's team comes from the stored roster.
func opposingSkill(ctx context.Context, in Input) (Rows, error) {
	parts, err := in.Store.Participants(ctx, in.Match.MatchID)
	if err != nil {
		return nil, err
	}
	own := ""
	for _, p := range parts {
		if p.IsSelf {
			own = p.Team
		}
	}
	if own == "" {
		return nil, fmt.Errorf("%w: owner team unknown for %s", ErrDependency, in.Match.MatchID)
	}

	type acc struct {
		sum float64
		n   int
	}
	teams := make(map[string]*acc)
	for _, p := range in.Payload.Skill.Players {
		if p.Team == "" || p.Team == own {
			continue
		}
		a, ok := teams[p.Team]
		if !ok {
			a = &acc{}
			teams[p.Team] = a
		}
		a.sum += float64(p.CSR)
		a.n++
	}
	out := make([]model.OpposingSkill, 0, len(teams))
	for team, a := range teams {
		out = append(out, model.OpposingSkill{
			MatchID: in.Match.MatchID,
			Team:    team,
			AvgCSR:  a.sum / float64(a.n),
			Players: a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })

	id := in.Match.MatchID
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceOpposingSkill(ctx, id, out)
	}), nil
}

func eventLog(ctx context.Context, in Input) (Rows, error) {
	id := in.Match.MatchID
	raw := in.Payload.Events.Events
	out := make([]model.Event, len(raw))
	for i, e := range raw {
		kind := model.EventKind(e.Kind)
		if kind != model.EventKill && kind != model.EventDeath {
			return nil, malformed("event %d has kind %q", i, e.Kind)
		}
		if e.PlayerID == "" || e.TimestampMs < 0 {
			return nil, malformed("event %d without player or with negative timestamp", i)
		}
		out[i] = model.Event{MatchID: id, Seq: i, Kind: kind, TimestampMs: e.TimestampMs, PlayerID: e.PlayerID}
	}
	return rowsFunc(func(ctx context.Context, w Writer) (int, error) {
		return w.ReplaceEvents(ctx, id, out)
	}), nil
}
