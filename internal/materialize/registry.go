package materialize

import (
	"fmt"
	"time"

	"github.com/pable/go-match-sync/internal/aggregator"
	"github.com/pable/go-match-sync/internal/model"
	"github.com/pable/go-match-sync/internal/perfscore"
	"github.com/pable/go-match-sync/internal/session"
)

// Registry holds one materializer per category.
type Registry struct {
	byCat map[model.Category]Materializer
}

// DefaultOptions returns the stock configuration of the computed categories.
func DefaultOptions() Options {
	return Options{
		Session:       session.DefaultConfig(),
		PairTolerance: aggregator.DefaultTolerance,
		Score:         perfscore.DefaultConfig(),
	}
}

// NewRegistry registers every category.
func NewRegistry(opts Options) *Registry {
	r := &Registry{byCat: make(map[model.Category]Materializer)}
	stats, skill, events := model.SectionStats, model.SectionSkill, model.SectionEvents

	r.Register(extractor{fetchBase(model.CategoryMedals, stats), medals})
	r.Register(extractor{fetchBase(model.CategoryScoreAwards, stats), scoreAwards})
	r.Register(extractor{fetchBase(model.CategoryAssetRefs, stats), assetRefs})
	r.Register(extractor{fetchBase(model.CategoryParticipants, stats), participants})
	r.Register(extractor{fetchBase(model.CategoryParticipantScores, stats, model.CategoryParticipants), participantScores})
	r.Register(extractor{fetchBase(model.CategoryParticipantKDA, stats, model.CategoryParticipants), participantKDA})
	r.Register(extractor{fetchBase(model.CategoryParticipantShots, stats, model.CategoryParticipants), participantShots})
	r.Register(extractor{fetchBase(model.CategoryShotCounts, stats), shotCounts})
	r.Register(extractor{fetchBase(model.CategorySkillSnapshot, skill), skillSnapshot})
	r.Register(extractor{fetchBase(model.CategoryOpposingSkill, skill, model.CategoryParticipants), opposingSkill})
	r.Register(extractor{fetchBase(model.CategoryEventLog, events), eventLog})

	r.Register(computer{computeBase(model.CategoryAccuracy, model.CategoryShotCounts), accuracy})
	r.Register(computer{computeBase(model.CategoryEndTime), endTime})
	r.Register(pairsComputer{
		base:      computeBase(model.CategoryKillerVictimPairs, model.CategoryEventLog, model.CategoryParticipants),
		tolerance: opts.PairTolerance,
	})
	r.Register(sessionComputer{
		base: computeBase(model.CategorySessionAssignment, model.CategoryParticipants),
		cfg:  opts.Session,
	})
	r.Register(scoreComputer{
		base: computeBase(model.CategoryPerformanceScore, scoreInputs...),
		cfg:  opts.Score,
	})
	return r
}

// Register adds or replaces the materializer of its category.
func (r *Registry) Register(m Materializer) {
	r.byCat[m.Category()] = m
}

// Get returns the materializer of c, or nil.
func (r *Registry) Get(c model.Category) Materializer {
	return r.byCat[c]
}

// Eligible reports whether category c may be materialized for m at now.
func (r *Registry) Eligible(c model.Category, m *model.Match, now time.Time) bool {
	mat := r.byCat[c]
	return mat != nil && mat.Eligible(m, now)
}

// Plan is a requested category set closed over its prerequisites, in an
// order where every category follows the ones it requires.
type Plan struct {
	Requested model.CategorySet
	Set       model.CategorySet
	Order     []Materializer
}

// Resolve closes requested over prerequisites and orders the result
// topologically. Ties keep category declaration order so runs are
// reproducible.
func (r *Registry) Resolve(requested model.CategorySet) (*Plan, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[model.Category]int)
	p := &Plan{Requested: requested}

	var visit func(c model.Category, path []model.Category) error
	visit = func(c model.Category, path []model.Category) error {
		switch state[c] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("category dependency cycle: %v", append(path, c))
		}
		m := r.byCat[c]
		if m == nil {
			return fmt.Errorf("no materializer for category %s", c)
		}
		state[c] = visiting
		for _, dep := range m.Requires().Slice() {
			if err := visit(dep, append(path, c)); err != nil {
				return err
			}
		}
		state[c] = visited
		p.Set = p.Set.Add(c)
		p.Order = append(p.Order, m)
		return nil
	}
	for _, c := range requested.Slice() {
		if err := visit(c, nil); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Sections returns the payload sections needed to materialize the fetch
// categories of missing.
func (p *Plan) Sections(missing model.CategorySet) model.Section {
	var s model.Section
	for _, m := range p.Order {
		if missing.Has(m.Category()) && m.Strategy() == StrategyFetch {
			s |= m.Sections()
		}
	}
	return s
}
