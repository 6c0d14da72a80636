package statsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-match-sync/internal/cache"
	"github.com/pable/go-match-sync/internal/model"
)

func TestClientFetchSections(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/stats"):
			assert.Equal(t, "me", r.URL.Query().Get("player"))
			json.NewEncoder(w).Encode(model.RawStats{
				Medals:  []model.RawMedal{{MedalID: 7, Count: 2}},
				Players: []model.RawPlayer{{PlayerID: "me", Team: "red", Kills: 10}},
			})
		case strings.HasSuffix(r.URL.Path, "/events"):
			json.NewEncoder(w).Encode(model.RawEventStream{Events: []model.RawEvent{{Kind: "kill", TimestampMs: 10, PlayerID: "me"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	p, err := c.Fetch(context.Background(), "me", "m1", model.SectionStats|model.SectionEvents)
	require.NoError(t, err)
	require.NotNil(t, p.Stats)
	require.NotNil(t, p.Events)
	assert.Nil(t, p.Skill)
	assert.Equal(t, int64(7), p.Stats.Medals[0].MedalID)
	assert.Len(t, p.Events.Events, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientClassifiesStatus(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", time.Second)

	_, err := c.Fetch(context.Background(), "me", "m1", model.SectionStats)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 3*time.Second, he.RetryAfter)

	status = http.StatusNotFound
	_, err = c.Fetch(context.Background(), "me", "m1", model.SectionStats)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.False(t, errors.Is(err, ErrTransient))
}

func TestClientMatchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/players/me/matches", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("count"))
		w.Write([]byte(`{"results":[
			{"match_id":"m2","start_time":"2025-03-01T20:00:00Z","duration_seconds":600,"outcome":"Won"},
			{"match_id":"m1","start_time":"2025-03-01T19:00:00Z","duration_seconds":540,"outcome":"bogus"}
		]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "", time.Second).MatchHistory(context.Background(), "me", 0, 25)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].MatchID)
	assert.Equal(t, model.OutcomeWin, got[0].Outcome)
}

type scriptedFetcher struct {
	calls    int
	errs     []error
	sections []model.Section
}

func (f *scriptedFetcher) Fetch(_ context.Context, _, matchID string, sections model.Section) (*model.RawPayload, error) {
	f.calls++
	f.sections = append(f.sections, sections)
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	p := &model.RawPayload{MatchID: matchID}
	if sections.Has(model.SectionStats) {
		p.Stats = &model.RawStats{Medals: []model.RawMedal{{MedalID: 1, Count: 1}}}
	}
	if sections.Has(model.SectionSkill) {
		p.Skill = &model.RawSkill{Self: &model.RawSelfSkill{PreCSR: 1500}}
	}
	if sections.Has(model.SectionEvents) {
		p.Events = &model.RawEventStream{}
	}
	return p, nil
}

var fastPolicy = RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestRetryingRecoversFromTransient(t *testing.T) {
	inner := &scriptedFetcher{errs: []error{
		&HTTPError{Path: "/x", Status: 503},
		&HTTPError{Path: "/x", Status: 429},
	}}
	r := NewRetrying(inner, nil, fastPolicy, nil)

	p, err := r.Fetch(context.Background(), "me", "m1", model.SectionStats)
	require.NoError(t, err)
	assert.NotNil(t, p.Stats)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingGivesUpAfterBudget(t *testing.T) {
	transient := &HTTPError{Path: "/x", Status: 500}
	inner := &scriptedFetcher{errs: []error{transient, transient, transient, transient}}
	r := NewRetrying(inner, nil, fastPolicy, nil)

	_, err := r.Fetch(context.Background(), "me", "m1", model.SectionStats)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingDoesNotRetryPermanent(t *testing.T) {
	inner := &scriptedFetcher{errs: []error{&HTTPError{Path: "/x", Status: 404}}}
	r := NewRetrying(inner, nil, fastPolicy, nil)

	_, err := r.Fetch(context.Background(), "me", "m1", model.SectionStats)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.Equal(t, 1, inner.calls)
}

func TestCachedFetchesOnlyMissingSections(t *testing.T) {
	ctx := context.Background()
	inner := &scriptedFetcher{}
	c := NewCached(inner, cache.NewMemory(), time.Hour, nil)

	_, err := c.Fetch(ctx, "me", "m1", model.SectionStats)
	require.NoError(t, err)

	p, err := c.Fetch(ctx, "me", "m1", model.SectionStats|model.SectionSkill)
	require.NoError(t, err)
	require.NotNil(t, p.Stats)
	require.NotNil(t, p.Skill)
	assert.Equal(t, 1500, p.Skill.Self.PreCSR)

	require.Equal(t, 2, inner.calls)
	assert.Equal(t, model.SectionSkill, inner.sections[1])

	_, err = c.Fetch(ctx, "me", "m1", model.SectionStats|model.SectionSkill)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
