// Package statsapi is the client for the external match-stats provider and
// the retry and caching layers stacked on top of it.
package statsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pable/go-match-sync/internal/model"
)

// DefaultBaseURL is the provider endpoint used when none is configured.
const DefaultBaseURL = "https://stats.example.net/v1"

// Fetcher returns the requested payload sections of one match as seen by playerID.
type Fetcher interface {
	Fetch(ctx context.Context, playerID, matchID string, sections model.Section) (*model.RawPayload, error)
}

// HistoryLister pages through a player's match history, newest first.
type HistoryLister interface {
	MatchHistory(ctx context.Context, playerID string, start, count int) ([]model.MatchHeader, error)
}

// Client is a minimal JSON client for the stats provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// get performs an authenticated GET request and JSON-decodes the body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %w", path, ErrPermanent, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("GET %s: %w", path, ctx.Err())
		}
		return fmt.Errorf("GET %s: %w: %w", path, ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		he := &HTTPError{Path: path, Status: resp.StatusCode}
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				he.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return he
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("GET %s: %w: %w", path, ErrTransient, err)
		}
		return fmt.Errorf("GET %s: decode: %w: %w", path, ErrPermanent, err)
	}
	return nil
}

type historyItem struct {
	MatchID         string    `json:"match_id"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Outcome         string    `json:"outcome"`
}

// MatchHistory returns up to count matches of playerID starting at offset
// start, newest first. Entries with an unrecognised outcome are skipped.
func (c *Client) MatchHistory(ctx context.Context, playerID string, start, count int) ([]model.MatchHeader, error) {
	var resp struct {
		Results []historyItem `json:"results"`
	}
	path := fmt.Sprintf("/players/%s/matches?start=%d&count=%d", url.PathEscape(playerID), start, count)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]model.MatchHeader, 0, len(resp.Results))
	for _, it := range resp.Results {
		outcome, err := model.ParseOutcome(it.Outcome)
		if err != nil || it.MatchID == "" {
			continue
		}
		out = append(out, model.MatchHeader{
			MatchID:         it.MatchID,
			StartTime:       it.StartTime.UTC(),
			DurationSeconds: it.DurationSeconds,
			Outcome:         outcome,
		})
	}
	return out, nil
}

// Fetch retrieves each requested section with its own request. The first
// failing section fails the whole fetch.
func (c *Client) Fetch(ctx context.Context, playerID, matchID string, sections model.Section) (*model.RawPayload, error) {
	p := &model.RawPayload{MatchID: matchID}
	id := url.PathEscape(matchID)
	player := url.QueryEscape(playerID)

	if sections.Has(model.SectionStats) {
		var s model.RawStats
		if err := c.get(ctx, "/matches/"+id+"/stats?player="+player, &s); err != nil {
			return nil, err
		}
		p.Stats = &s
	}
	if sections.Has(model.SectionSkill) {
		var s model.RawSkill
		if err := c.get(ctx, "/matches/"+id+"/skill?player="+player, &s); err != nil {
			return nil, err
		}
		p.Skill = &s
	}
	if sections.Has(model.SectionEvents) {
		var s model.RawEventStream
		if err := c.get(ctx, "/matches/"+id+"/events", &s); err != nil {
			return nil, err
		}
		p.Events = &s
	}
	return p, nil
}
