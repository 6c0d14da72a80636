package statsapi

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pable/go-match-sync/internal/logging"
	"github.com/pable/go-match-sync/internal/model"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// DefaultRetryPolicy is four attempts spaced 500ms, 1s, 2s apart (plus jitter).
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Retrying retries transient failures of the wrapped fetcher and lister.
// Permanent failures are returned after the first attempt.
type Retrying struct {
	fetch   Fetcher
	history HistoryLister
	policy  RetryPolicy
	log     *logging.Logger
}

// NewRetrying wraps f (and h, which may be nil) with policy.
func NewRetrying(f Fetcher, h HistoryLister, policy RetryPolicy, log *logging.Logger) *Retrying {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Retrying{fetch: f, history: h, policy: policy, log: log}
}

func (r *Retrying) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	return b
}

func retry[T any](ctx context.Context, r *Retrying, what string, op func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	v, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(r.policy.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Debug("retrying provider call", "what", what, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		if IsTransient(err) {
			return v, fmt.Errorf("%s: gave up after %d attempts: %w", what, attempt, err)
		}
		return v, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

func (r *Retrying) Fetch(ctx context.Context, playerID, matchID string, sections model.Section) (*model.RawPayload, error) {
	return retry(ctx, r, "fetch "+matchID, func() (*model.RawPayload, error) {
		return r.fetch.Fetch(ctx, playerID, matchID, sections)
	})
}

func (r *Retrying) MatchHistory(ctx context.Context, playerID string, start, count int) ([]model.MatchHeader, error) {
	if r.history == nil {
		return nil, fmt.Errorf("match history: %w: no lister configured", ErrPermanent)
	}
	return retry(ctx, r, fmt.Sprintf("history %s@%d", playerID, start), func() ([]model.MatchHeader, error) {
		return r.history.MatchHistory(ctx, playerID, start, count)
	})
}
