// Package cache stores raw provider payloads so a rolled-back batch can be
// replayed without hitting the stats service again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value cache with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

var (
	encOnce  sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	codecErr error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	encOnce.Do(func() {
		enc, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		dec, codecErr = zstd.NewReader(nil)
	})
	return enc, dec, codecErr
}

// PutJSON marshals v, compresses it with zstd and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	e, _, err := codec()
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	return s.Set(ctx, key, e.EncodeAll(raw, nil), ttl)
}

// GetJSON loads key into v. It returns ErrMiss when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	blob, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	_, d, err := codec()
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	raw, err := d.DecodeAll(blob, nil)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
