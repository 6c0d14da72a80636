package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    string `json:"id"`
	Kills []int  `json:"kills"`
}

func TestJSONRoundTripThroughMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	in := sample{ID: "m1", Kills: []int{1, 2, 3}}
	require.NoError(t, PutJSON(ctx, m, "k", in, time.Minute))

	var out sample
	require.NoError(t, GetJSON(ctx, m, "k", &out))
	assert.Equal(t, in, out)
}

func TestMemoryMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	_, err := m.Get(ctx, "absent")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, m.Len())
}

func TestGetJSONRejectsUncompressedBlob(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", []byte(`{"id":"m1"}`), 0))

	var out sample
	err := GetJSON(ctx, m, "k", &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}
