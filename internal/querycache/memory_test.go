package querycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

func TestMemoryGetAfterPut(t *testing.T) {
	cache := NewMemory(time.Hour)
	ctx := context.Background()

	stored := []searchpool.Result{{Title: "Pizzeria Roma", URL: "https://www.lieferando.de/speisekarte/roma"}}
	require.NoError(t, cache.Put(ctx, model.PlatformTakeaway, "DE", "pizza berlin", stored))

	got, hit, err := cache.Get(ctx, model.PlatformTakeaway, "DE", "pizza berlin")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, stored, got)
}

func TestMemoryMissOnDifferentKey(t *testing.T) {
	cache := NewMemory(time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, model.PlatformTakeaway, "DE", "pizza", nil))

	_, hit, err := cache.Get(ctx, model.PlatformTakeaway, "AT", "pizza")
	require.NoError(t, err)
	assert.False(t, hit, "country is part of the key")

	_, hit, err = cache.Get(ctx, model.PlatformUberEats, "DE", "pizza")
	require.NoError(t, err)
	assert.False(t, hit, "platform is part of the key")
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemory(24 * time.Hour).WithNow(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, model.PlatformTakeaway, "DE", "pizza", []searchpool.Result{{URL: "x"}}))

	now = now.Add(23 * time.Hour)
	_, hit, err := cache.Get(ctx, model.PlatformTakeaway, "DE", "pizza")
	require.NoError(t, err)
	assert.True(t, hit, "within TTL")

	now = now.Add(2 * time.Hour)
	_, hit, err = cache.Get(ctx, model.PlatformTakeaway, "DE", "pizza")
	require.NoError(t, err)
	assert.False(t, hit, "past TTL")
}

func TestKeyNormalization(t *testing.T) {
	a := Key(model.PlatformTakeaway, "DE", "  Pizza Berlin ")
	b := Key(model.PlatformTakeaway, "de", "pizza berlin")
	assert.Equal(t, a, b, "case and whitespace must not split the key")

	c := Key(model.PlatformTakeaway, "DE", "pizza hamburg")
	assert.NotEqual(t, a, c)
}
