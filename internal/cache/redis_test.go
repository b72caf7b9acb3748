package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/basket"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func sampleBasket() basket.Basket {
	return basket.New(
		basket.CartLine{ProductID: 1, UnitPrice: decimal.NewFromInt(10), QuantityAvailable: 5, Quantity: 2},
		basket.CartLine{ProductID: 2, UnitPrice: decimal.NewFromInt(5), QuantityAvailable: 5, Quantity: 3},
	)
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "u1", sampleBasket()))
	assert.True(t, mr.Exists("basket:u1"))
	assert.Positive(t, mr.TTL("basket:u1"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(35).Equal(got.Total()))

	require.NoError(t, c.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("basket:u1"))
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("basket:u1", "{not json"))

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

type fakeSnapshots struct {
	saved   map[string]basket.Basket
	loads   int
	saveErr error
}

func (f *fakeSnapshots) LoadBasket(_ context.Context, owner string) (basket.Basket, error) {
	f.loads++
	return f.saved[owner], nil
}

func (f *fakeSnapshots) SaveBasket(_ context.Context, owner string, b basket.Basket) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[owner] = b
	return nil
}

func TestLayeredPersister_ReadThroughAndWriteThrough(t *testing.T) {
	c, mr := setupTestRedis(t)
	snaps := &fakeSnapshots{saved: map[string]basket.Basket{"u1": sampleBasket()}}
	p := NewLayeredPersister(snaps, c)
	ctx := context.Background()

	b, err := p.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, snaps.loads)
	assert.True(t, mr.Exists("basket:u1"))

	_, err = p.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snaps.loads)

	require.NoError(t, p.Save(ctx, "u1", b.Clear()))
	assert.True(t, snaps.saved["u1"].IsEmpty())
	cached, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cached.IsEmpty())
}

func TestLayeredPersister_DatabaseErrorWins(t *testing.T) {
	c, mr := setupTestRedis(t)
	snaps := &fakeSnapshots{saved: map[string]basket.Basket{}, saveErr: errors.New("db down")}
	p := NewLayeredPersister(snaps, c)

	err := p.Save(context.Background(), "u1", sampleBasket())
	require.Error(t, err)
	assert.False(t, mr.Exists("basket:u1"))
}

func TestLayeredPersister_CacheDownFallsBackToDatabase(t *testing.T) {
	c, mr := setupTestRedis(t)
	snaps := &fakeSnapshots{saved: map[string]basket.Basket{"u1": sampleBasket()}}
	p := NewLayeredPersister(snaps, c)
	mr.Close()

	b, err := p.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	require.NoError(t, p.Save(context.Background(), "u1", b.Clear()))
	assert.True(t, snaps.saved["u1"].IsEmpty())
}

func TestLayeredPersister_WithoutCache(t *testing.T) {
	snaps := &fakeSnapshots{saved: map[string]basket.Basket{}}
	p := NewLayeredPersister(snaps, nil)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "u1", sampleBasket()))
	b, err := p.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
}
