package cache

import (
	"context"
	"errors"

	"github.com/Skotchmaster/storefront/internal/basket"
)

var ErrCacheMiss = errors.New("cache miss")

type BasketCache interface {
	Get(ctx context.Context, owner string) (basket.Basket, error)
	Set(ctx context.Context, owner string, b basket.Basket) error
	Delete(ctx context.Context, owner string) error
}
