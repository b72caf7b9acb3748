package cache

import (
	"context"
	"errors"

	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/logging"
)

type Snapshots interface {
	LoadBasket(ctx context.Context, owner string) (basket.Basket, error)
	SaveBasket(ctx context.Context, owner string, b basket.Basket) error
}

// LayeredPersister writes through to the database and keeps Redis warm.
// Cache failures are logged and never fail a transition.
type LayeredPersister struct {
	db    Snapshots
	cache BasketCache
}

// NewLayeredPersister accepts a nil cache, in which case every call goes to db.
func NewLayeredPersister(db Snapshots, cache BasketCache) *LayeredPersister {
	return &LayeredPersister{db: db, cache: cache}
}

func (p *LayeredPersister) Load(ctx context.Context, owner string) (basket.Basket, error) {
	l := logging.FromContext(ctx).With("component", "basket.persister", "owner", owner)

	if p.cache != nil {
		b, err := p.cache.Get(ctx, owner)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l.Warn("basket_cache_get_error", "error", err)
		}
	}

	b, err := p.db.LoadBasket(ctx, owner)
	if err != nil {
		return basket.Basket{}, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, owner, b); err != nil {
			l.Warn("basket_cache_set_error", "error", err)
		}
	}
	return b, nil
}

func (p *LayeredPersister) Save(ctx context.Context, owner string, b basket.Basket) error {
	if err := p.db.SaveBasket(ctx, owner, b); err != nil {
		return err
	}
	if p.cache == nil {
		return nil
	}

	if err := p.cache.Set(ctx, owner, b); err != nil {
		l := logging.FromContext(ctx).With("component", "basket.persister", "owner", owner)
		l.Warn("basket_cache_set_error", "error", err)
		// a stale entry would shadow the saved snapshot
		if delErr := p.cache.Delete(ctx, owner); delErr != nil {
			l.Error("basket_cache_invalidate_error", "error", delErr)
		}
	}
	return nil
}
