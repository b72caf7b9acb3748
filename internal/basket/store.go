package basket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Persister is the durable storage behind the Store. Load returns an empty
// Basket when nothing was saved for owner.
type Persister interface {
	Load(ctx context.Context, owner string) (Basket, error)
	Save(ctx context.Context, owner string, b Basket) error
}

// Store owns one basket per owner. Transitions for the same owner run one at a
// time; a snapshot becomes visible only after it was persisted.
type Store struct {
	persister Persister

	mu      sync.Mutex
	baskets map[string]Basket
	locks   map[string]*sync.Mutex

	group singleflight.Group
}

func NewStore(p Persister) *Store {
	return &Store{
		persister: p,
		baskets:   make(map[string]Basket),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) Get(ctx context.Context, owner string) (Basket, error) {
	return s.snapshot(ctx, owner)
}

// Apply runs t against the owner's current basket and commits the result. When
// t fails the current basket is returned with the error and nothing is saved.
func (s *Store) Apply(ctx context.Context, owner string, t Transition) (Basket, error) {
	l := s.lockFor(owner)
	l.Lock()
	defer l.Unlock()

	cur, err := s.snapshot(ctx, owner)
	if err != nil {
		return Basket{}, err
	}

	next, err := t(cur)
	if err != nil {
		return cur, err
	}

	if err := s.persister.Save(ctx, owner, next); err != nil {
		return cur, fmt.Errorf("persist basket: %w", err)
	}

	s.mu.Lock()
	s.baskets[owner] = next
	s.mu.Unlock()
	return next, nil
}

func (s *Store) AddOrIncrement(ctx context.Context, owner string, p Product) (Basket, error) {
	return s.Apply(ctx, owner, AddOrIncrement(p))
}

func (s *Store) Decrement(ctx context.Context, owner string, productID int64) (Basket, error) {
	return s.Apply(ctx, owner, Decrement(productID))
}

func (s *Store) Remove(ctx context.Context, owner string, productID int64) (Basket, error) {
	return s.Apply(ctx, owner, Remove(productID))
}

func (s *Store) Clear(ctx context.Context, owner string) (Basket, error) {
	return s.Apply(ctx, owner, Clear())
}

func (s *Store) RemoveCompleted(ctx context.Context, owner string, ordered []int64) (Basket, error) {
	return s.Apply(ctx, owner, RemoveCompleted(ordered))
}

// Forget drops the in-memory snapshot; the next access hydrates it again.
func (s *Store) Forget(owner string) {
	s.mu.Lock()
	delete(s.baskets, owner)
	s.mu.Unlock()
}

func (s *Store) lockFor(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.locks[owner] = l
	}
	return l
}

func (s *Store) snapshot(ctx context.Context, owner string) (Basket, error) {
	if owner == "" {
		return Basket{}, errors.New("basket owner is empty")
	}

	s.mu.Lock()
	b, ok := s.baskets[owner]
	s.mu.Unlock()
	if ok {
		return b, nil
	}

	v, err, _ := s.group.Do(owner, func() (any, error) {
		return s.persister.Load(ctx, owner)
	})
	if err != nil {
		return Basket{}, fmt.Errorf("hydrate basket: %w", err)
	}
	loaded := v.(Basket)

	s.mu.Lock()
	defer s.mu.Unlock()
	// a commit that landed while we were loading wins over the stale read
	if cur, ok := s.baskets[owner]; ok {
		return cur, nil
	}
	s.baskets[owner] = loaded
	return loaded, nil
}

// MemoryPersister keeps snapshots in process memory. It backs tests and local
// runs without a database.
type MemoryPersister struct {
	mu    sync.Mutex
	saved map[string]Basket
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{saved: make(map[string]Basket)}
}

func (m *MemoryPersister) Load(_ context.Context, owner string) (Basket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[owner], nil
}

func (m *MemoryPersister) Save(_ context.Context, owner string, b Basket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[owner] = b
	return nil
}
