package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/model"
	"pairScope/internal/storage"
)

var _ storage.EntityStore = (*Store)(nil)

// Store is an in-memory storage.EntityStore. Entities are copied on the way
// in and out, so callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]*model.Token
	pools  map[string]*model.Pool
	pairs  map[string]string
	bundle *model.Bundle
	pos    *model.ReplayPosition
}

func NewStore() *Store {
	return &Store{
		tokens: make(map[string]*model.Token),
		pools:  make(map[string]*model.Pool),
		pairs:  make(map[string]string),
	}
}

func (s *Store) Token(_ context.Context, id string) (*model.Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (s *Store) Pool(_ context.Context, id string) (*model.Pool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (s *Store) Bundle(_ context.Context) (*model.Bundle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.bundle == nil {
		return nil, false, nil
	}
	return s.bundle.Clone(), true, nil
}

// ResolvePool looks up a known pool by token pair and curve kind.
func (s *Store) ResolvePool(_ context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pairs[storage.PairKey(model.AddressKey(tokenA), model.AddressKey(tokenB), stable)]
	if !ok {
		return common.Address{}, false, nil
	}
	return common.HexToAddress(id), true, nil
}

// Apply writes all changes under one lock.
func (s *Store) Apply(_ context.Context, changes storage.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range changes.Tokens {
		s.tokens[token.ID] = token.Clone()
	}
	for _, pool := range changes.Pools {
		s.pools[pool.ID] = pool.Clone()
		s.pairs[storage.PairKey(pool.Token0, pool.Token1, pool.Stable)] = pool.ID
	}
	if changes.Bundle != nil {
		s.bundle = changes.Bundle.Clone()
	}
	if changes.Position != nil {
		pos := *changes.Position
		s.pos = &pos
	}
	return nil
}

func (s *Store) Position(_ context.Context) (model.ReplayPosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pos == nil {
		return model.ReplayPosition{}, false, nil
	}
	return *s.pos, true, nil
}

// Snapshot returns copies of every entity ordered by id.
func (s *Store) Snapshot(_ context.Context) (storage.Changes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := storage.Changes{
		Tokens: make([]*model.Token, 0, len(s.tokens)),
		Pools:  make([]*model.Pool, 0, len(s.pools)),
	}
	for _, token := range s.tokens {
		changes.Tokens = append(changes.Tokens, token.Clone())
	}
	for _, pool := range s.pools {
		changes.Pools = append(changes.Pools, pool.Clone())
	}
	if s.bundle != nil {
		changes.Bundle = s.bundle.Clone()
	}
	if s.pos != nil {
		pos := *s.pos
		changes.Position = &pos
	}
	sort.Slice(changes.Tokens, func(i, j int) bool { return changes.Tokens[i].ID < changes.Tokens[j].ID })
	sort.Slice(changes.Pools, func(i, j int) bool { return changes.Pools[i].ID < changes.Pools[j].ID })
	return changes, nil
}
