package storage

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/model"
)

// Tx buffers the reads and writes of one event on top of an EntityStore.
// An entity loaded through the Tx is cached, so every caller in the same
// event sees one instance and its in-place updates. Only entities marked
// with Put* are written on Commit; dropping a Tx discards everything.
type Tx struct {
	base   EntityStore
	tokens map[string]*model.Token
	pools  map[string]*model.Pool
	bundle *model.Bundle

	dirtyTokens map[string]struct{}
	dirtyPools  map[string]struct{}
	dirtyBundle bool
}

func NewTx(base EntityStore) *Tx {
	t := &Tx{base: base}
	t.reset()
	return t
}

func (t *Tx) reset() {
	t.tokens = make(map[string]*model.Token)
	t.pools = make(map[string]*model.Pool)
	t.bundle = nil
	t.dirtyTokens = make(map[string]struct{})
	t.dirtyPools = make(map[string]struct{})
	t.dirtyBundle = false
}

// Token returns the cached token or loads it from the base store.
func (t *Tx) Token(ctx context.Context, id string) (*model.Token, bool, error) {
	if token, ok := t.tokens[id]; ok {
		return token, true, nil
	}
	token, ok, err := t.base.Token(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	t.tokens[id] = token
	return token, true, nil
}

// Pool returns the cached pool or loads it from the base store.
func (t *Tx) Pool(ctx context.Context, id string) (*model.Pool, bool, error) {
	if pool, ok := t.pools[id]; ok {
		return pool, true, nil
	}
	pool, ok, err := t.base.Pool(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	t.pools[id] = pool
	return pool, true, nil
}

// Bundle returns the cached bundle or loads it from the base store.
func (t *Tx) Bundle(ctx context.Context) (*model.Bundle, bool, error) {
	if t.bundle != nil {
		return t.bundle, true, nil
	}
	bundle, ok, err := t.base.Bundle(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	t.bundle = bundle
	return bundle, true, nil
}

// ResolvePool checks pools created in this transaction before the base index.
func (t *Tx) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	key := PairKey(model.AddressKey(tokenA), model.AddressKey(tokenB), stable)
	for id := range t.dirtyPools {
		pool := t.pools[id]
		if PairKey(pool.Token0, pool.Token1, pool.Stable) == key {
			return common.HexToAddress(pool.ID), true, nil
		}
	}
	return t.base.ResolvePool(ctx, tokenA, tokenB, stable)
}

func (t *Tx) PutToken(token *model.Token) {
	t.tokens[token.ID] = token
	t.dirtyTokens[token.ID] = struct{}{}
}

func (t *Tx) PutPool(pool *model.Pool) {
	t.pools[pool.ID] = pool
	t.dirtyPools[pool.ID] = struct{}{}
}

func (t *Tx) PutBundle(bundle *model.Bundle) {
	t.bundle = bundle
	t.dirtyBundle = true
}

// Changes returns the pending writes ordered by id.
func (t *Tx) Changes() Changes {
	var changes Changes
	for id := range t.dirtyTokens {
		changes.Tokens = append(changes.Tokens, t.tokens[id])
	}
	for id := range t.dirtyPools {
		changes.Pools = append(changes.Pools, t.pools[id])
	}
	if t.dirtyBundle {
		changes.Bundle = t.bundle
	}
	sortChanges(&changes)
	return changes
}

// Commit applies the pending writes to the base store and resets the Tx.
func (t *Tx) Commit(ctx context.Context) error {
	changes := t.Changes()
	if !changes.Empty() {
		if err := t.base.Apply(ctx, changes); err != nil {
			return fmt.Errorf("apply changes: %w", err)
		}
	}
	t.reset()
	return nil
}

// Rollback drops every cached and pending entity.
func (t *Tx) Rollback() {
	t.reset()
}
