package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/model"
)

var _ EntityStore = (*Overlay)(nil)

// Overlay holds committed event writes in memory until Flush hands them to
// the base store together with the replay position they reach. A run that
// aborts between flushes leaves the base store at the previous position.
type Overlay struct {
	base   EntityStore
	tokens map[string]*model.Token
	pools  map[string]*model.Pool
	pairs  map[string]string
	bundle *model.Bundle
}

func NewOverlay(base EntityStore) *Overlay {
	o := &Overlay{base: base}
	o.reset()
	return o
}

func (o *Overlay) reset() {
	o.tokens = make(map[string]*model.Token)
	o.pools = make(map[string]*model.Pool)
	o.pairs = make(map[string]string)
	o.bundle = nil
}

func (o *Overlay) Token(ctx context.Context, id string) (*model.Token, bool, error) {
	if token, ok := o.tokens[id]; ok {
		return token.Clone(), true, nil
	}
	return o.base.Token(ctx, id)
}

func (o *Overlay) Pool(ctx context.Context, id string) (*model.Pool, bool, error) {
	if pool, ok := o.pools[id]; ok {
		return pool.Clone(), true, nil
	}
	return o.base.Pool(ctx, id)
}

func (o *Overlay) Bundle(ctx context.Context) (*model.Bundle, bool, error) {
	if o.bundle != nil {
		return o.bundle.Clone(), true, nil
	}
	return o.base.Bundle(ctx)
}

func (o *Overlay) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	if id, ok := o.pairs[PairKey(model.AddressKey(tokenA), model.AddressKey(tokenB), stable)]; ok {
		return common.HexToAddress(id), true, nil
	}
	return o.base.ResolvePool(ctx, tokenA, tokenB, stable)
}

// Apply buffers changes. A position in changes is ignored; Flush sets it.
func (o *Overlay) Apply(_ context.Context, changes Changes) error {
	for _, token := range changes.Tokens {
		o.tokens[token.ID] = token.Clone()
	}
	for _, pool := range changes.Pools {
		o.pools[pool.ID] = pool.Clone()
		o.pairs[PairKey(pool.Token0, pool.Token1, pool.Stable)] = pool.ID
	}
	if changes.Bundle != nil {
		o.bundle = changes.Bundle.Clone()
	}
	return nil
}

// Snapshot returns the base entities with buffered writes laid over them.
func (o *Overlay) Snapshot(ctx context.Context) (Changes, error) {
	snap, err := o.base.Snapshot(ctx)
	if err != nil {
		return Changes{}, err
	}
	pending := o.Changes()

	tokens := make(map[string]*model.Token, len(snap.Tokens)+len(pending.Tokens))
	for _, token := range append(snap.Tokens, pending.Tokens...) {
		tokens[token.ID] = token
	}
	pools := make(map[string]*model.Pool, len(snap.Pools)+len(pending.Pools))
	for _, pool := range append(snap.Pools, pending.Pools...) {
		pools[pool.ID] = pool
	}

	out := Changes{Bundle: snap.Bundle, Position: snap.Position}
	if pending.Bundle != nil {
		out.Bundle = pending.Bundle
	}
	for _, token := range tokens {
		out.Tokens = append(out.Tokens, token)
	}
	for _, pool := range pools {
		out.Pools = append(out.Pools, pool)
	}
	sortChanges(&out)
	return out, nil
}

// Position returns the base store's position; buffered writes have none.
func (o *Overlay) Position(ctx context.Context) (model.ReplayPosition, bool, error) {
	return o.base.Position(ctx)
}

// Changes returns copies of the buffered writes ordered by id.
func (o *Overlay) Changes() Changes {
	var changes Changes
	for _, token := range o.tokens {
		changes.Tokens = append(changes.Tokens, token.Clone())
	}
	for _, pool := range o.pools {
		changes.Pools = append(changes.Pools, pool.Clone())
	}
	if o.bundle != nil {
		changes.Bundle = o.bundle.Clone()
	}
	sortChanges(&changes)
	return changes
}

// Flush writes the buffered entities and pos to the base store in one Apply
// and clears the buffer. On error the buffer is kept.
func (o *Overlay) Flush(ctx context.Context, pos model.ReplayPosition) error {
	changes := o.Changes()
	changes.Position = &pos
	if err := o.base.Apply(ctx, changes); err != nil {
		return fmt.Errorf("flush entities: %w", err)
	}
	o.reset()
	return nil
}

func sortChanges(changes *Changes) {
	sort.Slice(changes.Tokens, func(i, j int) bool { return changes.Tokens[i].ID < changes.Tokens[j].ID })
	sort.Slice(changes.Pools, func(i, j int) bool { return changes.Pools[i].ID < changes.Pools[j].ID })
}
