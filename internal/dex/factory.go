package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/chain"
	"pairScope/internal/model"
	"pairScope/internal/pricing"
	"pairScope/internal/storage"
)

// FactoryResolver resolves pairs with the factory's getPair(tokenA, tokenB,
// stable). Lookups run at a block so a replay never sees a pair before it
// was created. A found pair is cached with the earliest block it was seen
// at and only serves lookups at or after that block; misses are not cached.
type FactoryResolver struct {
	caller     chain.Caller
	factory    common.Address
	factoryABI abi.ABI

	mu    sync.RWMutex
	cache map[string]seenPair
}

type seenPair struct {
	pair  common.Address
	block uint64
}

func NewFactoryResolver(caller chain.Caller, factory common.Address) (*FactoryResolver, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if factory == (common.Address{}) {
		return nil, fmt.Errorf("factory address is required")
	}
	parsed, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	return &FactoryResolver{
		caller:     caller,
		factory:    factory,
		factoryABI: parsed,
		cache:      make(map[string]seenPair),
	}, nil
}

// ResolvePool implements pricing.PoolResolver against the latest block.
// Results are not cached since the block is unknown.
func (r *FactoryResolver) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	return r.getPair(ctx, nil, tokenA, tokenB, stable)
}

// AtBlock returns a resolver pinned to block.
func (r *FactoryResolver) AtBlock(block uint64) pricing.PoolResolver {
	return blockResolver{factory: r, block: block}
}

// ResolvePoolAt looks the pair up as of block.
func (r *FactoryResolver) ResolvePoolAt(ctx context.Context, block uint64, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	key := storage.PairKey(model.AddressKey(tokenA), model.AddressKey(tokenB), stable)

	r.mu.RLock()
	seen, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && block >= seen.block {
		return seen.pair, true, nil
	}

	pair, found, err := r.getPair(ctx, new(big.Int).SetUint64(block), tokenA, tokenB, stable)
	if err != nil || !found {
		return common.Address{}, false, err
	}

	r.mu.Lock()
	if prev, ok := r.cache[key]; !ok || block < prev.block {
		r.cache[key] = seenPair{pair: pair, block: block}
	}
	r.mu.Unlock()
	return pair, true, nil
}

func (r *FactoryResolver) getPair(ctx context.Context, block *big.Int, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	values, err := callMethodAt(ctx, r.caller, r.factory, r.factoryABI, block, "getPair", tokenA, tokenB, stable)
	if err != nil {
		return common.Address{}, false, err
	}
	pair, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, false, fmt.Errorf("getPair: %w", err)
	}
	if pair == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return pair, true, nil
}

type blockResolver struct {
	factory *FactoryResolver
	block   uint64
}

func (b blockResolver) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	return b.factory.ResolvePoolAt(ctx, b.block, tokenA, tokenB, stable)
}
