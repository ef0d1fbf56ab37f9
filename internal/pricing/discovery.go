package pricing

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairScope/internal/model"
)

var one = decimal.NewFromInt(1)

// BaseAssetPerToken returns the token price in base-asset units from the
// first whitelisted counter token with a qualifying pool. Whitelist order
// wins over liquidity. Zero means no pool qualified.
func (p *Pricer) BaseAssetPerToken(ctx context.Context, token *model.Token) (decimal.Decimal, error) {
	if token == nil {
		return decimal.Zero, fmt.Errorf("token is nil")
	}
	id, err := model.ParseAddressKey(token.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: token %q", ErrInvalidAddress, token.ID)
	}
	if id == p.rules.base {
		return one, nil
	}
	if p.resolver == nil {
		return decimal.Zero, fmt.Errorf("pool resolver is nil")
	}

	addr := common.HexToAddress(id)
	for _, candidate := range p.rules.whitelist {
		if candidate == addr {
			continue
		}
		for _, kind := range p.rules.kinds {
			price, ok, err := p.priceVia(ctx, id, addr, candidate, kind)
			if err != nil {
				return decimal.Zero, err
			}
			if ok {
				return price, nil
			}
		}
	}

	p.logger.Debug("token unpriced", zap.String("token", id))
	return decimal.Zero, nil
}

func (p *Pricer) priceVia(ctx context.Context, id string, addr, candidate common.Address, kind PoolKind) (decimal.Decimal, bool, error) {
	poolAddr, ok, err := p.resolver.ResolvePool(ctx, addr, candidate, kind.Stable)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("resolve %s pool %s/%s: %w", kind.Name, id, model.AddressKey(candidate), err)
	}
	if !ok || poolAddr == (common.Address{}) {
		return decimal.Zero, false, nil
	}

	poolID := model.AddressKey(poolAddr)
	pool, found, err := p.store.Pool(ctx, poolID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load pool %s: %w", poolID, err)
	}
	if !found {
		return decimal.Zero, false, fmt.Errorf("%w: pool %s", ErrNotFound, poolID)
	}

	// the resolver may be stale or point at another pair
	if !pool.Has(id) || !pool.Has(model.AddressKey(candidate)) {
		p.logger.Debug("resolved pool holds another pair", zap.String("pool", poolID), zap.String("token", id), zap.String("candidate", model.AddressKey(candidate)))
		return decimal.Zero, false, nil
	}

	counterID, ratio, ownReserve := pool.Token1, pool.Token1Price, pool.Reserve0
	if id == pool.Token1 {
		counterID, ratio, ownReserve = pool.Token0, pool.Token0Price, pool.Reserve1
	}

	if !pool.ReserveBase.GreaterThan(kind.MinLiquidity) {
		return decimal.Zero, false, nil
	}
	if kind.ApplyRatio && ownReserve.IsZero() {
		return decimal.Zero, false, nil
	}

	counter, found, err := p.store.Token(ctx, counterID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load token %s: %w", counterID, err)
	}
	if !found {
		return decimal.Zero, false, fmt.Errorf("%w: token %s", ErrNotFound, counterID)
	}

	price := counter.DerivedBase
	if kind.ApplyRatio {
		price = price.Mul(ratio)
	}
	p.logger.Debug("token priced",
		zap.String("token", id),
		zap.String("pool", poolID),
		zap.String("kind", kind.Name),
		zap.String("price", price.String()),
	)
	return price, true, nil
}
