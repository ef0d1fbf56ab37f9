package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairScope/internal/model"
)

type anchorQuote struct {
	price     decimal.Decimal
	liquidity decimal.Decimal
}

// BaseAssetUSDPrice computes the liquidity-weighted USD price of the base
// asset from the first anchor tier whose pools all exist. Zero means no
// tier is available yet.
func (p *Pricer) BaseAssetUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	present := make(map[string]*model.Pool, len(p.rules.references))
	for _, ref := range p.rules.references {
		pool, ok, err := p.store.Pool(ctx, ref.Address)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load reference pool %s: %w", ref.Address, err)
		}
		if ok {
			present[ref.Address] = pool
		}
	}

	for i, tier := range p.rules.tiers {
		price, ok := tierPrice(tier, present)
		if !ok {
			continue
		}
		p.logger.Debug("anchor tier selected", zap.Int("tier", i), zap.Int("pools", len(tier)), zap.String("price", price.String()))
		return price, nil
	}
	return decimal.Zero, nil
}

func tierPrice(tier []ReferencePool, present map[string]*model.Pool) (decimal.Decimal, bool) {
	quotes := make([]anchorQuote, 0, len(tier))
	for _, ref := range tier {
		pool, ok := present[ref.Address]
		if !ok {
			return decimal.Zero, false
		}
		quotes = append(quotes, quoteFor(ref, pool))
	}
	if len(quotes) == 1 {
		return quotes[0].price, true
	}

	weights, ok := anchorWeights(quotes)
	if !ok {
		return decimal.Zero, false
	}
	price := decimal.Zero
	for i, q := range quotes {
		price = price.Add(q.price.Mul(weights[i]))
	}
	return price, true
}

// quoteFor reads the stablecoin-per-base price and the base-side reserve.
func quoteFor(ref ReferencePool, pool *model.Pool) anchorQuote {
	if ref.BaseSide == BaseToken1 {
		return anchorQuote{price: pool.Token0Price, liquidity: pool.Reserve1}
	}
	return anchorQuote{price: pool.Token1Price, liquidity: pool.Reserve0}
}

// anchorWeights returns each quote's share of the total base-side liquidity.
// ok is false when the total is zero.
func anchorWeights(quotes []anchorQuote) ([]decimal.Decimal, bool) {
	total := decimal.Zero
	for _, q := range quotes {
		total = total.Add(q.liquidity)
	}
	if total.IsZero() {
		return nil, false
	}
	weights := make([]decimal.Decimal, len(quotes))
	for i, q := range quotes {
		weights[i] = q.liquidity.DivRound(total, model.PriceScale)
	}
	return weights, true
}
