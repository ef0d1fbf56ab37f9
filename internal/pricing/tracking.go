package pricing

import (
	"github.com/shopspring/decimal"

	"pairScope/internal/model"
)

var two = decimal.NewFromInt(2)

// TrackedVolumeUSD returns the USD value of a trade that counts toward
// aggregate volume. Untracked pools always yield zero; with both tokens
// whitelisted the two legs are averaged, with one only that leg counts.
func (p *Pricer) TrackedVolumeUSD(bundle *model.Bundle, amount0 decimal.Decimal, token0 *model.Token, amount1 decimal.Decimal, token1 *model.Token, pool *model.Pool) decimal.Decimal {
	if pool != nil && p.rules.IsUntracked(pool.ID) {
		return decimal.Zero
	}
	leg0, leg1, white0, white1 := p.legsUSD(bundle, amount0, token0, amount1, token1)

	switch {
	case white0 && white1:
		return leg0.Add(leg1).Div(two)
	case white0:
		return leg0
	case white1:
		return leg1
	default:
		return decimal.Zero
	}
}

// TrackedLiquidityUSD returns the USD value of pool reserves that counts
// toward aggregate liquidity. A single whitelisted leg is taken as half
// of the pool.
func (p *Pricer) TrackedLiquidityUSD(bundle *model.Bundle, amount0 decimal.Decimal, token0 *model.Token, amount1 decimal.Decimal, token1 *model.Token) decimal.Decimal {
	leg0, leg1, white0, white1 := p.legsUSD(bundle, amount0, token0, amount1, token1)

	switch {
	case white0 && white1:
		return leg0.Add(leg1)
	case white0:
		return leg0.Mul(two)
	case white1:
		return leg1.Mul(two)
	default:
		return decimal.Zero
	}
}

// UntrackedVolumeUSD values both legs at derived prices regardless of the
// whitelist and averages them.
func (p *Pricer) UntrackedVolumeUSD(bundle *model.Bundle, amount0 decimal.Decimal, token0 *model.Token, amount1 decimal.Decimal, token1 *model.Token) decimal.Decimal {
	leg0, leg1, _, _ := p.legsUSD(bundle, amount0, token0, amount1, token1)
	return leg0.Add(leg1).Div(two)
}

func (p *Pricer) legsUSD(bundle *model.Bundle, amount0 decimal.Decimal, token0 *model.Token, amount1 decimal.Decimal, token1 *model.Token) (decimal.Decimal, decimal.Decimal, bool, bool) {
	basePrice := decimal.Zero
	if bundle != nil {
		basePrice = bundle.BasePriceUSD
	}
	var leg0, leg1 decimal.Decimal
	var white0, white1 bool
	if token0 != nil {
		leg0 = amount0.Mul(token0.DerivedBase.Mul(basePrice))
		white0 = p.rules.IsWhitelisted(token0.ID)
	}
	if token1 != nil {
		leg1 = amount1.Mul(token1.DerivedBase.Mul(basePrice))
		white1 = p.rules.IsWhitelisted(token1.ID)
	}
	return leg0, leg1, white0, white1
}
