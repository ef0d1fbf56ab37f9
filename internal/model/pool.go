package model

import "github.com/shopspring/decimal"

// PriceScale is the number of decimal places kept on divisions.
const PriceScale = 18

// Pool is a two-token AMM pair. Token order is fixed at creation; reserves
// and prices are positional. Token0Price is token0 per token1
// (reserve0 / reserve1) and Token1Price is token1 per token0.
type Pool struct {
	ID                 string          `json:"id"`
	Token0             string          `json:"token0"`
	Token1             string          `json:"token1"`
	Stable             bool            `json:"stable"`
	Reserve0           decimal.Decimal `json:"reserve0"`
	Reserve1           decimal.Decimal `json:"reserve1"`
	ReserveBase        decimal.Decimal `json:"reserve_base"`
	ReserveUSD         decimal.Decimal `json:"reserve_usd"`
	TrackedReserveBase decimal.Decimal `json:"tracked_reserve_base"`
	Token0Price        decimal.Decimal `json:"token0_price"`
	Token1Price        decimal.Decimal `json:"token1_price"`
	VolumeToken0       decimal.Decimal `json:"volume_token0"`
	VolumeToken1       decimal.Decimal `json:"volume_token1"`
	VolumeUSD          decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD decimal.Decimal `json:"untracked_volume_usd"`
	TxCount            uint64          `json:"tx_count"`
	CreatedAtBlock     uint64          `json:"created_at_block"`
}

// SyncPrices recomputes both reserve ratios. A ratio with an empty
// denominator is left at zero.
func (p *Pool) SyncPrices() {
	p.Token0Price = decimal.Zero
	p.Token1Price = decimal.Zero
	if !p.Reserve1.IsZero() {
		p.Token0Price = p.Reserve0.DivRound(p.Reserve1, PriceScale)
	}
	if !p.Reserve0.IsZero() {
		p.Token1Price = p.Reserve1.DivRound(p.Reserve0, PriceScale)
	}
}

// Has reports whether token is one of the pair's two sides.
func (p *Pool) Has(token string) bool {
	return p.Token0 == token || p.Token1 == token
}

// Clone returns a copy safe to mutate independently.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
