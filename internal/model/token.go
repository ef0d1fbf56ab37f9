package model

import "github.com/shopspring/decimal"

// Token is the priced view of an ERC20 token seen in at least one pair.
// DerivedBase is the token price in base-asset units; zero means the last
// discovery pass found no qualifying pool.
type Token struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	Decimals           uint8           `json:"decimals"`
	DerivedBase        decimal.Decimal `json:"derived_base"`
	TradeVolume        decimal.Decimal `json:"trade_volume"`
	TradeVolumeUSD     decimal.Decimal `json:"trade_volume_usd"`
	UntrackedVolumeUSD decimal.Decimal `json:"untracked_volume_usd"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	TxCount            uint64          `json:"tx_count"`
}

// NewToken builds a token with zeroed counters.
func NewToken(id string, meta TokenMeta) *Token {
	return &Token{
		ID:       id,
		Symbol:   meta.Symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
	}
}

// Clone returns a copy safe to mutate independently.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
