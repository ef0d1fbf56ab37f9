package model

import "github.com/shopspring/decimal"

// BundleID is the fixed key of the singleton price anchor.
const BundleID = "1"

// Bundle holds the base asset's USD price. It is written once per anchor
// computation and read by every USD conversion in the same event.
type Bundle struct {
	ID           string          `json:"id"`
	BasePriceUSD decimal.Decimal `json:"base_price_usd"`
}

// NewBundle returns an unpriced anchor record.
func NewBundle() *Bundle {
	return &Bundle{ID: BundleID}
}

// Clone returns a copy safe to mutate independently.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	out := *b
	return &out
}
