package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolWindowMetrics stores aggregated metrics for a pair window.
type PoolWindowMetrics struct {
	ChainID             uint64
	PoolAddress         string
	WindowSizeSecs      int64
	WindowStart         time.Time
	WindowEnd           time.Time
	SwapCount           uint64
	MintCount           uint64
	BurnCount           uint64
	Volume0             decimal.Decimal
	Volume1             decimal.Decimal
	VolumeUSD           decimal.Decimal
	UntrackedVolumeUSD  decimal.Decimal
	LiquidityAddedUSD   decimal.Decimal
	LiquidityRemovedUSD decimal.Decimal
	Reserve0            decimal.Decimal
	Reserve1            decimal.Decimal
	ReserveUSD          decimal.Decimal
	BasePriceUSD        decimal.Decimal
}
