package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"pairScope/internal/model"
)

// Accumulator holds the USD aggregates of one pool window.
type Accumulator struct {
	ChainID             uint64
	PoolAddress         string
	WindowStart         uint64
	WindowEnd           uint64
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
	LastTS              uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: poolKey(record.Address),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		LastTS:      record.Timestamp,
	}
}

// Add folds the effect of one committed event into the window. Reserves
// and the anchor follow the latest event.
func (a *Accumulator) Add(record model.TypedEventRecord, effect Effect) {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}

	switch effect.Event {
	case model.EventSwap:
		a.SwapCount++
		a.Volume0 = a.Volume0.Add(effect.Amount0)
		a.Volume1 = a.Volume1.Add(effect.Amount1)
		a.VolumeUSD = a.VolumeUSD.Add(effect.VolumeUSD)
		a.UntrackedVolumeUSD = a.UntrackedVolumeUSD.Add(effect.UntrackedVolumeUSD)
	case model.EventMint:
		a.MintCount++
		a.LiquidityAddedUSD = a.LiquidityAddedUSD.Add(effect.LiquidityUSD)
	case model.EventBurn:
		a.BurnCount++
		a.LiquidityRemovedUSD = a.LiquidityRemovedUSD.Add(effect.LiquidityUSD)
	}

	a.Reserve0 = effect.Pool.Reserve0
	a.Reserve1 = effect.Pool.Reserve1
	a.ReserveUSD = effect.Pool.ReserveUSD
	a.BasePriceUSD = effect.BasePriceUSD
}

// Metrics returns the window row for persistence.
func (a *Accumulator) Metrics() model.PoolWindowMetrics {
	return model.PoolWindowMetrics{
		ChainID:             a.ChainID,
		PoolAddress:         a.PoolAddress,
		WindowSizeSecs:      int64(a.WindowEnd - a.WindowStart),
		WindowStart:         time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:           time.Unix(int64(a.WindowEnd), 0).UTC(),
		SwapCount:           a.SwapCount,
		MintCount:           a.MintCount,
		BurnCount:           a.BurnCount,
		Volume0:             a.Volume0,
		Volume1:             a.Volume1,
		VolumeUSD:           a.VolumeUSD,
		UntrackedVolumeUSD:  a.UntrackedVolumeUSD,
		LiquidityAddedUSD:   a.LiquidityAddedUSD,
		LiquidityRemovedUSD: a.LiquidityRemovedUSD,
		Reserve0:            a.Reserve0,
		Reserve1:            a.Reserve1,
		ReserveUSD:          a.ReserveUSD,
		BasePriceUSD:        a.BasePriceUSD,
	}
}
