package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// scaleAmount converts a raw integer token amount into token units.
func scaleAmount(raw string, decimals uint8) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid int: %s", raw)
	}
	return decimal.NewFromBigInt(value, -int32(decimals)), nil
}

// scaleAmounts scales a list of raw amounts sharing one decimals value.
func scaleAmounts(decimals uint8, raws ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(raws))
	for i, raw := range raws {
		value, err := scaleAmount(raw, decimals)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}
