package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoolSyncPrices(t *testing.T) {
	pool := &Pool{
		Reserve0: decimal.NewFromInt(1000),
		Reserve1: decimal.NewFromInt(2000000),
	}
	pool.SyncPrices()

	if !pool.Token0Price.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("token0 price mismatch: %s", pool.Token0Price)
	}
	if !pool.Token1Price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("token1 price mismatch: %s", pool.Token1Price)
	}
}

func TestPoolSyncPricesEmptyReserve(t *testing.T) {
	pool := &Pool{
		Reserve0:    decimal.Zero,
		Reserve1:    decimal.NewFromInt(5),
		Token0Price: decimal.NewFromInt(9),
		Token1Price: decimal.NewFromInt(9),
	}
	pool.SyncPrices()

	if !pool.Token0Price.IsZero() {
		t.Fatalf("token0 price should be zero, got %s", pool.Token0Price)
	}
	if !pool.Token1Price.IsZero() {
		t.Fatalf("token1 price should be zero, got %s", pool.Token1Price)
	}
}

func TestPoolJSONKeepsDecimalsAsStrings(t *testing.T) {
	pool := Pool{
		ID:          "0x1111111111111111111111111111111111111111",
		Reserve0:    decimal.RequireFromString("12345678901234567890.123456789012345678"),
		ReserveBase: decimal.RequireFromString("3.5"),
	}

	data, err := json.Marshal(pool)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, ok := decoded["reserve0"].(string); !ok || v != "12345678901234567890.123456789012345678" {
		t.Fatalf("reserve0 should be an exact string, got %v", decoded["reserve0"])
	}

	var back Pool
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal pool failed: %v", err)
	}
	if !back.Reserve0.Equal(pool.Reserve0) {
		t.Fatalf("reserve0 round-trip mismatch: %s", back.Reserve0)
	}
}
