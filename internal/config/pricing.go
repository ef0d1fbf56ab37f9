package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pairScope/internal/pricing"
)

// BSC defaults for a Solidly-style exchange priced against WBNB.
const (
	wbnbAddress  = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	wbnbBUSDPair = "0x483653bcf3a10d9a1c334ce16a19471a614f4385"
	usdtWBNBPair = "0x6be6a437a1172e6c220246ecb3a92a45af9f0cbc"
	usdcWBNBPair = "0x4cd8a94975e275bd327431e2225f3afba73b56d7"
)

var defaultWhitelist = []string{
	"0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", // WBNB
	"0xe9e7cea3dedca5984780bafc599bd69add087d56", // BUSD
	"0x55d398326f99059ff775485246999027b3197955", // USDT
	"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", // USDC
	"0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3", // DAI
	"0x2170ed0880ac9a755fd29b2688956bd959f933f8", // ETH
	"0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c", // BTCB
	"0x90c97f71e18723b0cf0dfa30ee176ab653e89f40", // FRAX
	"0xfa4ba88cf97e282c505bea095297786c16070129", // CUSD
	"0x2f29bc0ffaf9bff337b31cbe6cb5fb3bf12e5840", // DOLA
	"0x0782b6d8c4551b9760e74c0545a9bcd90bdc41e5", // HAY
	"0xe80772eaf6e2e18b651f160bc9158b2a5cafca65", // USD+
	"0x1bdd3cf7f79cfb8edbb955f20ad99211551ba275", // BNBx
	"0xf307910a4c7bbc79691fd374889b36d8531b08e3", // ANKR
	"0x52f24a5e03aee338da5fd9df68d2b6fae1178827", // ankrBNB
	"0x64048a7eecf3a2f1ba9e144aac3d7db6e58f555e", // frxETH
	"0x431e0cd023a32532bf3969cddfc002c00e98429d", // XCAD
	"0xcc42724c6683b7e57334c4e856f4c9965ed682bd", // MATIC
	"0xf4c8e32eadec4bfe97e0f595add0f4450a863a11", // THE
	"0x1ce0c2827e2ef14d5c4f29a091d735a204794041", // AVAX
	"0xe5c6155ed2924e50f998e28eff932d9b5a126974", // LQDR
	"0x71be881e9c5d4465b3fff61e89c6f3651e69b5bb", // BRZ
	"0x316622977073bbc3df32e7d2a9b3c77596a0a603", // jBRL
	"0x0b15ddf19d47e6a86a56148fb4afffc6929bcb89", // IDIA
}

// DefaultPricing returns the BSC pricing rules. USDT and USDC pairs hold
// WBNB as token1, the BUSD pair as token0.
func DefaultPricing() pricing.Config {
	return pricing.Config{
		BaseAsset: wbnbAddress,
		Whitelist: append([]string(nil), defaultWhitelist...),
		PoolKinds: []pricing.PoolKind{
			{Name: "volatile", Stable: false, MinLiquidity: decimal.NewFromInt(3), ApplyRatio: true},
			{Name: "stable", Stable: true, MinLiquidity: decimal.NewFromInt(30)},
		},
		ReferencePools: []pricing.ReferencePool{
			{Address: usdtWBNBPair, BaseSide: pricing.BaseToken1},
			{Address: usdcWBNBPair, BaseSide: pricing.BaseToken1},
			{Address: wbnbBUSDPair, BaseSide: pricing.BaseToken0},
		},
		AnchorTiers: [][]string{
			{usdtWBNBPair, usdcWBNBPair, wbnbBUSDPair},
			{usdtWBNBPair, wbnbBUSDPair},
			{wbnbBUSDPair},
		},
	}
}

type rawPricing struct {
	BaseAsset      string             `mapstructure:"base-asset"`
	Whitelist      []string           `mapstructure:"whitelist"`
	PoolKinds      []rawPoolKind      `mapstructure:"pool-kinds"`
	UntrackedPools []string           `mapstructure:"untracked-pools"`
	ReferencePools []rawReferencePool `mapstructure:"reference-pools"`
	AnchorTiers    [][]string         `mapstructure:"anchor-tiers"`
}

type rawPoolKind struct {
	Name         string `mapstructure:"name"`
	Stable       bool   `mapstructure:"stable"`
	MinLiquidity string `mapstructure:"min-liquidity"`
	ApplyRatio   bool   `mapstructure:"apply-ratio"`
}

type rawReferencePool struct {
	Address  string `mapstructure:"address"`
	BaseSide string `mapstructure:"base-side"`
}

// LoadPricing reads the "pricing" section. Each list that is set replaces
// the default list as a whole; unset fields keep DefaultPricing values.
func LoadPricing(v *viper.Viper) (pricing.Config, error) {
	cfg := DefaultPricing()
	if v == nil || !v.IsSet("pricing") {
		return cfg, nil
	}

	var raw rawPricing
	if err := v.UnmarshalKey("pricing", &raw); err != nil {
		return pricing.Config{}, fmt.Errorf("read pricing: %w", err)
	}

	if raw.BaseAsset != "" {
		cfg.BaseAsset = raw.BaseAsset
	}
	if len(raw.Whitelist) > 0 {
		cfg.Whitelist = cleanStrings(raw.Whitelist)
	}
	if len(raw.UntrackedPools) > 0 {
		cfg.UntrackedPools = cleanStrings(raw.UntrackedPools)
	}
	if len(raw.PoolKinds) > 0 {
		kinds := make([]pricing.PoolKind, 0, len(raw.PoolKinds))
		for _, item := range raw.PoolKinds {
			threshold := decimal.Zero
			if item.MinLiquidity != "" {
				parsed, err := decimal.NewFromString(item.MinLiquidity)
				if err != nil {
					return pricing.Config{}, fmt.Errorf("pool kind %q min-liquidity: %w", item.Name, err)
				}
				threshold = parsed
			}
			kinds = append(kinds, pricing.PoolKind{
				Name:         item.Name,
				Stable:       item.Stable,
				MinLiquidity: threshold,
				ApplyRatio:   item.ApplyRatio,
			})
		}
		cfg.PoolKinds = kinds
	}
	if len(raw.ReferencePools) > 0 {
		refs := make([]pricing.ReferencePool, 0, len(raw.ReferencePools))
		for _, item := range raw.ReferencePools {
			side, err := pricing.ParseBaseSide(item.BaseSide)
			if err != nil {
				return pricing.Config{}, fmt.Errorf("reference pool %s: %w", item.Address, err)
			}
			refs = append(refs, pricing.ReferencePool{Address: item.Address, BaseSide: side})
		}
		cfg.ReferencePools = refs
		// tiers name reference pools, so replacing the pools drops the default tiers
		cfg.AnchorTiers = nil
	}
	if len(raw.AnchorTiers) > 0 {
		cfg.AnchorTiers = raw.AnchorTiers
	}

	return cfg, nil
}
