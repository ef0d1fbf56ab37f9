package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRules_CanonicalizesIDs(t *testing.T) {
	cfg := testConfig()
	cfg.BaseAsset = "0xBB4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	cfg.UntrackedPools = []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}

	rules, err := NewRules(cfg)
	require.NoError(t, err)

	assert.Equal(t, wbnb, rules.BaseAsset())
	assert.True(t, rules.IsWhitelisted("0xE9e7CEA3DedcA5984780Bafc599bD69ADd087D56"))
	assert.False(t, rules.IsWhitelisted(tokenX))
	assert.True(t, rules.IsUntracked("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.True(t, rules.IsReferencePool(busdPool))
	assert.False(t, rules.IsWhitelisted("not-an-address"))
}

func TestNewRules_DefaultTiers(t *testing.T) {
	cfg := testConfig()
	cfg.AnchorTiers = nil

	rules, err := NewRules(cfg)
	require.NoError(t, err)

	require.Len(t, rules.tiers, 4)
	assert.Len(t, rules.tiers[0], 3)
	for i, ref := range cfg.ReferencePools {
		require.Len(t, rules.tiers[i+1], 1)
		assert.Equal(t, ref.Address, rules.tiers[i+1][0].Address)
	}
}

func TestNewRules_SingleReferenceHasOneTier(t *testing.T) {
	cfg := testConfig()
	cfg.ReferencePools = cfg.ReferencePools[2:]
	cfg.AnchorTiers = nil

	rules, err := NewRules(cfg)
	require.NoError(t, err)
	require.Len(t, rules.tiers, 1)
}

func TestNewRules_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "bad base", mutate: func(cfg *Config) { cfg.BaseAsset = "wbnb" }},
		{name: "empty whitelist", mutate: func(cfg *Config) { cfg.Whitelist = nil }},
		{name: "bad whitelist entry", mutate: func(cfg *Config) { cfg.Whitelist = append(cfg.Whitelist, "0x12") }},
		{name: "duplicate whitelist entry", mutate: func(cfg *Config) { cfg.Whitelist = append(cfg.Whitelist, busd) }},
		{name: "no pool kinds", mutate: func(cfg *Config) { cfg.PoolKinds = nil }},
		{name: "duplicate pool kind", mutate: func(cfg *Config) { cfg.PoolKinds = append(cfg.PoolKinds, volatileKind("1")) }},
		{name: "negative threshold", mutate: func(cfg *Config) {
			cfg.PoolKinds = []PoolKind{{Name: "volatile", MinLiquidity: decimal.NewFromInt(-1)}}
		}},
		{name: "bad untracked pool", mutate: func(cfg *Config) { cfg.UntrackedPools = []string{"nope"} }},
		{name: "duplicate reference pool", mutate: func(cfg *Config) {
			cfg.ReferencePools = append(cfg.ReferencePools, ReferencePool{Address: busdPool})
		}},
		{name: "tier member not a reference", mutate: func(cfg *Config) { cfg.AnchorTiers = [][]string{{tokenX}} }},
		{name: "empty tier", mutate: func(cfg *Config) { cfg.AnchorTiers = [][]string{{}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewRules(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseBaseSide(t *testing.T) {
	side, err := ParseBaseSide("token1")
	require.NoError(t, err)
	assert.Equal(t, BaseToken1, side)

	side, err = ParseBaseSide("0")
	require.NoError(t, err)
	assert.Equal(t, BaseToken0, side)
	assert.Equal(t, "token0", side.String())

	_, err = ParseBaseSide("left")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
