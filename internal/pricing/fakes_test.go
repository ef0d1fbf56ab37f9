package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"pairScope/internal/model"
)

const (
	wbnb = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	busd = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	usdt = "0x55d398326f99059ff775485246999027b3197955"
	usdc = "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d"
	dai  = "0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3"

	usdcPool = "0x4cd8a94975e275bd327431e2225f3afba73b56d7"
	usdtPool = "0x6be6a437a1172e6c220246ecb3a92a45af9f0cbc"
	busdPool = "0x483653bcf3a10d9a1c334ce16a19471a614f4385"

	tokenX = "0x1000000000000000000000000000000000000001"
	tokenY = "0x2000000000000000000000000000000000000002"
)

type fakeStore struct {
	tokens map[string]*model.Token
	pools  map[string]*model.Pool
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens: make(map[string]*model.Token),
		pools:  make(map[string]*model.Pool),
	}
}

func (s *fakeStore) Token(_ context.Context, id string) (*model.Token, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	token, ok := s.tokens[id]
	return token, ok, nil
}

func (s *fakeStore) Pool(_ context.Context, id string) (*model.Pool, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	pool, ok := s.pools[id]
	return pool, ok, nil
}

func (s *fakeStore) addToken(id string, derived string) *model.Token {
	token := &model.Token{ID: id, Decimals: 18, DerivedBase: decimal.RequireFromString(derived)}
	s.tokens[id] = token
	return token
}

func (s *fakeStore) addPool(id, token0, token1 string, reserve0, reserve1, reserveBase string) *model.Pool {
	pool := &model.Pool{
		ID:          id,
		Token0:      token0,
		Token1:      token1,
		Reserve0:    decimal.RequireFromString(reserve0),
		Reserve1:    decimal.RequireFromString(reserve1),
		ReserveBase: decimal.RequireFromString(reserveBase),
	}
	pool.SyncPrices()
	s.pools[id] = pool
	return pool
}

type resolveCall struct {
	tokenA string
	tokenB string
	stable bool
}

type fakeResolver struct {
	pairs map[string]common.Address
	calls []resolveCall
	err   error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{pairs: make(map[string]common.Address)}
}

func resolverKey(a, b string, stable bool) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s:%t", a, b, stable)
}

func (r *fakeResolver) add(tokenA, tokenB string, stable bool, pool string) {
	r.pairs[resolverKey(tokenA, tokenB, stable)] = common.HexToAddress(pool)
}

func (r *fakeResolver) ResolvePool(_ context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	r.calls = append(r.calls, resolveCall{
		tokenA: model.AddressKey(tokenA),
		tokenB: model.AddressKey(tokenB),
		stable: stable,
	})
	if r.err != nil {
		return common.Address{}, false, r.err
	}
	addr, ok := r.pairs[resolverKey(tokenA.Hex(), tokenB.Hex(), stable)]
	return addr, ok, nil
}

var errBoom = errors.New("boom")

func volatileKind(threshold string) PoolKind {
	return PoolKind{Name: "volatile", Stable: false, MinLiquidity: decimal.RequireFromString(threshold), ApplyRatio: true}
}

func stableKind(threshold string) PoolKind {
	return PoolKind{Name: "stable", Stable: true, MinLiquidity: decimal.RequireFromString(threshold)}
}

func testConfig() Config {
	return Config{
		BaseAsset: wbnb,
		Whitelist: []string{wbnb, busd, usdt, usdc, dai},
		PoolKinds: []PoolKind{volatileKind("3"), stableKind("30")},
		ReferencePools: []ReferencePool{
			{Address: usdtPool, BaseSide: BaseToken1},
			{Address: usdcPool, BaseSide: BaseToken1},
			{Address: busdPool, BaseSide: BaseToken0},
		},
		AnchorTiers: [][]string{
			{usdtPool, usdcPool, busdPool},
			{usdtPool, busdPool},
			{busdPool},
		},
	}
}
