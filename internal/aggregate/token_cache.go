package aggregate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairScope/internal/chain"
	"pairScope/internal/dex"
	"pairScope/internal/model"
)

// TokenMetaSource fills ERC20 fields that typed events do not carry. Pair
// metadata has decimals and symbols but no names; with a chain caller the
// missing fields are fetched once per token.
type TokenMetaSource struct {
	caller chain.Caller
	cache  *dex.TokenMetaCache
	logger *zap.Logger
}

func NewTokenMetaSource(caller chain.Caller, logger *zap.Logger) *TokenMetaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMetaSource{
		caller: caller,
		cache:  dex.NewTokenMetaCache(),
		logger: logger,
	}
}

// Enrich completes meta in place. Lookup failures keep what the event had.
func (s *TokenMetaSource) Enrich(ctx context.Context, id string, meta *model.TokenMeta) {
	if s == nil || s.caller == nil || (meta.Name != "" && meta.Symbol != "") {
		return
	}
	addr := common.HexToAddress(id)
	fetched, ok := s.cache.Get(addr)
	if !ok {
		var err error
		fetched, err = dex.FetchTokenMeta(ctx, s.caller, addr, s.logger)
		if err != nil {
			s.logger.Debug("token metadata unavailable", zap.String("token", id), zap.Error(err))
			return
		}
		s.cache.Set(addr, fetched)
	}
	if meta.Name == "" {
		meta.Name = fetched.Name
	}
	if meta.Symbol == "" {
		meta.Symbol = fetched.Symbol
	}
}
