package pricing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairScope/internal/model"
)

// Store loads the entities pricing reads. A missing entity is reported as
// ok=false with a nil error.
type Store interface {
	Token(ctx context.Context, id string) (*model.Token, bool, error)
	Pool(ctx context.Context, id string) (*model.Pool, bool, error)
}

// PoolResolver finds the pool for a token pair and curve kind.
type PoolResolver interface {
	ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error)
}

// Pricer evaluates the pricing rules against one store snapshot.
type Pricer struct {
	rules    *Rules
	store    Store
	resolver PoolResolver
	logger   *zap.Logger
}

// NewPricer binds rules to a store and resolver.
func NewPricer(rules *Rules, store Store, resolver PoolResolver, logger *zap.Logger) *Pricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pricer{
		rules:    rules,
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
}
