package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EntityStore holds the priced entities. A missing entity is reported as
// ok=false with a nil error. Loads return copies; writes go through Apply.
type EntityStore interface {
	Token(ctx context.Context, id string) (*model.Token, bool, error)
	Pool(ctx context.Context, id string) (*model.Pool, bool, error)
	Bundle(ctx context.Context) (*model.Bundle, bool, error)
	ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error)
	Apply(ctx context.Context, changes Changes) error
	Snapshot(ctx context.Context) (Changes, error)
	// Position is the last replay position written with Apply.
	Position(ctx context.Context) (model.ReplayPosition, bool, error)
}

// Changes is a set of entity writes applied together. Position, when set,
// is stored atomically with the writes as the last event they include.
type Changes struct {
	Tokens   []*model.Token
	Pools    []*model.Pool
	Bundle   *model.Bundle
	Position *model.ReplayPosition
}

// Checkpoint is one durable replay write: window rows, the entities changed
// since the previous checkpoint and, when State is set, the replay position
// saved under that name.
type Checkpoint struct {
	ChainID  uint64
	Windows  []model.PoolWindowMetrics
	Entities Changes
	State    string
	Position model.ReplayPosition
}

// Empty reports whether there are no entity writes.
func (c Changes) Empty() bool {
	return len(c.Tokens) == 0 && len(c.Pools) == 0 && c.Bundle == nil
}

// PairKey indexes a pool by its unordered token pair and curve kind.
func PairKey(tokenA, tokenB string, stable bool) string {
	a, b := strings.ToLower(tokenA), strings.ToLower(tokenB)
	if a > b {
		a, b = b, a
	}
	kind := "volatile"
	if stable {
		kind = "stable"
	}
	return fmt.Sprintf("%s:%s:%s", a, b, kind)
}
