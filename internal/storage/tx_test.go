package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairScope/internal/model"
	"pairScope/internal/storage"
	"pairScope/internal/storage/memory"
)

const (
	token0 = "0x1000000000000000000000000000000000000001"
	token1 = "0x2000000000000000000000000000000000000002"
	poolID = "0xa000000000000000000000000000000000000001"
)

func TestTx_ReadsSeeOwnWrites(t *testing.T) {
	ctx := context.Background()
	base := memory.NewStore()
	require.NoError(t, base.Apply(ctx, storage.Changes{
		Tokens: []*model.Token{{ID: token0, DerivedBase: decimal.NewFromInt(1)}},
	}))

	tx := storage.NewTx(base)
	token, ok, err := tx.Token(ctx, token0)
	require.NoError(t, err)
	require.True(t, ok)
	token.DerivedBase = decimal.NewFromInt(5)
	tx.PutToken(token)

	again, _, err := tx.Token(ctx, token0)
	require.NoError(t, err)
	assert.True(t, again.DerivedBase.Equal(decimal.NewFromInt(5)))

	stored, _, err := base.Token(ctx, token0)
	require.NoError(t, err)
	assert.True(t, stored.DerivedBase.Equal(decimal.NewFromInt(1)))

	require.NoError(t, tx.Commit(ctx))
	stored, _, err = base.Token(ctx, token0)
	require.NoError(t, err)
	assert.True(t, stored.DerivedBase.Equal(decimal.NewFromInt(5)))
}

func TestTx_RollbackLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := memory.NewStore()

	tx := storage.NewTx(base)
	tx.PutPool(&model.Pool{ID: poolID, Token0: token0, Token1: token1})
	tx.PutBundle(model.NewBundle())
	tx.Rollback()

	require.NoError(t, tx.Commit(ctx))
	_, ok, err := base.Pool(ctx, poolID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = base.Bundle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTx_ResolvesPendingPools(t *testing.T) {
	ctx := context.Background()
	tx := storage.NewTx(memory.NewStore())
	tx.PutPool(&model.Pool{ID: poolID, Token0: token0, Token1: token1})

	addr, ok, err := tx.ResolvePool(ctx, common.HexToAddress(token1), common.HexToAddress(token0), false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, poolID, model.AddressKey(addr))

	_, ok, err = tx.ResolvePool(ctx, common.HexToAddress(token1), common.HexToAddress(token0), true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTx_OnlyDirtyEntitiesCommitted(t *testing.T) {
	ctx := context.Background()
	base := &recordingStore{Store: memory.NewStore()}
	require.NoError(t, base.Apply(ctx, storage.Changes{
		Tokens: []*model.Token{{ID: token0}, {ID: token1}},
	}))
	base.applied = nil

	tx := storage.NewTx(base)
	_, _, err := tx.Token(ctx, token0)
	require.NoError(t, err)
	tok1, _, err := tx.Token(ctx, token1)
	require.NoError(t, err)
	tx.PutToken(tok1)

	require.NoError(t, tx.Commit(ctx))
	require.Len(t, base.applied, 1)
	require.Len(t, base.applied[0].Tokens, 1)
	assert.Equal(t, token1, base.applied[0].Tokens[0].ID)
}

func TestTx_CommitError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	base := &recordingStore{Store: memory.NewStore(), err: boom}

	tx := storage.NewTx(base)
	tx.PutBundle(model.NewBundle())
	err := tx.Commit(ctx)
	require.ErrorIs(t, err, boom)
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, storage.PairKey(token0, token1, true), storage.PairKey(token1, token0, true))
	assert.NotEqual(t, storage.PairKey(token0, token1, true), storage.PairKey(token0, token1, false))
}

type recordingStore struct {
	*memory.Store
	applied []storage.Changes
	err     error
}

func (s *recordingStore) Apply(ctx context.Context, changes storage.Changes) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, changes)
	return s.Store.Apply(ctx, changes)
}
