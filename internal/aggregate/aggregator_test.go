package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairScope/internal/metrics"
	"pairScope/internal/model"
	"pairScope/internal/pricing"
	"pairScope/internal/storage"
	"pairScope/internal/storage/memory"
)

const (
	wbnb     = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	busd     = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	tokenX   = "0x1000000000000000000000000000000000000001"
	busdPool = "0x483653bcf3a10d9a1c334ce16a19471a614f4385"
	xPool    = "0xa000000000000000000000000000000000000001"
)

var (
	busdMeta = model.PairMeta{Token0: wbnb, Token1: busd, Decimals0: 18, Decimals1: 18, Symbol0: "WBNB", Symbol1: "BUSD"}
	xMeta    = model.PairMeta{Token0: tokenX, Token1: wbnb, Decimals0: 6, Decimals1: 18, Symbol0: "X", Symbol1: "WBNB"}
)

func TestAggregatorReplay(t *testing.T) {
	ctx := context.Background()
	entities := memory.NewStore()
	sink := &fakeSink{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	pipeline := metrics.New(prometheus.NewRegistry())

	agg := NewAggregator(Config{WindowSeconds: 3600, BatchSize: 100, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), sink, pipeline, nil)

	summary, err := agg.RunReader(ctx, strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 7, summary.Applied)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 3, summary.Windows)
	assert.Equal(t, model.ReplayPosition{Timestamp: 3700, BlockNumber: 7}, summary.Position)

	bundle, ok, err := entities.Bundle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assertDecimal(t, "250", bundle.BasePriceUSD)

	refPool := mustPool(t, entities, busdPool)
	assertDecimal(t, "2000", refPool.ReserveBase)
	assertDecimal(t, "500000", refPool.ReserveUSD)
	assertDecimal(t, "2000", refPool.TrackedReserveBase)

	pool := mustPool(t, entities, xPool)
	assertDecimal(t, "500000", pool.Reserve0)
	assertDecimal(t, "100", pool.Reserve1)
	assertDecimal(t, "5000", pool.Token0Price)
	assertDecimal(t, "0.0002", pool.Token1Price)
	assertDecimal(t, "200", pool.ReserveBase)
	assertDecimal(t, "50000", pool.ReserveUSD)
	assertDecimal(t, "200", pool.TrackedReserveBase)
	assertDecimal(t, "1000", pool.VolumeToken0)
	assertDecimal(t, "0.2", pool.VolumeToken1)
	assertDecimal(t, "50", pool.VolumeUSD)
	assertDecimal(t, "50", pool.UntrackedVolumeUSD)
	assert.Equal(t, uint64(3), pool.TxCount)
	assert.Equal(t, uint64(3), pool.CreatedAtBlock)

	x := mustToken(t, entities, tokenX)
	assert.Equal(t, "X", x.Symbol)
	assert.Equal(t, uint8(6), x.Decimals)
	assertDecimal(t, "0.0002", x.DerivedBase)
	assertDecimal(t, "1000", x.TradeVolume)
	assertDecimal(t, "50", x.TradeVolumeUSD)

	base := mustToken(t, entities, wbnb)
	assertDecimal(t, "1", base.DerivedBase)
	assertDecimal(t, "1100", base.TotalLiquidity)
	assertDecimal(t, "0.2", base.TradeVolume)

	assertDecimal(t, "0.004", mustToken(t, entities, busd).DerivedBase)

	first := sink.window(t, xPool, 0)
	assert.Equal(t, uint64(1), first.SwapCount)
	assert.Equal(t, uint64(1), first.MintCount)
	assert.Equal(t, int64(3600), first.WindowSizeSecs)
	assertDecimal(t, "1000", first.Volume0)
	assertDecimal(t, "50", first.VolumeUSD)
	assertDecimal(t, "10", first.LiquidityAddedUSD)
	assertDecimal(t, "50000", first.ReserveUSD)
	assertDecimal(t, "250", first.BasePriceUSD)

	second := sink.window(t, xPool, 3600)
	assert.Equal(t, uint64(1), second.BurnCount)
	assertDecimal(t, "10", second.LiquidityRemovedUSD)

	ref := sink.window(t, busdPool, 0)
	assert.Equal(t, uint64(0), ref.SwapCount)
	assertDecimal(t, "500000", ref.ReserveUSD)

	require.Len(t, sink.checkpoints, 1)
	saved := sink.checkpoints[0].Entities
	assert.Len(t, saved.Tokens, 3)
	assert.Len(t, saved.Pools, 2)
	require.NotNil(t, saved.Bundle)
	assert.Empty(t, sink.checkpoints[0].State)

	pos, ok, err := state.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), pos.BlockNumber)

	entityPos, ok, err := entities.Position(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pos, entityPos)

	assert.Equal(t, 1.0, testutil.ToFloat64(pipeline.EventsFailed.WithLabelValues("Swap")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pipeline.TokensUnpriced))
	assert.Equal(t, 250.0, testutil.ToFloat64(pipeline.BasePriceUSD))
}

func TestAggregatorResumeSkipsAppliedEvents(t *testing.T) {
	ctx := context.Background()
	entities := memory.NewStore()
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	input := replayInput(t)

	first := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), &fakeSink{}, nil, nil)
	_, err := first.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)

	sink := &fakeSink{}
	second := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)
	summary, err := second.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 8, summary.Skipped)
	assert.Empty(t, sink.windows)
	assert.Empty(t, sink.checkpoints)

	pool := mustPool(t, entities, xPool)
	assertDecimal(t, "50", pool.VolumeUSD)
	assert.Equal(t, uint64(3), pool.TxCount)
}

func TestAggregatorCheckpointsEveryBatch(t *testing.T) {
	sink := &fakeSink{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	agg := NewAggregator(Config{WindowSeconds: 3600, BatchSize: 2, StateStore: state},
		memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)

	_, err := agg.RunReader(context.Background(), strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	// 7 applied events: checkpoints after 2, 4, 6 and at the end
	assert.Len(t, sink.checkpoints, 4)

	var swaps, mints uint64
	for _, w := range sink.windows {
		if w.PoolAddress == xPool && w.WindowStart.Unix() == 0 {
			swaps += w.SwapCount
			mints += w.MintCount
		}
	}
	assert.Equal(t, uint64(1), swaps)
	assert.Equal(t, uint64(1), mints)
}

func TestAggregatorFailedCheckpointLeavesEntitiesUntouched(t *testing.T) {
	ctx := context.Background()
	entities := memory.NewStore()
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	input := replayInput(t)

	broken := &fakeSink{err: errors.New("db down")}
	first := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), broken, nil, nil)
	_, err := first.RunReader(ctx, strings.NewReader(input))
	require.ErrorIs(t, err, broken.err)

	_, ok, err := entities.Pool(ctx, xPool)
	require.NoError(t, err)
	assert.False(t, ok, "entities written without a checkpoint")
	_, ok, err = entities.Position(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	sink := &fakeSink{}
	second := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)
	summary, err := second.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Applied)

	pool := mustPool(t, entities, xPool)
	assertDecimal(t, "50", pool.VolumeUSD)
	assert.Equal(t, uint64(3), pool.TxCount)
	assertDecimal(t, "50", sink.window(t, xPool, 0).VolumeUSD)
}

func TestAggregatorRestoresEntitiesBehindState(t *testing.T) {
	ctx := context.Background()
	entities := memory.NewStore()
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	input := replayInput(t)

	// windows and state commit, the entity flush does not
	flushErr := errors.New("redis down")
	first := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		&failingEntities{Store: entities, err: flushErr}, NewHandler(testRules(t), nil, nil, nil), &fakeSink{}, nil, nil)
	_, err := first.RunReader(ctx, strings.NewReader(input))
	require.ErrorIs(t, err, flushErr)

	pos, ok, err := state.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), pos.BlockNumber)

	sink := &fakeSink{}
	second := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)
	summary, err := second.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Restored)
	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 0, summary.Windows)
	assert.Empty(t, sink.windows)
	require.Len(t, sink.checkpoints, 1)
	assert.Len(t, sink.checkpoints[0].Entities.Pools, 2)

	pool := mustPool(t, entities, xPool)
	assertDecimal(t, "50", pool.VolumeUSD)
	assert.Equal(t, uint64(3), pool.TxCount)

	entityPos, ok, err := entities.Position(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pos, entityPos)
}

func TestAggregatorRejectsEntitiesAheadOfState(t *testing.T) {
	ctx := context.Background()
	entities := memory.NewStore()
	require.NoError(t, entities.Apply(ctx, storage.Changes{Position: &model.ReplayPosition{BlockNumber: 5}}))
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: state},
		entities, NewHandler(testRules(t), nil, nil, nil), &fakeSink{}, nil, nil)
	_, err := agg.RunReader(ctx, strings.NewReader(replayInput(t)))
	require.Error(t, err)
}

func TestAggregatorWritesNamedStateInCheckpoint(t *testing.T) {
	backend := &fakeStateBackend{}
	sink := &fakeSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: &DBStateStore{Store: backend, Name: "price:3600"}},
		memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)

	_, err := agg.RunReader(context.Background(), strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	require.Len(t, sink.checkpoints, 1)
	assert.Equal(t, "price:3600", sink.checkpoints[0].State)
	assert.Equal(t, uint64(7), sink.checkpoints[0].Position.BlockNumber)
	assert.Empty(t, backend.saved, "state must not be written outside the checkpoint")
}

func TestAggregatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entities := memory.NewStore()
	sink := &fakeSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600},
		entities, NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)
	summary, err := agg.RunReader(ctx, strings.NewReader(replayInput(t)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, sink.checkpoints)

	_, ok, err := entities.Pool(context.Background(), busdPool)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregatorRecomputeDropsWindows(t *testing.T) {
	sink := &fakeSink{}
	agg := NewAggregator(Config{ChainID: 56, WindowSeconds: 3600, RecomputeFrom: 3650},
		memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)

	summary, err := agg.RunReader(context.Background(), strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	require.Len(t, sink.deleted, 1)
	assert.Equal(t, int64(3600), sink.deleted[0].Unix())
	// the burn creates its pair from the event metadata, still unpriced
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 7, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assertDecimal(t, "0", sink.window(t, xPool, 3600).LiquidityRemovedUSD)
}

func TestAggregatorRecomputeNeedsChainID(t *testing.T) {
	agg := NewAggregator(Config{WindowSeconds: 3600, RecomputeFrom: 10},
		memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), &fakeSink{}, nil, nil)
	_, err := agg.RunReader(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestAggregatorSinkErrorAborts(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	agg := NewAggregator(Config{WindowSeconds: 3600},
		memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), sink, nil, nil)
	_, err := agg.RunReader(context.Background(), strings.NewReader(replayInput(t)))
	require.ErrorIs(t, err, sink.err)
}

func TestAggregatorValidatesConfig(t *testing.T) {
	agg := NewAggregator(Config{}, memory.NewStore(), NewHandler(testRules(t), nil, nil, nil), &fakeSink{}, nil, nil)
	_, err := agg.RunReader(context.Background(), strings.NewReader(""))
	require.Error(t, err)

	agg = NewAggregator(Config{WindowSeconds: 60}, memory.NewStore(), nil, &fakeSink{}, nil, nil)
	_, err = agg.RunReader(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

// replayInput prices WBNB at 250 USD through the BUSD pool, then prices X
// at 0.0002 WBNB once its pool holds liquidity from the previous sync.
func replayInput(t *testing.T) string {
	t.Helper()
	lines := []string{
		eventLine(t, 1, 100, busdPool, "Sync", busdMeta, model.SyncEventData{Reserve0: "1000000000000000000000", Reserve1: "250000000000000000000000"}),
		eventLine(t, 2, 110, busdPool, "Sync", busdMeta, model.SyncEventData{Reserve0: "1000000000000000000000", Reserve1: "250000000000000000000000"}),
		eventLine(t, 3, 120, xPool, "Sync", xMeta, model.SyncEventData{Reserve0: "500000000000", Reserve1: "100000000000000000000"}),
		eventLine(t, 4, 130, xPool, "Sync", xMeta, model.SyncEventData{Reserve0: "500000000000", Reserve1: "100000000000000000000"}),
		eventLine(t, 5, 140, xPool, "Swap", xMeta, model.SwapEventData{Amount0In: "1000000000", Amount1In: "0", Amount0Out: "0", Amount1Out: "200000000000000000"}),
		eventLine(t, 6, 150, xPool, "Mint", xMeta, model.MintEventData{Amount0: "100000000", Amount1: "20000000000000000"}),
		eventLine(t, 7, 3700, xPool, "Burn", xMeta, model.BurnEventData{Amount0: "100000000", Amount1: "20000000000000000"}),
		eventLine(t, 8, 3705, xPool, "Approval", xMeta, map[string]string{}),
		eventLine(t, 9, 3710, xPool, "Swap", xMeta, model.SwapEventData{Amount0In: "abc"}),
		`{"chain_id":`,
	}
	return strings.Join(lines, "\n") + "\n"
}

func eventLine(t *testing.T, block, ts uint64, pool, name string, meta model.PairMeta, decoded interface{}) string {
	t.Helper()
	data, err := json.Marshal(model.TypedEvent{
		ChainID:     56,
		BlockNumber: block,
		TxHash:      "0xtx",
		Address:     pool,
		EventName:   name,
		Timestamp:   ts,
		Decoded:     decoded,
		Pair:        meta,
	})
	require.NoError(t, err)
	return string(data)
}

func testRules(t *testing.T) *pricing.Rules {
	t.Helper()
	rules, err := pricing.NewRules(pricing.Config{
		BaseAsset: wbnb,
		Whitelist: []string{wbnb, busd},
		PoolKinds: []pricing.PoolKind{
			{Name: "volatile", MinLiquidity: decimal.NewFromInt(3), ApplyRatio: true},
			{Name: "stable", Stable: true, MinLiquidity: decimal.NewFromInt(30)},
		},
		ReferencePools: []pricing.ReferencePool{{Address: busdPool, BaseSide: pricing.BaseToken0}},
	})
	require.NoError(t, err)
	return rules
}

type fakeSink struct {
	windows     []model.PoolWindowMetrics
	checkpoints []storage.Checkpoint
	deleted     []time.Time
	err         error
}

func (s *fakeSink) Checkpoint(_ context.Context, cp storage.Checkpoint) error {
	if s.err != nil {
		return s.err
	}
	s.windows = append(s.windows, cp.Windows...)
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *fakeSink) DeleteWindowsFrom(_ context.Context, _ uint64, from time.Time) error {
	s.deleted = append(s.deleted, from)
	return s.err
}

func (s *fakeSink) window(t *testing.T, pool string, start int64) model.PoolWindowMetrics {
	t.Helper()
	for _, w := range s.windows {
		if w.PoolAddress == pool && w.WindowStart.Unix() == start {
			return w
		}
	}
	t.Fatalf("window %s@%d not written", pool, start)
	return model.PoolWindowMetrics{}
}

type fakeStateBackend struct {
	saved []model.ReplayPosition
}

func (b *fakeStateBackend) LoadState(context.Context, string) (model.ReplayPosition, bool, error) {
	return model.ReplayPosition{}, false, nil
}

func (b *fakeStateBackend) SaveState(_ context.Context, _ string, pos model.ReplayPosition) error {
	b.saved = append(b.saved, pos)
	return nil
}

// failingEntities reads through to Store and fails every write.
type failingEntities struct {
	*memory.Store
	err error
}

func (s *failingEntities) Apply(context.Context, storage.Changes) error {
	return s.err
}

func mustPool(t *testing.T, store storage.EntityStore, id string) *model.Pool {
	t.Helper()
	pool, ok, err := store.Pool(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "pool %s missing", id)
	return pool
}

func mustToken(t *testing.T, store storage.EntityStore, id string) *model.Token {
	t.Helper()
	token, ok, err := store.Token(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "token %s missing", id)
	return token
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}
