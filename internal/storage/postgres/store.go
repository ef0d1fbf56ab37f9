package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pairScope/internal/model"
	"pairScope/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for priced entities and window metrics.
// Decimals travel as text so NUMERIC columns keep full precision.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Checkpoint writes windows, entity rows and the named replay position in
// one transaction, so a reader never sees windows without the position that
// produced them.
func (s *Store) Checkpoint(ctx context.Context, cp storage.Checkpoint) error {
	batch := checkpointBatch(cp)
	if batch.Len() == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

func checkpointBatch(cp storage.Checkpoint) *pgx.Batch {
	batch := &pgx.Batch{}
	queueWindowMetrics(batch, cp.Windows)
	queuePools(batch, cp.ChainID, cp.Entities.Pools)
	queueTokens(batch, cp.ChainID, cp.Entities.Tokens)
	queueBundle(batch, cp.ChainID, cp.Entities.Bundle)
	if cp.State != "" {
		queueState(batch, cp.State, cp.Position)
	}
	return batch
}

// queuePools inserts or updates pool state.
func queuePools(batch *pgx.Batch, chainID uint64, pools []*model.Pool) {
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, stable,
				reserve0, reserve1, reserve_base, reserve_usd, tracked_reserve_base,
				token0_price, token1_price, volume_token0, volume_token1, volume_usd,
				untracked_volume_usd, tx_count, first_seen_block, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5,
				$6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
				$11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric,
				$16::numeric, $17, $18, now(), now()
			)
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				stable = EXCLUDED.stable,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				reserve_base = EXCLUDED.reserve_base,
				reserve_usd = EXCLUDED.reserve_usd,
				tracked_reserve_base = EXCLUDED.tracked_reserve_base,
				token0_price = EXCLUDED.token0_price,
				token1_price = EXCLUDED.token1_price,
				volume_token0 = EXCLUDED.volume_token0,
				volume_token1 = EXCLUDED.volume_token1,
				volume_usd = EXCLUDED.volume_usd,
				untracked_volume_usd = EXCLUDED.untracked_volume_usd,
				tx_count = EXCLUDED.tx_count,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(chainID),
			pool.ID,
			pool.Token0,
			pool.Token1,
			pool.Stable,
			pool.Reserve0.String(),
			pool.Reserve1.String(),
			pool.ReserveBase.String(),
			pool.ReserveUSD.String(),
			pool.TrackedReserveBase.String(),
			pool.Token0Price.String(),
			pool.Token1Price.String(),
			pool.VolumeToken0.String(),
			pool.VolumeToken1.String(),
			pool.VolumeUSD.String(),
			pool.UntrackedVolumeUSD.String(),
			int64(pool.TxCount),
			int64(pool.CreatedAtBlock),
		)
	}
}

// queueTokens inserts or updates token prices and counters.
func queueTokens(batch *pgx.Batch, chainID uint64, tokens []*model.Token) {
	for _, token := range tokens {
		batch.Queue(`
			INSERT INTO tokens (
				chain_id, token_address, symbol, name, decimals, derived_base,
				trade_volume, trade_volume_usd, untracked_volume_usd, total_liquidity,
				tx_count, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6::numeric,
				$7::numeric, $8::numeric, $9::numeric, $10::numeric,
				$11, now(), now()
			)
			ON CONFLICT (chain_id, token_address)
			DO UPDATE SET
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				decimals = EXCLUDED.decimals,
				derived_base = EXCLUDED.derived_base,
				trade_volume = EXCLUDED.trade_volume,
				trade_volume_usd = EXCLUDED.trade_volume_usd,
				untracked_volume_usd = EXCLUDED.untracked_volume_usd,
				total_liquidity = EXCLUDED.total_liquidity,
				tx_count = EXCLUDED.tx_count,
				updated_at = now()
		`,
			int64(chainID),
			token.ID,
			token.Symbol,
			token.Name,
			int16(token.Decimals),
			token.DerivedBase.String(),
			token.TradeVolume.String(),
			token.TradeVolumeUSD.String(),
			token.UntrackedVolumeUSD.String(),
			token.TotalLiquidity.String(),
			int64(token.TxCount),
		)
	}
}

// queueBundle upserts the USD anchor record.
func queueBundle(batch *pgx.Batch, chainID uint64, bundle *model.Bundle) {
	if bundle == nil {
		return
	}
	batch.Queue(`
		INSERT INTO bundles (chain_id, id, base_price_usd, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (chain_id, id) DO UPDATE
		SET base_price_usd = EXCLUDED.base_price_usd, updated_at = now()
	`, int64(chainID), bundle.ID, bundle.BasePriceUSD.String())
}

// LoadEntities reads every persisted entity of a chain, used to hydrate an
// entity store before resuming a replay.
func (s *Store) LoadEntities(ctx context.Context, chainID uint64) (storage.Changes, error) {
	var changes storage.Changes

	rows, err := s.pool.Query(ctx, `
		SELECT token_address, symbol, name, decimals, derived_base::text,
			trade_volume::text, trade_volume_usd::text, untracked_volume_usd::text,
			total_liquidity::text, tx_count
		FROM tokens WHERE chain_id = $1 ORDER BY token_address
	`, int64(chainID))
	if err != nil {
		return storage.Changes{}, fmt.Errorf("query tokens: %w", err)
	}
	for rows.Next() {
		var (
			token    model.Token
			decimals int16
			txCount  int64
			numbers  [5]string
		)
		if err := rows.Scan(&token.ID, &token.Symbol, &token.Name, &decimals,
			&numbers[0], &numbers[1], &numbers[2], &numbers[3], &numbers[4], &txCount); err != nil {
			rows.Close()
			return storage.Changes{}, fmt.Errorf("scan token: %w", err)
		}
		values, err := parseDecimals(numbers[:])
		if err != nil {
			rows.Close()
			return storage.Changes{}, fmt.Errorf("token %s: %w", token.ID, err)
		}
		token.Decimals = uint8(decimals)
		token.DerivedBase, token.TradeVolume, token.TradeVolumeUSD = values[0], values[1], values[2]
		token.UntrackedVolumeUSD, token.TotalLiquidity = values[3], values[4]
		token.TxCount = uint64(txCount)
		changes.Tokens = append(changes.Tokens, &token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storage.Changes{}, fmt.Errorf("read tokens: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT pool_address, token0, token1, stable,
			reserve0::text, reserve1::text, reserve_base::text, reserve_usd::text,
			tracked_reserve_base::text, token0_price::text, token1_price::text,
			volume_token0::text, volume_token1::text, volume_usd::text,
			untracked_volume_usd::text, tx_count, first_seen_block
		FROM pools WHERE chain_id = $1 ORDER BY pool_address
	`, int64(chainID))
	if err != nil {
		return storage.Changes{}, fmt.Errorf("query pools: %w", err)
	}
	for rows.Next() {
		var (
			pool      model.Pool
			txCount   int64
			firstSeen int64
			numbers   [11]string
		)
		if err := rows.Scan(&pool.ID, &pool.Token0, &pool.Token1, &pool.Stable,
			&numbers[0], &numbers[1], &numbers[2], &numbers[3], &numbers[4], &numbers[5],
			&numbers[6], &numbers[7], &numbers[8], &numbers[9], &numbers[10],
			&txCount, &firstSeen); err != nil {
			rows.Close()
			return storage.Changes{}, fmt.Errorf("scan pool: %w", err)
		}
		values, err := parseDecimals(numbers[:])
		if err != nil {
			rows.Close()
			return storage.Changes{}, fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		pool.Reserve0, pool.Reserve1, pool.ReserveBase = values[0], values[1], values[2]
		pool.ReserveUSD, pool.TrackedReserveBase = values[3], values[4]
		pool.Token0Price, pool.Token1Price = values[5], values[6]
		pool.VolumeToken0, pool.VolumeToken1, pool.VolumeUSD = values[7], values[8], values[9]
		pool.UntrackedVolumeUSD = values[10]
		pool.TxCount = uint64(txCount)
		pool.CreatedAtBlock = uint64(firstSeen)
		changes.Pools = append(changes.Pools, &pool)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storage.Changes{}, fmt.Errorf("read pools: %w", err)
	}

	var basePrice string
	row := s.pool.QueryRow(ctx, `SELECT base_price_usd::text FROM bundles WHERE chain_id = $1 AND id = $2`, int64(chainID), model.BundleID)
	if err := row.Scan(&basePrice); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return storage.Changes{}, fmt.Errorf("load bundle: %w", err)
		}
	} else {
		price, err := decimal.NewFromString(basePrice)
		if err != nil {
			return storage.Changes{}, fmt.Errorf("bundle price: %w", err)
		}
		changes.Bundle = &model.Bundle{ID: model.BundleID, BasePriceUSD: price}
	}

	return changes, nil
}

// queueWindowMetrics adds partial window metrics to the stored rows.
// Counters and volumes accumulate across checkpoints; reserves and the
// anchor are replaced by the latest snapshot.
func queueWindowMetrics(batch *pgx.Batch, metrics []model.PoolWindowMetrics) {
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, mint_count, burn_count, volume0, volume1, volume_usd,
				untracked_volume_usd, liquidity_added_usd, liquidity_removed_usd,
				reserve0, reserve1, reserve_usd, base_price_usd, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric,
				$12::numeric, $13::numeric, $14::numeric,
				$15::numeric, $16::numeric, $17::numeric, $18::numeric, now(), now()
			)
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = pool_window_metrics.swap_count + EXCLUDED.swap_count,
				mint_count = pool_window_metrics.mint_count + EXCLUDED.mint_count,
				burn_count = pool_window_metrics.burn_count + EXCLUDED.burn_count,
				volume0 = pool_window_metrics.volume0 + EXCLUDED.volume0,
				volume1 = pool_window_metrics.volume1 + EXCLUDED.volume1,
				volume_usd = pool_window_metrics.volume_usd + EXCLUDED.volume_usd,
				untracked_volume_usd = pool_window_metrics.untracked_volume_usd + EXCLUDED.untracked_volume_usd,
				liquidity_added_usd = pool_window_metrics.liquidity_added_usd + EXCLUDED.liquidity_added_usd,
				liquidity_removed_usd = pool_window_metrics.liquidity_removed_usd + EXCLUDED.liquidity_removed_usd,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				reserve_usd = EXCLUDED.reserve_usd,
				base_price_usd = EXCLUDED.base_price_usd,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.MintCount),
			int64(m.BurnCount),
			m.Volume0.String(),
			m.Volume1.String(),
			m.VolumeUSD.String(),
			m.UntrackedVolumeUSD.String(),
			m.LiquidityAddedUSD.String(),
			m.LiquidityRemovedUSD.String(),
			m.Reserve0.String(),
			m.Reserve1.String(),
			m.ReserveUSD.String(),
			m.BasePriceUSD.String(),
		)
	}
}

// DeleteWindowsFrom removes the windows of a chain starting at or after from.
func (s *Store) DeleteWindowsFrom(ctx context.Context, chainID uint64, from time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pool_window_metrics WHERE chain_id = $1 AND window_start_ts >= $2
	`, int64(chainID), from)
	if err != nil {
		return fmt.Errorf("delete windows: %w", err)
	}
	return nil
}

// LoadState returns the replay position saved under name.
func (s *Store) LoadState(ctx context.Context, name string) (model.ReplayPosition, bool, error) {
	if name == "" {
		return model.ReplayPosition{}, false, fmt.Errorf("state name required")
	}
	var ts, block, logIndex int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_ts, last_block, last_log_index FROM indexer_state WHERE name=$1
	`, name)
	if err := row.Scan(&ts, &block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReplayPosition{}, false, nil
		}
		return model.ReplayPosition{}, false, err
	}
	return model.ReplayPosition{
		Timestamp:   uint64(ts),
		BlockNumber: uint64(block),
		LogIndex:    uint64(logIndex),
	}, true, nil
}

// SaveState upserts the replay position for name.
func (s *Store) SaveState(ctx context.Context, name string, pos model.ReplayPosition) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	batch := &pgx.Batch{}
	queueState(batch, name, pos)
	return sendBatch(ctx, s.pool, batch)
}

func queueState(batch *pgx.Batch, name string, pos model.ReplayPosition) {
	batch.Queue(`
		INSERT INTO indexer_state (name, last_processed_ts, last_block, last_log_index, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts,
			last_block = EXCLUDED.last_block,
			last_log_index = EXCLUDED.last_log_index,
			updated_at = now()
	`, name, int64(pos.Timestamp), int64(pos.BlockNumber), int64(pos.LogIndex))
}

// batchSender is satisfied by both the pool and an open transaction.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, db batchSender, batch *pgx.Batch) error {
	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func parseDecimals(values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, value := range values {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", value, err)
		}
		out[i] = d
	}
	return out, nil
}
