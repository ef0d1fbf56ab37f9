package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairScope/internal/model"
	"pairScope/internal/pricing"
	"pairScope/internal/storage"
)

// ErrUnsupportedEvent marks records the replay does not handle.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Effect is what one applied event contributes to its pool window.
type Effect struct {
	Event              string
	Amount0            decimal.Decimal
	Amount1            decimal.Decimal
	VolumeUSD          decimal.Decimal
	UntrackedVolumeUSD decimal.Decimal
	LiquidityUSD       decimal.Decimal
	BasePriceUSD       decimal.Decimal
	Pool               model.Pool
	Unpriced           int
}

// Handler applies pair events to entities inside a storage.Tx.
type Handler struct {
	rules    *pricing.Rules
	resolver pricing.PoolResolver
	tokens   *TokenMetaSource
	logger   *zap.Logger
}

// BlockResolver is a PoolResolver that can answer as of a block. The
// handler pins it to each event's block.
type BlockResolver interface {
	AtBlock(block uint64) pricing.PoolResolver
}

// NewHandler builds a handler. A nil resolver resolves pairs from the
// entity store itself, which only knows pairs already seen in the replay.
func NewHandler(rules *pricing.Rules, resolver pricing.PoolResolver, tokens *TokenMetaSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		rules:    rules,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger,
	}
}

type pairState struct {
	pool   *model.Pool
	token0 *model.Token
	token1 *model.Token
}

// Apply runs one event against tx. Nothing is committed here; on error the
// caller discards tx.
func (h *Handler) Apply(ctx context.Context, tx *storage.Tx, record model.TypedEventRecord) (Effect, error) {
	name := eventName(record.EventName)
	if name == "" {
		return Effect{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, record.EventName)
	}

	var resolver pricing.PoolResolver = tx
	if h.resolver != nil {
		resolver = h.resolver
		if pinned, ok := h.resolver.(BlockResolver); ok {
			resolver = pinned.AtBlock(record.BlockNumber)
		}
	}
	pricer := pricing.NewPricer(h.rules, tx, resolver, h.logger)

	pair, err := h.ensurePair(ctx, tx, record)
	if err != nil {
		return Effect{}, err
	}

	var effect Effect
	switch name {
	case model.EventSync:
		effect, err = h.applySync(ctx, tx, pricer, pair, record.Decoded)
	case model.EventSwap:
		effect, err = h.applySwap(ctx, tx, pricer, pair, record.Decoded)
	case model.EventMint:
		var data model.MintEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return Effect{}, fmt.Errorf("decode mint: %w", err)
		}
		effect, err = h.applyLiquidity(ctx, tx, pair, data.Amount0, data.Amount1)
	case model.EventBurn:
		var data model.BurnEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return Effect{}, fmt.Errorf("decode burn: %w", err)
		}
		effect, err = h.applyLiquidity(ctx, tx, pair, data.Amount0, data.Amount1)
	}
	if err != nil {
		return Effect{}, err
	}

	effect.Event = name
	effect.Pool = *pair.pool.Clone()
	return effect, nil
}

// ensurePair loads the pool and both tokens, creating them from the event's
// pair metadata the first time the pool is seen.
func (h *Handler) ensurePair(ctx context.Context, tx *storage.Tx, record model.TypedEventRecord) (pairState, error) {
	poolID, err := model.ParseAddressKey(record.Address)
	if err != nil {
		return pairState{}, fmt.Errorf("%w: pool: %v", pricing.ErrInvalidAddress, err)
	}

	pool, ok, err := tx.Pool(ctx, poolID)
	if err != nil {
		return pairState{}, fmt.Errorf("load pool %s: %w", poolID, err)
	}
	if ok {
		token0, err := loadToken(ctx, tx, pool.Token0)
		if err != nil {
			return pairState{}, err
		}
		token1, err := loadToken(ctx, tx, pool.Token1)
		if err != nil {
			return pairState{}, err
		}
		return pairState{pool: pool, token0: token0, token1: token1}, nil
	}

	meta := record.Pair
	if !meta.Complete() {
		return pairState{}, fmt.Errorf("pair %s: token metadata missing", poolID)
	}
	id0, err := model.ParseAddressKey(meta.Token0)
	if err != nil {
		return pairState{}, fmt.Errorf("%w: token0: %v", pricing.ErrInvalidAddress, err)
	}
	id1, err := model.ParseAddressKey(meta.Token1)
	if err != nil {
		return pairState{}, fmt.Errorf("%w: token1: %v", pricing.ErrInvalidAddress, err)
	}

	token0, err := h.loadOrCreateToken(ctx, tx, id0, model.TokenMeta{Address: id0, Decimals: meta.Decimals0, Symbol: meta.Symbol0})
	if err != nil {
		return pairState{}, err
	}
	token1, err := h.loadOrCreateToken(ctx, tx, id1, model.TokenMeta{Address: id1, Decimals: meta.Decimals1, Symbol: meta.Symbol1})
	if err != nil {
		return pairState{}, err
	}

	pool = &model.Pool{
		ID:             poolID,
		Token0:         id0,
		Token1:         id1,
		Stable:         meta.Stable,
		CreatedAtBlock: record.BlockNumber,
	}
	if h.rules.IsReferencePool(poolID) && !pool.Has(h.rules.BaseAsset()) {
		return pairState{}, fmt.Errorf("%w: reference pool %s does not hold base asset %s", pricing.ErrInvalidConfig, poolID, h.rules.BaseAsset())
	}
	tx.PutPool(pool)
	h.logger.Debug("pair created", zap.String("pool", poolID), zap.String("token0", id0), zap.String("token1", id1), zap.Bool("stable", meta.Stable))

	return pairState{pool: pool, token0: token0, token1: token1}, nil
}

func (h *Handler) loadOrCreateToken(ctx context.Context, tx *storage.Tx, id string, meta model.TokenMeta) (*model.Token, error) {
	token, ok, err := tx.Token(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", id, err)
	}
	if ok {
		return token, nil
	}
	h.tokens.Enrich(ctx, id, &meta)
	token = model.NewToken(id, meta)
	tx.PutToken(token)
	return token, nil
}

func loadToken(ctx context.Context, tx *storage.Tx, id string) (*model.Token, error) {
	token, ok, err := tx.Token(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, pricing.ErrNotFound)
	}
	return token, nil
}

func loadBundle(ctx context.Context, tx *storage.Tx) (*model.Bundle, error) {
	bundle, ok, err := tx.Bundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	if !ok {
		return model.NewBundle(), nil
	}
	return bundle, nil
}

// applySync replaces the reserves, refreshes the anchor and both derived
// prices, then revalues the pool.
func (h *Handler) applySync(ctx context.Context, tx *storage.Tx, pricer *pricing.Pricer, pair pairState, raw json.RawMessage) (Effect, error) {
	var data model.SyncEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Effect{}, fmt.Errorf("decode sync: %w", err)
	}
	reserve0, err := scaleAmount(data.Reserve0, pair.token0.Decimals)
	if err != nil {
		return Effect{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := scaleAmount(data.Reserve1, pair.token1.Decimals)
	if err != nil {
		return Effect{}, fmt.Errorf("reserve1: %w", err)
	}

	pool, token0, token1 := pair.pool, pair.token0, pair.token1

	token0.TotalLiquidity = token0.TotalLiquidity.Sub(pool.Reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Sub(pool.Reserve1)

	pool.Reserve0 = reserve0
	pool.Reserve1 = reserve1
	pool.SyncPrices()

	bundle, err := loadBundle(ctx, tx)
	if err != nil {
		return Effect{}, err
	}
	basePrice, err := pricer.BaseAssetUSDPrice(ctx)
	if err != nil {
		return Effect{}, fmt.Errorf("base asset price: %w", err)
	}
	bundle.BasePriceUSD = basePrice
	tx.PutBundle(bundle)

	var effect Effect
	for _, token := range []*model.Token{token0, token1} {
		derived, err := pricer.BaseAssetPerToken(ctx, token)
		if err != nil {
			return Effect{}, fmt.Errorf("price token %s: %w", token.ID, err)
		}
		token.DerivedBase = derived
		if derived.IsZero() {
			effect.Unpriced++
		}
	}

	trackedUSD := pricer.TrackedLiquidityUSD(bundle, reserve0, token0, reserve1, token1)
	pool.TrackedReserveBase = decimal.Zero
	if !basePrice.IsZero() {
		pool.TrackedReserveBase = trackedUSD.DivRound(basePrice, model.PriceScale)
	}
	pool.ReserveBase = reserve0.Mul(token0.DerivedBase).Add(reserve1.Mul(token1.DerivedBase))
	pool.ReserveUSD = pool.ReserveBase.Mul(basePrice)

	token0.TotalLiquidity = token0.TotalLiquidity.Add(reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Add(reserve1)

	tx.PutPool(pool)
	tx.PutToken(token0)
	tx.PutToken(token1)

	effect.BasePriceUSD = basePrice
	return effect, nil
}

// applySwap books trade volume on the pool and both tokens.
func (h *Handler) applySwap(ctx context.Context, tx *storage.Tx, pricer *pricing.Pricer, pair pairState, raw json.RawMessage) (Effect, error) {
	var data model.SwapEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Effect{}, fmt.Errorf("decode swap: %w", err)
	}
	legs0, err := scaleAmounts(pair.token0.Decimals, data.Amount0In, data.Amount0Out)
	if err != nil {
		return Effect{}, fmt.Errorf("amount0: %w", err)
	}
	legs1, err := scaleAmounts(pair.token1.Decimals, data.Amount1In, data.Amount1Out)
	if err != nil {
		return Effect{}, fmt.Errorf("amount1: %w", err)
	}
	amount0 := legs0[0].Add(legs0[1])
	amount1 := legs1[0].Add(legs1[1])

	bundle, err := loadBundle(ctx, tx)
	if err != nil {
		return Effect{}, err
	}

	pool, token0, token1 := pair.pool, pair.token0, pair.token1
	tracked := pricer.TrackedVolumeUSD(bundle, amount0, token0, amount1, token1, pool)
	untracked := pricer.UntrackedVolumeUSD(bundle, amount0, token0, amount1, token1)

	token0.TradeVolume = token0.TradeVolume.Add(amount0)
	token0.TradeVolumeUSD = token0.TradeVolumeUSD.Add(tracked)
	token0.UntrackedVolumeUSD = token0.UntrackedVolumeUSD.Add(untracked)
	token0.TxCount++

	token1.TradeVolume = token1.TradeVolume.Add(amount1)
	token1.TradeVolumeUSD = token1.TradeVolumeUSD.Add(tracked)
	token1.UntrackedVolumeUSD = token1.UntrackedVolumeUSD.Add(untracked)
	token1.TxCount++

	pool.VolumeToken0 = pool.VolumeToken0.Add(amount0)
	pool.VolumeToken1 = pool.VolumeToken1.Add(amount1)
	pool.VolumeUSD = pool.VolumeUSD.Add(tracked)
	pool.UntrackedVolumeUSD = pool.UntrackedVolumeUSD.Add(untracked)
	pool.TxCount++

	tx.PutPool(pool)
	tx.PutToken(token0)
	tx.PutToken(token1)

	return Effect{
		Amount0:            amount0,
		Amount1:            amount1,
		VolumeUSD:          tracked,
		UntrackedVolumeUSD: untracked,
		BasePriceUSD:       bundle.BasePriceUSD,
	}, nil
}

// applyLiquidity values a mint or burn at derived prices.
func (h *Handler) applyLiquidity(ctx context.Context, tx *storage.Tx, pair pairState, raw0, raw1 string) (Effect, error) {
	amount0, err := scaleAmount(raw0, pair.token0.Decimals)
	if err != nil {
		return Effect{}, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := scaleAmount(raw1, pair.token1.Decimals)
	if err != nil {
		return Effect{}, fmt.Errorf("amount1: %w", err)
	}

	bundle, err := loadBundle(ctx, tx)
	if err != nil {
		return Effect{}, err
	}

	pool, token0, token1 := pair.pool, pair.token0, pair.token1
	amountBase := amount0.Mul(token0.DerivedBase).Add(amount1.Mul(token1.DerivedBase))

	pool.TxCount++
	token0.TxCount++
	token1.TxCount++
	tx.PutPool(pool)
	tx.PutToken(token0)
	tx.PutToken(token1)

	return Effect{
		Amount0:      amount0,
		Amount1:      amount1,
		LiquidityUSD: amountBase.Mul(bundle.BasePriceUSD),
		BasePriceUSD: bundle.BasePriceUSD,
	}, nil
}

func eventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "swap":
		return model.EventSwap
	case "sync":
		return model.EventSync
	case "mint":
		return model.EventMint
	case "burn":
		return model.EventBurn
	default:
		return ""
	}
}
