package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"pairScope/internal/metrics"
	"pairScope/internal/model"
	"pairScope/internal/storage"
)

// Config controls the price replay.
type Config struct {
	ChainID       uint64
	WindowSeconds uint64
	// BatchSize is the number of applied events between checkpoints.
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink persists replay output. Checkpoint must be atomic.
type Sink interface {
	Checkpoint(ctx context.Context, cp storage.Checkpoint) error
	DeleteWindowsFrom(ctx context.Context, chainID uint64, from time.Time) error
}

// NamedState is a StateStore whose position the sink writes inside
// Checkpoint under StateName.
type NamedState interface {
	StateName() string
}

// Summary reports the counters of one run. Restored events were already
// in the saved windows and only rebuilt entity state.
type Summary struct {
	Total    int
	Applied  int
	Restored int
	Skipped  int
	Failed   int
	Windows  int
	Position model.ReplayPosition
}

// Aggregator replays typed pair events through the pricing rules, one
// storage.Tx per event, and rolls the results into pool windows.
//
// Event writes stay in an overlay until a checkpoint. A checkpoint commits
// windows, entity rows and the state position through the sink first and
// then flushes the overlay into the entity store with the same position.
// The entity store therefore never runs ahead of the saved state; when it
// lags behind, the lagging events are replayed into entities only.
type Aggregator struct {
	cfg      Config
	entities storage.EntityStore
	overlay  *storage.Overlay
	handler  *Handler
	sink     Sink
	metrics  *metrics.Pipeline
	logger   *zap.Logger

	accumulators map[string]*Accumulator
	pending      []model.PoolWindowMetrics
	position     model.ReplayPosition
	saved        model.ReplayPosition
	hasSaved     bool
	chainID      uint64
	unsaved      int
}

func NewAggregator(cfg Config, entities storage.EntityStore, handler *Handler, sink Sink, pipeline *metrics.Pipeline, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		entities:     entities,
		handler:      handler,
		sink:         sink,
		metrics:      pipeline,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		chainID:      cfg.ChainID,
	}
}

// Run replays a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Summary, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return a.RunReader(ctx, file)
}

// RunReader replays typed events read from r. Events covered by both the
// saved state and the entity store position are skipped; events covered
// only by the state rebuild entities without touching windows. With
// RecomputeFrom set, replay restarts at that window and its stored windows
// are dropped first.
func (a *Aggregator) RunReader(ctx context.Context, r io.Reader) (Summary, error) {
	if a.entities == nil {
		return Summary{}, fmt.Errorf("entity store is nil")
	}
	if a.handler == nil {
		return Summary{}, fmt.Errorf("handler is nil")
	}
	if a.sink == nil {
		return Summary{}, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return Summary{}, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}
	a.overlay = storage.NewOverlay(a.entities)

	var (
		recomputeFrom uint64
		entityPos     model.ReplayPosition
		hasEntityPos  bool
	)
	if a.cfg.RecomputeFrom > 0 {
		if a.cfg.ChainID == 0 {
			return Summary{}, fmt.Errorf("chain id is required to recompute")
		}
		recomputeFrom = windowStart(a.cfg.RecomputeFrom, a.cfg.WindowSeconds)
		if err := a.sink.DeleteWindowsFrom(ctx, a.cfg.ChainID, time.Unix(int64(recomputeFrom), 0).UTC()); err != nil {
			return Summary{}, err
		}
		a.logger.Info("recompute windows", zap.Uint64("from", recomputeFrom))
	} else {
		var err error
		entityPos, hasEntityPos, err = a.entities.Position(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("load entity position: %w", err)
		}
		if hasEntityPos {
			a.position = entityPos
		}
		if err := a.loadState(ctx, entityPos, hasEntityPos); err != nil {
			return Summary{}, err
		}
	}

	a.logger.Info("price start", zap.Uint64("window_seconds", a.cfg.WindowSeconds), zap.Int("batch_size", a.cfg.BatchSize))

	var summary Summary
	err := storage.ScanJSONL(r, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			summary.Failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}

		if (recomputeFrom > 0 && record.Timestamp < recomputeFrom) ||
			(hasEntityPos && entityPos.Covers(record.BlockNumber, record.LogIndex)) {
			summary.Skipped++
			a.metrics.Skipped()
			return nil
		}
		restore := a.hasSaved && a.saved.Covers(record.BlockNumber, record.LogIndex)

		result, err := a.applyRecord(ctx, record, restore)
		if err != nil {
			return err
		}
		switch result {
		case outcomeSkipped:
			summary.Skipped++
			return nil
		case outcomeFailed:
			summary.Failed++
			return nil
		}
		if restore {
			summary.Restored++
		} else {
			summary.Applied++
		}

		if a.unsaved >= a.cfg.BatchSize {
			written, err := a.checkpoint(ctx)
			if err != nil {
				return err
			}
			summary.Windows += written
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	written, err := a.checkpoint(ctx)
	if err != nil {
		return summary, err
	}
	summary.Windows += written
	summary.Position = a.position

	a.logger.Info("price complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("restored", summary.Restored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("windows", summary.Windows),
	)

	return summary, nil
}

// loadState reads the saved state and checks it against the entity store
// position.
func (a *Aggregator) loadState(ctx context.Context, entityPos model.ReplayPosition, hasEntityPos bool) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	pos, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if hasEntityPos && (!ok || !pos.Covers(entityPos.BlockNumber, entityPos.LogIndex)) {
		return fmt.Errorf("entity store at block %d log %d is ahead of the saved state", entityPos.BlockNumber, entityPos.LogIndex)
	}
	if !ok {
		return nil
	}

	a.saved, a.hasSaved = pos, true
	a.position = pos
	a.logger.Info("resume from state", zap.Uint64("block", pos.BlockNumber), zap.Uint64("log_index", pos.LogIndex))
	if !hasEntityPos || entityPos != pos {
		a.logger.Warn("entity store behind state, restoring entities",
			zap.Uint64("entity_block", entityPos.BlockNumber),
			zap.Uint64("state_block", pos.BlockNumber),
		)
	}
	return nil
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeSkipped
	outcomeFailed
)

// applyRecord runs one event in its own transaction. Event-level failures
// discard the transaction and are counted; only a failed commit aborts
// the run. With restore set the event only updates entities.
func (a *Aggregator) applyRecord(ctx context.Context, record model.TypedEventRecord, restore bool) (outcome, error) {
	tx := storage.NewTx(a.overlay)
	effect, err := a.handler.Apply(ctx, tx, record)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrUnsupportedEvent) {
			a.metrics.Skipped()
			a.logger.Debug("skip event", zap.String("event", record.EventName), zap.String("tx", record.TxHash))
			return outcomeSkipped, nil
		}
		a.metrics.Failed(record.EventName)
		a.logger.Warn("price event",
			zap.Error(err),
			zap.String("pool", record.Address),
			zap.String("event", record.EventName),
			zap.String("tx", record.TxHash),
			zap.Uint64("log_index", record.LogIndex),
		)
		return outcomeFailed, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return outcomeFailed, fmt.Errorf("commit %s:%d: %w", record.TxHash, record.LogIndex, err)
	}

	if a.chainID == 0 {
		a.chainID = record.ChainID
	}
	a.position = model.ReplayPosition{
		Timestamp:   record.Timestamp,
		BlockNumber: record.BlockNumber,
		LogIndex:    record.LogIndex,
	}
	a.unsaved++
	if restore {
		return outcomeApplied, nil
	}

	a.metrics.Processed(effect.Event)
	for i := 0; i < effect.Unpriced; i++ {
		a.metrics.Unpriced()
	}
	if effect.Event == model.EventSync {
		a.metrics.Anchor(effect.BasePriceUSD.InexactFloat64(), record.Timestamp)
	}

	a.accumulate(record, effect)
	return outcomeApplied, nil
}

func (a *Aggregator) accumulate(record model.TypedEventRecord, effect Effect) {
	start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	end := start + a.cfg.WindowSeconds

	key := poolKey(record.Address)
	acc := a.accumulators[key]
	if acc != nil && acc.WindowStart != start {
		a.pending = append(a.pending, acc.Metrics())
		acc = nil
	}
	if acc == nil {
		acc = NewAccumulator(record, start, end)
		acc.ChainID = a.chainID
		a.accumulators[key] = acc
	}
	acc.Add(record, effect)
}

// checkpoint writes every window touched so far, the entities changed
// since the last checkpoint and the replay position. Open windows are
// written as partial rows; the sink adds later partials to them.
func (a *Aggregator) checkpoint(ctx context.Context) (int, error) {
	if a.unsaved == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		a.pending = append(a.pending, a.accumulators[key].Metrics())
	}
	a.accumulators = make(map[string]*Accumulator)

	cp := storage.Checkpoint{
		ChainID:  a.chainID,
		Windows:  a.pending,
		Entities: a.overlay.Changes(),
		Position: a.position,
	}
	saveState := a.cfg.StateStore != nil && !(a.hasSaved && a.saved.Covers(a.position.BlockNumber, a.position.LogIndex))
	if named, ok := a.cfg.StateStore.(NamedState); ok && saveState {
		cp.State = named.StateName()
	}

	if err := a.sink.Checkpoint(ctx, cp); err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	written := len(a.pending)
	if written > 0 {
		a.metrics.Flushed(written)
	}
	a.pending = nil

	if saveState && cp.State == "" {
		if err := a.cfg.StateStore.Save(ctx, a.position); err != nil {
			return 0, fmt.Errorf("save state: %w", err)
		}
	}
	if saveState {
		a.saved, a.hasSaved = a.position, true
	}

	if err := a.overlay.Flush(ctx, a.position); err != nil {
		return 0, err
	}
	a.unsaved = 0
	return written, nil
}
