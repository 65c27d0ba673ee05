package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovacs/weldstream/internal/feed"
	"github.com/dkovacs/weldstream/internal/model"
)

// AssetDataWriter consumes telemetry samples from the feed buffer and
// writes them to the asset_data hypertable. Samples are append-only.
type AssetDataWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the feed
	input *feed.Buffer[model.AssetData]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []model.AssetData
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewAssetDataWriter creates a new AssetDataWriter.
func NewAssetDataWriter(
	cfg Config,
	input *feed.Buffer[model.AssetData],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *AssetDataWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetDataWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]model.AssetData, 0, cfg.BatchSize),
	}
}

// Start begins consuming samples and writing to the database.
func (w *AssetDataWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("asset data writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *AssetDataWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping asset data writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("asset data writer stopped")
	case <-ctx.Done():
		w.logger.Warn("asset data writer stop timed out")
	}

	// Final flush of whatever is left
	w.drainInput()
	w.flush(context.Background())

	return nil
}

// Stats returns current metrics.
func (w *AssetDataWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *AssetDataWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			sample, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.add(sample)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *AssetDataWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *AssetDataWriter) add(sample model.AssetData) {
	w.batchMu.Lock()
	w.batch = append(w.batch, sample)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// drainInput moves any remaining buffered samples into the batch.
func (w *AssetDataWriter) drainInput() {
	remaining := w.input.Drain(0)
	if len(remaining) == 0 {
		return
	}
	w.batchMu.Lock()
	w.batch = append(w.batch, remaining...)
	w.batchMu.Unlock()
}

// flush writes the current batch to the database.
func (w *AssetDataWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.AssetData, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed asset data",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *AssetDataWriter) batchInsert(ctx context.Context, rows []model.AssetData) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO asset_data (asset_id, exchange_ts, received_at, current, voltage, wire_feed_rate, gas_flow_rate, temperature, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.AssetID, r.ExchangeTS, r.ReceivedAt, r.Current, r.Voltage, r.WireFeedRate, r.GasFlowRate, r.Temperature, r.Status)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
