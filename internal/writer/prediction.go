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

// PredictionWriter consumes model predictions from the feed buffer and
// writes them to the predictions table. Append-only, like asset data.
type PredictionWriter struct {
	cfg    Config
	logger *slog.Logger

	input *feed.Buffer[model.Prediction]
	db    *pgxpool.Pool

	batch       []model.Prediction
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewPredictionWriter creates a new PredictionWriter.
func NewPredictionWriter(
	cfg Config,
	input *feed.Buffer[model.Prediction],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *PredictionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]model.Prediction, 0, cfg.BatchSize),
	}
}

// Start begins consuming predictions and writing to the database.
func (w *PredictionWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("prediction writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *PredictionWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping prediction writer")

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
		w.logger.Info("prediction writer stopped")
	case <-ctx.Done():
		w.logger.Warn("prediction writer stop timed out")
	}

	w.drainInput()
	w.flush(context.Background())

	return nil
}

// Stats returns current metrics.
func (w *PredictionWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *PredictionWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			pred, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.add(pred)
		}
	}
}

func (w *PredictionWriter) flushLoop() {
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

func (w *PredictionWriter) add(pred model.Prediction) {
	w.batchMu.Lock()
	w.batch = append(w.batch, pred)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func (w *PredictionWriter) drainInput() {
	remaining := w.input.Drain(0)
	if len(remaining) == 0 {
		return
	}
	w.batchMu.Lock()
	w.batch = append(w.batch, remaining...)
	w.batchMu.Unlock()
}

func (w *PredictionWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Prediction, 0, w.cfg.BatchSize)
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

	w.logger.Debug("flushed predictions",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (w *PredictionWriter) batchInsert(ctx context.Context, rows []model.Prediction) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO predictions (asset_id, metric, value, horizon_s, confidence, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.AssetID, r.Metric, r.Value, r.HorizonS, r.Confidence, r.ExchangeTS, r.ReceivedAt)
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
