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

// AlertWriter consumes alerts from the feed buffer and writes them to the
// alerts table. Alert ids are server-assigned, so replays after a reconnect
// dedupe on the primary key.
type AlertWriter struct {
	cfg    Config
	logger *slog.Logger

	input *feed.Buffer[model.Alert]
	db    *pgxpool.Pool

	batch       []model.Alert
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewAlertWriter creates a new AlertWriter.
func NewAlertWriter(
	cfg Config,
	input *feed.Buffer[model.Alert],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *AlertWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]model.Alert, 0, cfg.BatchSize),
	}
}

// Start begins consuming alerts and writing to the database.
func (w *AlertWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("alert writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *AlertWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping alert writer")

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
		w.logger.Info("alert writer stopped")
	case <-ctx.Done():
		w.logger.Warn("alert writer stop timed out")
	}

	w.drainInput()
	w.flush(context.Background())

	return nil
}

// Stats returns current metrics.
func (w *AlertWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *AlertWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			alert, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.add(alert)
		}
	}
}

func (w *AlertWriter) flushLoop() {
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

func (w *AlertWriter) add(alert model.Alert) {
	w.batchMu.Lock()
	w.batch = append(w.batch, alert)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func (w *AlertWriter) drainInput() {
	remaining := w.input.Drain(0)
	if len(remaining) == 0 {
		return
	}
	w.batchMu.Lock()
	w.batch = append(w.batch, remaining...)
	w.batchMu.Unlock()
}

func (w *AlertWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Alert, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed alerts",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *AlertWriter) batchInsert(ctx context.Context, rows []model.Alert) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO alerts (alert_id, asset_id, severity, code, message, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (alert_id) DO NOTHING
		`, r.AlertID, r.AssetID, r.Severity, r.Code, r.Message, r.ExchangeTS, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
