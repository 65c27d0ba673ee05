// Package writer implements batch writers for the telemetry archive.
//
// Writers:
//   - Asset data writer (TimescaleDB hypertable, append-only)
//   - Alert writer (TimescaleDB, deduped on alert_id)
//   - Prediction writer (TimescaleDB, append-only)
//
// Each writer drains a feed buffer, accumulates rows, and flushes with
// pgx.Batch either when the batch fills or on a flush ticker.
package writer
