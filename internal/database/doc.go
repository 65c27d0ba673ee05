// Package database provides connection pool management for the TimescaleDB
// telemetry archive (asset_data and alerts hypertables).
package database
