// Package model defines shared data types used across the collector.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: int for asset ids, uuid.UUID for alert ids
//   - Physical units noted per field (A, V, m/min, L/min, °C)
package model
