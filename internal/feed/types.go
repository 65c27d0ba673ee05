package feed

import "github.com/dkovacs/weldstream/internal/model"

// Config holds feed buffer sizes.
type Config struct {
	AssetDataBufferSize  int // Default: 5000
	AlertBufferSize      int // Default: 1000
	PredictionBufferSize int // Default: 1000
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		AssetDataBufferSize:  5000,
		AlertBufferSize:      1000,
		PredictionBufferSize: 1000,
	}
}

// Buffers provides access to the decoded-message buffers consumed by
// writers.
type Buffers struct {
	AssetData   *Buffer[model.AssetData]
	Alerts      *Buffer[model.Alert]
	Predictions *Buffer[model.Prediction]
}

// Stats contains decode counters.
type Stats struct {
	Decoded      int64
	DecodeErrors int64
	AssetData    BufferStats
	Alerts       BufferStats
	Predictions  BufferStats
}

// Wire formats for inbound telemetry payloads. Timestamps arrive as epoch
// milliseconds and are stored as microseconds.

type assetDataWire struct {
	Type    string `json:"type"`
	AssetID int    `json:"asset_id"`
	Ts      int64  `json:"ts"`
	Data    struct {
		Current      float64 `json:"current"`
		Voltage      float64 `json:"voltage"`
		WireFeedRate float64 `json:"wire_feed_rate"`
		GasFlowRate  float64 `json:"gas_flow_rate"`
		Temperature  float64 `json:"temperature"`
		Status       string  `json:"status"`
	} `json:"data"`
}

type alertWire struct {
	Type     string `json:"type"`
	AlertID  string `json:"alert_id"`
	AssetID  int    `json:"asset_id"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Ts       int64  `json:"ts"`
}

type predictionWire struct {
	Type       string  `json:"type"`
	AssetID    int     `json:"asset_id"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	HorizonS   int     `json:"horizon_s"`
	Confidence float64 `json:"confidence"`
	Ts         int64   `json:"ts"`
}
