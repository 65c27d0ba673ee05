package model

import "github.com/google/uuid"

// AssetData is one telemetry sample from a welding asset.
type AssetData struct {
	AssetID      int     // Asset identifier (matches channel topic id)
	ExchangeTS   int64   // Server timestamp (µs since epoch)
	ReceivedAt   int64   // Collector receive timestamp (µs since epoch)
	Current      float64 // Welding current (A)
	Voltage      float64 // Arc voltage (V)
	WireFeedRate float64 // Wire feed speed (m/min)
	GasFlowRate  float64 // Shielding gas flow (L/min)
	Temperature  float64 // Torch temperature (°C)
	Status       string  // Reported status: idle, welding, fault, maintenance
}

// Alert is an equipment alarm pushed by the server.
type Alert struct {
	AlertID    uuid.UUID // Primary key (from the server)
	AssetID    int       // Asset that raised the alarm
	Severity   string    // "info", "warning", "critical"
	Code       string    // Machine-readable alarm code (e.g. "GAS_LOW")
	Message    string    // Human-readable description
	ExchangeTS int64     // Server timestamp (µs since epoch)
	ReceivedAt int64     // Collector receive timestamp (µs since epoch)
}

// Prediction is a model-generated forecast for an asset metric.
type Prediction struct {
	AssetID    int     // Asset the forecast applies to
	Metric     string  // Forecasted metric (e.g. "wire_remaining_m")
	Value      float64 // Predicted value at the horizon
	HorizonS   int     // Forecast horizon (seconds)
	Confidence float64 // Model confidence in [0, 1]
	ExchangeTS int64   // Server timestamp (µs since epoch)
	ReceivedAt int64   // Collector receive timestamp (µs since epoch)
}

// KnownSeverities are the alert severities the server emits today.
var KnownSeverities = []string{"info", "warning", "critical"}

// ValidSeverity reports whether s is a known alert severity.
func ValidSeverity(s string) bool {
	for _, known := range KnownSeverities {
		if s == known {
			return true
		}
	}
	return false
}
