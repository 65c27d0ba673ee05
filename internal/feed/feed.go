package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkovacs/weldstream/internal/channel"
	"github.com/dkovacs/weldstream/internal/model"
)

// Feed decodes typed telemetry frames from the channel into model rows and
// buffers them for the writers. Decode failures are logged and the frame is
// dropped; the channel itself never sees them.
type Feed struct {
	cfg    Config
	logger *slog.Logger

	assetBuf *Buffer[model.AssetData]
	alertBuf *Buffer[model.Alert]
	predBuf  *Buffer[model.Prediction]

	mu           sync.Mutex
	decoded      int64
	decodeErrors int64
	cancels      []func()
}

// New creates a Feed with buffers sized from cfg.
func New(cfg Config, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.AssetDataBufferSize <= 0 {
		cfg.AssetDataBufferSize = def.AssetDataBufferSize
	}
	if cfg.AlertBufferSize <= 0 {
		cfg.AlertBufferSize = def.AlertBufferSize
	}
	if cfg.PredictionBufferSize <= 0 {
		cfg.PredictionBufferSize = def.PredictionBufferSize
	}

	return &Feed{
		cfg:      cfg,
		logger:   logger,
		assetBuf: NewBuffer[model.AssetData](cfg.AssetDataBufferSize),
		alertBuf: NewBuffer[model.Alert](cfg.AlertBufferSize),
		predBuf:  NewBuffer[model.Prediction](cfg.PredictionBufferSize),
	}
}

// Attach registers typed handlers on the channel client. Detach removes
// them again; Close shuts the buffers so writers can drain and exit.
func (f *Feed) Attach(c *channel.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels = append(f.cancels,
		c.Handle(channel.TypeAssetData, f.onAssetData),
		c.Handle(channel.TypeAlert, f.onAlert),
		c.Handle(channel.TypePrediction, f.onPrediction),
	)
}

// Detach removes the handlers registered by Attach.
func (f *Feed) Detach() {
	f.mu.Lock()
	cancels := f.cancels
	f.cancels = nil
	f.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Close closes the output buffers. Writers drain remaining items and stop.
func (f *Feed) Close() {
	f.assetBuf.Close()
	f.alertBuf.Close()
	f.predBuf.Close()
}

// Buffers returns the decoded-message buffers for writers to consume.
func (f *Feed) Buffers() Buffers {
	return Buffers{
		AssetData:   f.assetBuf,
		Alerts:      f.alertBuf,
		Predictions: f.predBuf,
	}
}

// Stats returns decode and buffer counters.
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	decoded, errors := f.decoded, f.decodeErrors
	f.mu.Unlock()

	return Stats{
		Decoded:      decoded,
		DecodeErrors: errors,
		AssetData:    f.assetBuf.Stats(),
		Alerts:       f.alertBuf.Stats(),
		Predictions:  f.predBuf.Stats(),
	}
}

func (f *Feed) onAssetData(data []byte) {
	var wire assetDataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		f.decodeFailed("asset_data", err)
		return
	}

	f.assetBuf.Push(model.AssetData{
		AssetID:      wire.AssetID,
		ExchangeTS:   wire.Ts * 1000, // milliseconds → microseconds
		ReceivedAt:   time.Now().UnixMicro(),
		Current:      wire.Data.Current,
		Voltage:      wire.Data.Voltage,
		WireFeedRate: wire.Data.WireFeedRate,
		GasFlowRate:  wire.Data.GasFlowRate,
		Temperature:  wire.Data.Temperature,
		Status:       wire.Data.Status,
	})
	f.decodedOne()
}

func (f *Feed) onAlert(data []byte) {
	var wire alertWire
	if err := json.Unmarshal(data, &wire); err != nil {
		f.decodeFailed("alert", err)
		return
	}

	alertID, err := uuid.Parse(wire.AlertID)
	if err != nil {
		f.decodeFailed("alert", fmt.Errorf("parse alert_id: %w", err))
		return
	}
	if !model.ValidSeverity(wire.Severity) {
		f.logger.Warn("alert with unknown severity", "severity", wire.Severity)
	}

	f.alertBuf.Push(model.Alert{
		AlertID:    alertID,
		AssetID:    wire.AssetID,
		Severity:   wire.Severity,
		Code:       wire.Code,
		Message:    wire.Message,
		ExchangeTS: wire.Ts * 1000,
		ReceivedAt: time.Now().UnixMicro(),
	})
	f.decodedOne()
}

func (f *Feed) onPrediction(data []byte) {
	var wire predictionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		f.decodeFailed("prediction", err)
		return
	}

	f.predBuf.Push(model.Prediction{
		AssetID:    wire.AssetID,
		Metric:     wire.Metric,
		Value:      wire.Value,
		HorizonS:   wire.HorizonS,
		Confidence: wire.Confidence,
		ExchangeTS: wire.Ts * 1000,
		ReceivedAt: time.Now().UnixMicro(),
	})
	f.decodedOne()
}

func (f *Feed) decodedOne() {
	f.mu.Lock()
	f.decoded++
	f.mu.Unlock()
}

func (f *Feed) decodeFailed(msgType string, err error) {
	f.logger.Warn("failed to decode frame", "type", msgType, "error", err)
	f.mu.Lock()
	f.decodeErrors++
	f.mu.Unlock()
}
