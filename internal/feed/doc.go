// Package feed decodes telemetry frames into model rows and buffers them
// for the batch writers.
//
// The feed sits between the channel client and the writers:
//   - asset_data → Buffer[model.AssetData]
//   - alert → Buffer[model.Alert]
//   - prediction → Buffer[model.Prediction]
//
// Buffers grow instead of dropping, so a slow database stalls disk writes,
// not the live channel.
package feed
