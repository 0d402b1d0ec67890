// Package influxdb records breezer telemetry to InfluxDB 2.x.
//
// The client wraps the official influxdb-client-go library and writes
// two measurements: per-device climate samples (room temperature,
// humidity, fan speed) and per-cycle poll statistics. Writes are
// asynchronous and batched by the underlying write API, so a slow or
// unavailable InfluxDB never blocks the poll loop.
//
// The integration is optional. When disabled in configuration every
// write method returns ErrDisabled and callers are expected to carry
// on without time-series recording.
package influxdb
