// Package influxdb provides time-series telemetry for Verdant Core.
//
// Watering history lives in SQLite; InfluxDB holds the derived metrics
// used for dashboards and long-range analysis:
//   - Activation durations by solenoid, cause and terminal status
//   - Observed valve state transitions
//   - Scheduler tick statistics (fired vs skipped occurrences)
//
// Writes are batched and asynchronous. Telemetry is best-effort: if the
// InfluxDB endpoint is unreachable the core keeps scheduling and the
// points are dropped, never queued to disk.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Warn("telemetry disabled", "error", err)
//	}
//	defer client.Close()
//
//	client.WriteActivationMetric("sol-bed-1", "schedule", "completed", 900)
package influxdb
