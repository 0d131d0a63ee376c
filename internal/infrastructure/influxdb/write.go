package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteActivationMetric records a completed or failed watering activation.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - solenoidID: The solenoid that watered
//   - cause: What started the run ("schedule" or "manual")
//   - status: Terminal status ("completed", "failed", "cancelled")
//   - seconds: Actual on-time in seconds
//
// Example:
//
//	client.WriteActivationMetric("sol-bed-1", "schedule", "completed", 900)
func (c *Client) WriteActivationMetric(solenoidID, cause, status string, seconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"activations",
		map[string]string{
			"solenoid_id": solenoidID,
			"cause":       cause,
			"status":      status,
		},
		map[string]interface{}{
			"duration_seconds": seconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteValveState records an observed valve state change.
//
// Parameters:
//   - solenoidID: The solenoid whose valve changed
//   - on: true when the valve reported ON
func (c *Client) WriteValveState(solenoidID string, on bool) {
	if !c.IsConnected() {
		return
	}

	state := 0
	if on {
		state = 1
	}

	point := write.NewPoint(
		"valve_state",
		map[string]string{
			"solenoid_id": solenoidID,
		},
		map[string]interface{}{
			"on": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSchedulerTick records scheduler loop statistics for one tick.
//
// Parameters:
//   - fired: Occurrences fired this tick
//   - skipped: Occurrences skipped as beyond the grace window
func (c *Client) WriteSchedulerTick(fired, skipped int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scheduler_ticks",
		nil,
		map[string]interface{}{
			"fired":   fired,
			"skipped": skipped,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
