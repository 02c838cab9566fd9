package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelemetryPoint is one electrical reading destined for the history store.
//
// Tags (device_id, tenant, mac, state) are low-cardinality and indexed;
// the electrical quantities go in as fields.
type TelemetryPoint struct {
	DeviceID    string
	Tenant      string
	MAC         string
	State       string
	Voltage     float64
	Current     float64
	Power       float64
	Energy      float64
	PowerFactor float64
	Lat         float64
	Lon         float64
	Timestamp   time.Time
}

// WriteTelemetry records one device reading in the telemetry measurement.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Dropped silently when the client is not connected.
func (c *Client) WriteTelemetry(p TelemetryPoint) {
	if !c.IsConnected() {
		return
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"device_id": p.DeviceID,
			"tenant":    p.Tenant,
			"mac":       p.MAC,
			"state":     p.State,
		},
		map[string]interface{}{
			"voltage":      p.Voltage,
			"current":      p.Current,
			"power":        p.Power,
			"energy":       p.Energy,
			"power_factor": p.PowerFactor,
			"lat":          p.Lat,
			"lon":          p.Lon,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteTelemetry, such as sweep
// statistics or pipeline counters.
//
// Example:
//
//	client.WritePoint("sweep_stats",
//	    map[string]string{"site": "hcm-district-7"},
//	    map[string]interface{}{"scanned": 412, "disconnected": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed or delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
