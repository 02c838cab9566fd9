// Package influxdb provides the optional telemetry history store.
//
// Every normalized device reading that enters the pipeline is mirrored here
// as a time-series point, giving dashboards and reports access to history
// beyond the TTL-bound Redis cache.
//
// # Design
//
//   - Writes are non-blocking and batched (WriteAPI with configurable batch
//     size and flush interval).
//   - History is best-effort: if InfluxDB is unreachable, points are dropped
//     and the live pipeline is unaffected.
//   - The integration is optional; when disabled in config, Connect returns
//     ErrDisabled and callers run without a history store.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // continue without history
//	}
//	defer client.Close()
//
//	client.WriteTelemetry(influxdb.TelemetryPoint{
//	    DeviceID: "d3f1...",
//	    Tenant:   "project-7",
//	    MAC:      "a1b2c3d4e5f6",
//	    Voltage:  231.4,
//	    Power:    47.8,
//	})
package influxdb
