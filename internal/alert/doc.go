// Package alert owns the fault-alerting path: dedup, durable logging,
// live publication, and idle detection.
//
// # Dedup Rule
//
// The classifier runs on every telemetry report, but an alert is raised
// only on a fault transition: severity must be non-normal AND the derived
// state must differ from the previously cached state. A streetlight that
// stays dark all night produces one alert, not one per report.
//
// # Idle Sweep
//
// Devices fail silently - a dead controller stops reporting rather than
// reporting a fault. The sweep scans the live store on a fixed cadence
// and transitions any device whose telemetry gap exceeds the idle timeout
// to Disconnected with a critical alert. Already-disconnected devices get
// their last-seen rewound just past the deadline so a continuous idle
// period alerts exactly once.
//
// # Durability
//
// Alerts append to a per-tenant SQLite log and publish on the tenant's
// alert channel. The two sinks fail independently: a dead log never
// suppresses the live push.
package alert
