// Package eventbus provides the Redis pub/sub event bus connecting the
// telemetry pipeline to the viewer fan-out layer.
//
// Events are JSON payloads on tenant-scoped channels following a
// prefix:tenant convention:
//
//	device_status:{tenant}  full merged device record on state change
//	alert:{tenant}          fully-qualified alert on a new fault transition
//
// Subscribers register trailing-wildcard patterns (device_status:*,
// alert:*) and receive events for every tenant; the fan-out layer filters
// per tenant itself.
//
// # Delivery Semantics
//
// At-most-once, best-effort. The dispatch loop drains one pub/sub
// connection; on transport failure it discards the broken connection,
// waits a fixed backoff, and re-subscribes to every registered pattern.
// Events published during the outage are lost - newly connected viewers
// recover via state snapshots, not replay.
package eventbus
