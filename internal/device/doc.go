// Package device holds the live device state store and the durable device
// catalog.
//
// # Two Views of a Device
//
// The Catalog (SQLite) is the authoritative registry: identity, tenant
// ownership, and operating configuration. The Store (Redis) is the live
// view: catalog config merged with the latest telemetry, the derived
// operating state, and a last-seen timestamp, under a TTL refreshed on
// every write.
//
// Absence from the Store means "unknown to the live system" - the device
// may still exist in the Catalog. The Store is warmed from the Catalog at
// startup and re-seeded on cache miss when telemetry arrives.
//
// # Failure Semantics
//
// A Redis outage must never crash the ingestion path. Store operations
// degrade to no-ops / empty results with a logged warning; callers treat
// nil/false as "state unknown". A lost update under a rare race is
// corrected by the next telemetry cycle or the idle sweep.
//
// # State Change Events
//
// Store.SetState publishes the full merged record on the owning tenant's
// device_status channel. This is the sole producer-side trigger for the
// live device-state push to viewers.
package device
