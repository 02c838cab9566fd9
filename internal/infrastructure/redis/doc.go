// Package redis provides the shared Redis connection for GridPulse.
//
// A single pooled client serves both the live device state store
// (internal/device) and the pub/sub event bus (internal/eventbus). The
// wrapper owns connection setup, ping verification, health checks, and
// teardown; consumers obtain the raw go-redis client via Raw().
//
// Redis here is a cache, not a durable store. The device catalog in SQLite
// is the source of truth; if Redis restarts empty, the cache is re-seeded
// from the catalog on the next service start and re-warmed by incoming
// telemetry.
package redis
