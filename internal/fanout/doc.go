// Package fanout distributes device-status and alert events to live
// viewer connections.
//
// Manager keeps a tenant-scoped registry of viewer connections plus a
// separate super-admin set, lazily subscribes to its event-bus pattern on
// the first connect, and broadcasts each event to the owning tenant's
// viewers and to all super-admins. Failed sends evict the connection, so
// the registry self-heals around broken transports.
//
// AlertManager layers per-tenant last-alert and per-viewer acknowledgment
// tracking on top, giving reconnecting viewers catch-up delivery of the
// alerts they have not yet acknowledged.
//
// Connections are an interface (Conn); the API layer adapts WebSocket
// connections to it, keeping this package transport-agnostic.
package fanout
