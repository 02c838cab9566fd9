package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// Conn is a live viewer connection. Implementations must be safe for
// concurrent Send calls; the API layer adapts WebSocket connections to
// this interface.
type Conn interface {
	// Send delivers one serialized message to the viewer.
	Send(payload []byte) error

	// Close tears down the underlying transport.
	Close() error
}

// Bus is the subscription surface the manager consumes.
// Satisfied by eventbus.Bus.
type Bus interface {
	Subscribe(pattern string, handler eventbus.Handler) error
}

// identity is the reverse-map entry for a registered connection.
type identity struct {
	tenant     string
	viewer     string
	superAdmin bool
}

// Manager is a tenant- and role-scoped registry of live viewer
// connections. It lazily subscribes to its event-bus pattern the first
// time any viewer connects, then pushes each matching event to the
// owning tenant's viewers and to every super-admin connection.
//
// Thread Safety: safe for concurrent use. The registry mutex covers map
// mutation only; sends happen outside the lock so one slow viewer cannot
// stall connect/disconnect handling.
type Manager struct {
	store   *device.Store
	bus     Bus
	logger  *logging.Logger
	pattern string

	mu         sync.Mutex
	viewers    map[string]map[string]Conn // tenant -> viewer -> conn
	admins     map[string]Conn            // viewer -> conn
	conns      map[Conn]identity
	watched    map[string]struct{}
	subscribed bool
}

// NewManager creates a fan-out manager for one event-bus pattern.
//
// Parameters:
//   - store: Live device state store, used for connect-time snapshots
//   - bus: Event bus to subscribe on (first viewer triggers subscription)
//   - logger: Structured logger
//   - pattern: Channel pattern to watch, e.g. eventbus.DeviceStatusPattern
func NewManager(store *device.Store, bus Bus, logger *logging.Logger, pattern string) *Manager {
	return &Manager{
		store:   store,
		bus:     bus,
		logger:  logger,
		pattern: pattern,
		viewers: make(map[string]map[string]Conn),
		admins:  make(map[string]Conn),
		conns:   make(map[Conn]identity),
		watched: make(map[string]struct{}),
	}
}

// Connect registers a viewer connection. A second connection for the same
// (tenant, viewer) replaces the first in the registry; the old transport
// is left to its own read loop to notice and close.
//
// Returns:
//   - error: Subscription failure on the very first connect; nil otherwise
func (m *Manager) Connect(conn Conn, tenant, viewer string, superAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.subscribed {
		if err := m.bus.Subscribe(m.pattern, m.onEvent); err != nil {
			return err
		}
		m.subscribed = true
	}

	if superAdmin {
		if old, ok := m.admins[viewer]; ok && old != conn {
			delete(m.conns, old)
		}
		m.admins[viewer] = conn
	} else {
		set := m.viewers[tenant]
		if set == nil {
			set = make(map[string]Conn)
			m.viewers[tenant] = set
		}
		if old, ok := set[viewer]; ok && old != conn {
			delete(m.conns, old)
		}
		set[viewer] = conn
		m.watched[tenant] = struct{}{}
	}
	m.conns[conn] = identity{tenant: tenant, viewer: viewer, superAdmin: superAdmin}
	return nil
}

// Disconnect removes every registration for the connection. When a
// tenant's last viewer leaves, the tenant drops out of the watched set so
// its device-status events are no longer processed.
func (m *Manager) Disconnect(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(conn)
}

// remove deregisters a connection. Caller must hold m.mu.
func (m *Manager) remove(conn Conn) {
	id, ok := m.conns[conn]
	if !ok {
		return
	}
	delete(m.conns, conn)

	if id.superAdmin {
		if m.admins[id.viewer] == conn {
			delete(m.admins, id.viewer)
		}
		return
	}
	if set := m.viewers[id.tenant]; set != nil && set[id.viewer] == conn {
		delete(set, id.viewer)
		if len(set) == 0 {
			delete(m.viewers, id.tenant)
			delete(m.watched, id.tenant)
		}
	}
}

// Broadcast sends a message to every viewer of the tenant plus every
// super-admin connection. A failed send evicts and closes that
// connection; delivery to the remaining connections continues.
func (m *Manager) Broadcast(payload []byte, tenant string) {
	m.mu.Lock()
	targets := make([]Conn, 0, len(m.viewers[tenant])+len(m.admins))
	for _, conn := range m.viewers[tenant] {
		targets = append(targets, conn)
	}
	for _, conn := range m.admins {
		targets = append(targets, conn)
	}
	m.mu.Unlock()

	var failed []Conn
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			m.logger.Warn("viewer send failed, dropping connection",
				"tenant", tenant,
				"error", err)
			failed = append(failed, conn)
		}
	}
	if len(failed) == 0 {
		return
	}

	m.mu.Lock()
	for _, conn := range failed {
		m.remove(conn)
	}
	m.mu.Unlock()
	for _, conn := range failed {
		conn.Close()
	}
}

// SendInitialDeviceStates pushes the current snapshot of the tenant's
// devices to a newly connected viewer, so it does not wait for the next
// telemetry event. An empty tenant sends the whole fleet (super-admin
// view). Each record goes out as its own message, matching the live
// device-status payload shape.
func (m *Manager) SendInitialDeviceStates(ctx context.Context, conn Conn, tenant string) {
	var records []*device.Record
	if tenant == "" {
		records = m.store.GetAll(ctx)
	} else {
		records = m.store.GetAllByTenant(ctx, tenant)
	}

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			m.logger.Error("encoding device snapshot", "mac", rec.MAC, "error", err)
			continue
		}
		if err := conn.Send(payload); err != nil {
			m.Disconnect(conn)
			conn.Close()
			return
		}
	}
}

// onEvent is the event-bus handler: route the payload to the channel's
// tenant. Events for tenants nobody watches are skipped unless a
// super-admin is connected.
func (m *Manager) onEvent(channel string, payload []byte) error {
	tenant := eventbus.TenantFromChannel(channel)
	if tenant == "" {
		return nil
	}

	m.mu.Lock()
	_, isWatched := m.watched[tenant]
	hasAdmins := len(m.admins) > 0
	m.mu.Unlock()

	if !isWatched && !hasAdmins {
		return nil
	}
	m.Broadcast(payload, tenant)
	return nil
}
