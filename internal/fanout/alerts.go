package fanout

import (
	"sync"

	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// AlertManager specializes the fan-out manager for the alert channel. On
// top of the connection registry it keeps, per tenant, the most recent
// serialized alert payload and, per viewer, the last payload that viewer
// has acknowledged, so a late joiner receives exactly the alerts it has
// not yet seen.
//
// Acknowledgment is client-driven: delivery alone never marks an alert as
// seen, so a viewer that reconnects without acknowledging gets the same
// alert again. Super-admin viewers span tenants; their ack state is
// tracked per tenant under their own viewer ID.
type AlertManager struct {
	*Manager
	logger *logging.Logger

	amu       sync.Mutex
	lastAlert map[string]string            // tenant -> serialized payload
	acks      map[string]map[string]string // tenant -> viewer -> acked payload
	adminAcks map[string]map[string]string // viewer -> tenant -> acked payload
}

// NewAlertManager creates the alert fan-out manager. Call Start before
// serving connections so catch-up state accumulates even while nobody is
// watching.
func NewAlertManager(store *device.Store, bus Bus, logger *logging.Logger) *AlertManager {
	return &AlertManager{
		Manager:   NewManager(store, bus, logger, eventbus.AlertPattern),
		logger:    logger,
		lastAlert: make(map[string]string),
		acks:      make(map[string]map[string]string),
		adminAcks: make(map[string]map[string]string),
	}
}

// Start registers the alert-channel listener that maintains catch-up
// state. Separate from the registry's own lazy broadcast subscription:
// last-alert tracking must run from process start, viewer or no viewer.
func (a *AlertManager) Start() error {
	return a.bus.Subscribe(eventbus.AlertPattern, a.onAlert)
}

// Acknowledge marks the current last alert as seen for the viewer.
// Super-admins acknowledge every tenant's current last alert at once.
func (a *AlertManager) Acknowledge(tenant, viewer string, superAdmin bool) {
	a.amu.Lock()
	defer a.amu.Unlock()

	if superAdmin {
		acked := a.adminAcks[viewer]
		if acked == nil {
			acked = make(map[string]string)
			a.adminAcks[viewer] = acked
		}
		for t, payload := range a.lastAlert {
			acked[t] = payload
		}
		return
	}

	set := a.acks[tenant]
	if set == nil {
		set = make(map[string]string)
		a.acks[tenant] = set
	}
	set[viewer] = a.lastAlert[tenant]
}

// SendLastAlert delivers catch-up alerts to a newly connected viewer: the
// tenant's last alert if the viewer's ack state does not already match
// it, or for super-admins every tenant's last alert checked independently
// against their own ack map.
//
// Returns:
//   - error: The send failure when the connection is broken (it is
//     evicted and closed); nil otherwise
func (a *AlertManager) SendLastAlert(conn Conn, tenant, viewer string, superAdmin bool) error {
	a.amu.Lock()
	var pending []string
	if superAdmin {
		for t, payload := range a.lastAlert {
			if payload != "" && a.adminAcks[viewer][t] != payload {
				pending = append(pending, payload)
			}
		}
	} else {
		if payload := a.lastAlert[tenant]; payload != "" && a.acks[tenant][viewer] != payload {
			pending = append(pending, payload)
		}
	}
	a.amu.Unlock()

	for _, payload := range pending {
		if err := conn.Send([]byte(payload)); err != nil {
			a.Disconnect(conn)
			conn.Close()
			return err
		}
	}
	return nil
}

// onAlert tracks the most recent alert per tenant. Ack state is cleared
// only when the payload genuinely changed, so a duplicate publish does
// not resurrect an already-acknowledged alert.
func (a *AlertManager) onAlert(channel string, payload []byte) error {
	tenant := eventbus.TenantFromChannel(channel)
	if tenant == "" {
		return nil
	}

	a.amu.Lock()
	defer a.amu.Unlock()

	if a.lastAlert[tenant] == string(payload) {
		return nil
	}
	a.lastAlert[tenant] = string(payload)
	delete(a.acks, tenant)
	for _, acked := range a.adminAcks {
		delete(acked, tenant)
	}
	a.logger.Debug("alert cursor advanced", "tenant", tenant)
	return nil
}
