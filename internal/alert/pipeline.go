package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
	"github.com/baotran97/gridpulse-core/internal/status"
)

// Pipeline turns classifier transitions into deduplicated, persisted,
// published alerts.
//
// The dedup rule: an alert is raised only when the new state differs from
// the previously cached state and the severity is not normal. A persisting
// fault condition therefore produces exactly one alert per transition, not
// one per telemetry report.
type Pipeline struct {
	store      *device.Store
	classifier *status.Classifier
	repo       Repository
	bus        device.Publisher
	logger     *logging.Logger

	idleTimeout time.Duration
	loc         *time.Location

	// now is injectable for tests.
	now func() time.Time
}

// NewPipeline creates an alert pipeline.
//
// Parameters:
//   - store: Live device state store (written on every classification)
//   - classifier: Status classifier
//   - repo: Durable per-tenant alert log
//   - bus: Event publisher for alert events (may be nil in tests)
//   - logger: Structured logger
//   - idleTimeout: Maximum telemetry gap before a device is presumed dead
//   - loc: Site timezone for schedule evaluation
func NewPipeline(store *device.Store, classifier *status.Classifier, repo Repository,
	bus device.Publisher, logger *logging.Logger, idleTimeout time.Duration, loc *time.Location) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		store:       store,
		classifier:  classifier,
		repo:        repo,
		bus:         bus,
		logger:      logger,
		idleTimeout: idleTimeout,
		loc:         loc,
		now:         time.Now,
	}
}

// Process classifies a device's latest reading, writes the derived state
// to the live store, and raises an alert when a fault transition occurred.
//
// The record must be the merged view as returned by Store.UpsertTelemetry:
// its State field still holds the previous classification, which is what
// the dedup rule compares against.
//
// Returns:
//   - error: ErrStoreUnavailable when the state write was dropped; alert
//     persistence/publish failures are logged, not returned
func (p *Pipeline) Process(ctx context.Context, rec *device.Record) error {
	prev := rec.State
	now := p.now().In(p.loc)

	state, severity := p.classifier.Classify(rec.Telemetry, rec.Schedule, rec.Auto, rec.Toggle, now)

	if !p.store.SetState(ctx, rec.MAC, state) {
		return ErrStoreUnavailable
	}

	if severity == device.SeverityNormal || state == prev {
		return nil
	}

	if rec.Tenant == "" {
		p.logger.Warn("fault transition on device without tenant, alert skipped",
			"mac", rec.MAC, "state", string(state))
		return nil
	}

	p.raise(ctx, rec, state, severity, now)
	return nil
}

// SweepIdle scans every live record for devices that have gone silent.
//
// Already-disconnected devices get their last-seen rewound just past the
// idle deadline so they are not re-flagged on the next cycle. Devices
// whose telemetry gap exceeds the idle timeout transition to Disconnected
// with a critical alert. Records that have never reported telemetry
// have no gap to measure and are skipped.
//
// Returns the number of newly disconnected devices and the (tenant,
// record) pairs for the caller to distribute on the device status channel.
// Per-device failures are logged and the sweep continues.
func (p *Pipeline) SweepIdle(ctx context.Context) (int, []SweptDevice) {
	now := p.now().UTC()
	var swept []SweptDevice

	for _, rec := range p.store.GetAll(ctx) {
		if rec.State == device.StateDisconnected {
			// Rewind so a dead device is flagged once per idle period.
			p.store.TouchLastSeen(ctx, rec.MAC, now.Add(-p.idleTimeout-time.Second))
			continue
		}

		if rec.LastSeen.IsZero() {
			// Registered but never reported; nothing to go idle from.
			p.logger.Warn("idle sweep skipping device with no telemetry", "mac", rec.MAC)
			continue
		}

		if now.Sub(rec.LastSeen) <= p.idleTimeout {
			continue
		}

		if !p.store.SetState(ctx, rec.MAC, device.StateDisconnected) {
			p.logger.Warn("idle sweep state write dropped", "mac", rec.MAC)
			continue
		}
		rec.State = device.StateDisconnected

		if rec.Tenant != "" {
			p.raise(ctx, rec, device.StateDisconnected, device.SeverityCritical, now)
		}
		swept = append(swept, SweptDevice{Tenant: rec.Tenant, Record: rec})
	}

	return len(swept), swept
}

// raise appends the alert to the durable log and publishes it on the
// tenant's alert channel. Both failure modes are logged and isolated: a
// dead log must not suppress the live push, and vice versa.
func (p *Pipeline) raise(ctx context.Context, rec *device.Record, state device.State, severity device.Severity, now time.Time) {
	alertRec := &Record{
		ID:         uuid.NewString(),
		Tenant:     rec.Tenant,
		DeviceID:   rec.ID,
		DeviceName: rec.Name,
		MAC:        rec.MAC,
		State:      state,
		Severity:   severity,
		RaisedAt:   now.UTC(),
	}

	if err := p.repo.Append(ctx, alertRec); err != nil {
		p.logger.Error("alert log append failed",
			"tenant", rec.Tenant, "mac", rec.MAC, "error", err)
	}

	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(alertRec)
	if err != nil {
		p.logger.Error("alert payload marshal failed", "mac", rec.MAC, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, eventbus.AlertChannel(rec.Tenant), payload); err != nil {
		p.logger.Warn("alert publish failed",
			"tenant", rec.Tenant, "mac", rec.MAC, "error", err)
	}
}
