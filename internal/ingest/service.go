package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/baotran97/gridpulse-core/internal/alert"
	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/influxdb"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/mqtt"
)

// Subscriber is the narrow MQTT dependency of the ingestion service.
// Satisfied by mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Service is the telemetry ingestion boundary: it subscribes to device
// status reports, normalizes them into typed readings, merges them into
// the live state store, mirrors them to the history store, and hands the
// merged record to the alert pipeline.
//
// Per-message failure isolation: a malformed payload, unknown MAC, or
// unreachable store drops that single message with a log line; the
// subscription stays up.
type Service struct {
	store    *device.Store
	catalog  device.Catalog
	pipeline *alert.Pipeline
	history  *influxdb.Client
	logger   *logging.Logger
	qos      byte
}

// NewService creates an ingestion service.
//
// Parameters:
//   - store: Live device state store
//   - catalog: Durable device registry, consulted on cache miss
//   - pipeline: Alert pipeline run on each merged reading
//   - history: Optional telemetry history writer (nil to disable)
//   - logger: Structured logger
//   - qos: MQTT QoS level for subscriptions
func NewService(store *device.Store, catalog device.Catalog, pipeline *alert.Pipeline,
	history *influxdb.Client, logger *logging.Logger, qos byte) *Service {
	return &Service{
		store:    store,
		catalog:  catalog,
		pipeline: pipeline,
		history:  history,
		logger:   logger,
		qos:      qos,
	}
}

// Start subscribes to the device status and liveness topics. Handlers run
// on the MQTT client's delivery goroutines; the transport preserves
// per-device topic ordering, so each device's readings are processed in
// arrival order.
func (s *Service) Start(sub Subscriber) error {
	topics := mqtt.Topics{}

	if err := sub.Subscribe(topics.AllUnitStatus(), s.qos, s.onStatus); err != nil {
		return err
	}
	if err := sub.Subscribe(topics.AllUnitAlive(), s.qos, s.onAlive); err != nil {
		return err
	}

	s.logger.Info("telemetry ingestion started",
		"status_topic", topics.AllUnitStatus(),
		"alive_topic", topics.AllUnitAlive())
	return nil
}

// onStatus handles one unit/{mac}/status message.
func (s *Service) onStatus(topic string, payload []byte) error {
	mac, err := mqtt.MACFromUnitTopic(topic)
	if err != nil {
		return err
	}
	mac = device.NormalizeMAC(mac)

	reading, err := Normalize(payload, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.resolve(ctx, mac); err != nil {
		return err
	}

	rec := s.store.UpsertTelemetry(ctx, mac, reading)
	if rec == nil {
		// Store unreachable; the reading is superseded by the next report.
		s.logger.Warn("telemetry dropped, state store unavailable", "mac", mac)
		return nil
	}

	s.recordHistory(rec, reading)

	return s.pipeline.Process(ctx, rec)
}

// onAlive handles a unit/{mac}/alive liveness beacon: the device is up
// even if it has nothing to report, so last-seen advances.
func (s *Service) onAlive(topic string, _ []byte) error {
	mac, err := mqtt.MACFromUnitTopic(topic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.store.TouchLastSeen(ctx, device.NormalizeMAC(mac), time.Now().UTC())
	return nil
}

// resolve ensures a live record exists for the MAC, seeding it from the
// catalog on cache miss. Unregistered MACs go to the unknown-devices
// marker and their telemetry is discarded.
func (s *Service) resolve(ctx context.Context, mac string) error {
	if s.store.GetByMAC(ctx, mac) != nil {
		return nil
	}

	cfg, err := s.catalog.GetByMAC(ctx, mac)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			s.store.MarkUnknown(ctx, mac)
			return ErrUnknownDevice
		}
		return err
	}

	s.store.UpsertConfig(ctx, cfg)
	return nil
}

// recordHistory mirrors the reading to the history store. Best-effort and
// non-blocking.
func (s *Service) recordHistory(rec *device.Record, reading device.Telemetry) {
	if s.history == nil {
		return
	}
	s.history.WriteTelemetry(influxdb.TelemetryPoint{
		DeviceID:    rec.ID,
		Tenant:      rec.Tenant,
		MAC:         rec.MAC,
		State:       string(rec.State),
		Voltage:     reading.Voltage,
		Current:     reading.Current,
		Power:       reading.Power,
		Energy:      reading.Energy,
		PowerFactor: reading.PowerFactor,
		Lat:         reading.Lat,
		Lon:         reading.Lon,
		Timestamp:   reading.Timestamp,
	})
}
