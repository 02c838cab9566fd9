package device

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// Redis key layout.
const (
	// keyPrefix namespaces live device records: device:{mac}.
	keyPrefix = "device:"

	// unknownSetKey holds MACs that reported telemetry without being
	// registered in the catalog. Operator visibility only.
	unknownSetKey = "unknown_devices"
)

// Publisher is the narrow event-publishing dependency of the store.
// Satisfied by eventbus.Bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Store is the TTL-backed live device state cache.
//
// Every record lives under device:{mac} with a TTL refreshed on each write.
// Absence of a record means "unknown to the live system" - the durable
// catalog remains authoritative.
//
// Failure semantics: a Redis outage must never crash the ingestion path.
// Every operation degrades to a no-op / empty result and logs a warning;
// callers treat nil/false as "state unknown", not as a hard error.
type Store struct {
	rdb        *goredis.Client
	logger     *logging.Logger
	ttl        time.Duration
	unknownTTL time.Duration
	bus        Publisher
}

// NewStore creates a device state store.
//
// Parameters:
//   - rdb: Shared Redis client
//   - logger: Structured logger for degrade-path warnings
//   - ttl: Record lifetime, refreshed on every write
//   - unknownTTL: Lifetime of the unknown-devices marker set
//   - bus: Event publisher for state change events (may be nil in tests)
func NewStore(rdb *goredis.Client, logger *logging.Logger, ttl, unknownTTL time.Duration, bus Publisher) *Store {
	return &Store{
		rdb:        rdb,
		logger:     logger,
		ttl:        ttl,
		unknownTTL: unknownTTL,
		bus:        bus,
	}
}

// Available reports whether the backing store is reachable.
func (s *Store) Available(ctx context.Context) bool {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Warn("device store unavailable", "error", err)
		return false
	}
	return true
}

// GetByMAC returns the live record for a MAC, or nil when the record is
// absent, expired, or the store is unreachable.
func (s *Store) GetByMAC(ctx context.Context, mac string) *Record {
	data, err := s.rdb.Get(ctx, keyPrefix+mac).Bytes()
	if err != nil {
		if err != goredis.Nil {
			s.logger.Warn("device store read failed", "mac", mac, "error", err)
		}
		return nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("device store record corrupt", "mac", mac, "error", err)
		return nil
	}
	return &rec
}

// GetByID returns the live record with the given catalog ID.
//
// This is a linear scan over all live records; acceptable because record
// count is bounded by fleet size.
func (s *Store) GetByID(ctx context.Context, id string) *Record {
	for _, rec := range s.GetAll(ctx) {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// GetAll returns every live record. Empty on store failure.
func (s *Store) GetAll(ctx context.Context) []*Record {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		s.logger.Warn("device store scan failed", "error", err)
		return nil
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between scan and read; skip.
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("device store record corrupt", "key", key, "error", err)
			continue
		}
		records = append(records, &rec)
	}
	return records
}

// GetAllByTenant returns every live record belonging to a tenant.
func (s *Store) GetAllByTenant(ctx context.Context, tenant string) []*Record {
	var out []*Record
	for _, rec := range s.GetAll(ctx) {
		if rec.Tenant == tenant {
			out = append(out, rec)
		}
	}
	return out
}

// UpsertConfig writes a record's identity and configuration, preserving any
// previously cached telemetry, state, and last-seen.
//
// Returns false when the store is unreachable.
func (s *Store) UpsertConfig(ctx context.Context, rec *Record) bool {
	merged := rec.Clone()
	if existing := s.GetByMAC(ctx, rec.MAC); existing != nil {
		merged.Telemetry = existing.Telemetry
		merged.State = existing.State
		merged.LastSeen = existing.LastSeen
	}
	return s.save(ctx, merged)
}

// UpsertTelemetry merges a reading into the existing record: telemetry and
// last-seen are overwritten, configuration is preserved. The device echoes
// its commanded relay state, so the cached toggle is kept in sync with the
// echo.
//
// Returns the updated record, or nil when no record exists for the MAC or
// the store is unreachable.
func (s *Store) UpsertTelemetry(ctx context.Context, mac string, t Telemetry) *Record {
	rec := s.GetByMAC(ctx, mac)
	if rec == nil {
		return nil
	}

	rec.Telemetry = t
	rec.Toggle = t.ToggleEcho
	if t.Timestamp.IsZero() {
		rec.LastSeen = time.Now().UTC()
	} else {
		rec.LastSeen = t.Timestamp
	}

	if !s.save(ctx, rec) {
		return nil
	}
	return rec
}

// SetState overwrites a record's derived state and, when the record has a
// known tenant, publishes the full merged record on the tenant's device
// status channel. This is the sole producer-side trigger for the live
// device-state push to viewers.
//
// Returns false when no record exists or the store is unreachable.
func (s *Store) SetState(ctx context.Context, mac string, state State) bool {
	rec := s.GetByMAC(ctx, mac)
	if rec == nil {
		return false
	}

	rec.State = state
	if !s.save(ctx, rec) {
		return false
	}

	if rec.Tenant != "" && s.bus != nil {
		payload, err := json.Marshal(rec)
		if err != nil {
			s.logger.Warn("device status payload marshal failed", "mac", mac, "error", err)
			return true
		}
		if err := s.bus.Publish(ctx, eventbus.DeviceStatusChannel(rec.Tenant), payload); err != nil {
			s.logger.Warn("device status publish failed", "mac", mac, "error", err)
		}
	}
	return true
}

// TouchLastSeen rewrites a record's last-seen timestamp. Used by the idle
// sweep to rewind already-disconnected devices so they are not re-flagged.
func (s *Store) TouchLastSeen(ctx context.Context, mac string, ts time.Time) bool {
	rec := s.GetByMAC(ctx, mac)
	if rec == nil {
		return false
	}
	rec.LastSeen = ts
	return s.save(ctx, rec)
}

// Delete removes a record. Called when a device is removed from the
// durable catalog.
func (s *Store) Delete(ctx context.Context, mac string) bool {
	if err := s.rdb.Del(ctx, keyPrefix+mac).Err(); err != nil {
		s.logger.Warn("device store delete failed", "mac", mac, "error", err)
		return false
	}
	return true
}

// WarmLoad bulk-writes catalog records into the cache, preserving any live
// telemetry already present. Returns the number of records loaded.
func (s *Store) WarmLoad(ctx context.Context, records []*Record) int {
	loaded := 0
	for _, rec := range records {
		if s.UpsertConfig(ctx, rec) {
			loaded++
		}
	}
	return loaded
}

// Clear removes every live record. Returns false on store failure.
func (s *Store) Clear(ctx context.Context) bool {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		s.logger.Warn("device store clear scan failed", "error", err)
		return false
	}
	if len(keys) == 0 {
		return true
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("device store clear failed", "error", err)
		return false
	}
	return true
}

// MarkUnknown records a MAC that reported telemetry without a catalog
// entry. The marker set expires as a whole so stale entries age out.
func (s *Store) MarkUnknown(ctx context.Context, mac string) {
	if err := s.rdb.SAdd(ctx, unknownSetKey, mac).Err(); err != nil {
		s.logger.Warn("unknown device marker failed", "mac", mac, "error", err)
		return
	}
	if err := s.rdb.Expire(ctx, unknownSetKey, s.unknownTTL).Err(); err != nil {
		s.logger.Warn("unknown device marker expire failed", "error", err)
	}
}

// UnknownMACs returns the current unknown-devices marker set.
func (s *Store) UnknownMACs(ctx context.Context) []string {
	macs, err := s.rdb.SMembers(ctx, unknownSetKey).Result()
	if err != nil {
		s.logger.Warn("unknown device read failed", "error", err)
		return nil
	}
	return macs
}

// save writes a record under its MAC key and refreshes the TTL.
func (s *Store) save(ctx context.Context, rec *Record) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("device store marshal failed", "mac", rec.MAC, "error", err)
		return false
	}
	if err := s.rdb.Set(ctx, keyPrefix+rec.MAC, data, s.ttl).Err(); err != nil {
		s.logger.Warn("device store write failed", "mac", rec.MAC, "error", err)
		return false
	}
	return true
}

// scanKeys iterates the device keyspace with SCAN to avoid blocking Redis.
func (s *Store) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
