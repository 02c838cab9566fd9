package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"

	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// fakePublisher captures published events for assertions.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{channel: channel, payload: payload})
	return nil
}

func (f *fakePublisher) events() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.published...)
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *fakePublisher) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pub := &fakePublisher{}
	store := NewStore(rdb, logging.Default(), 24*time.Hour, time.Minute, pub)
	return store, mr, pub
}

func testRecord(mac, tenant string) *Record {
	return &Record{
		ID:     "dev-" + mac,
		MAC:    mac,
		Tenant: tenant,
		Name:   "Lamp " + mac,
		Type:   "light",
		Schedule: Schedule{
			OnHour:  18,
			OffHour: 5,
		},
		Auto:   true,
		Toggle: true,
	}
}

func TestUpsertConfigAndGet(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("a1b2c3d4e5f6", "project-7")
	if !store.UpsertConfig(ctx, rec) {
		t.Fatal("UpsertConfig() = false, want true")
	}

	got := store.GetByMAC(ctx, "a1b2c3d4e5f6")
	if got == nil {
		t.Fatal("GetByMAC() = nil after upsert")
	}
	if got.Tenant != "project-7" || got.Schedule.OnHour != 18 {
		t.Errorf("GetByMAC() = %+v, want config preserved", got)
	}

	if byID := store.GetByID(ctx, rec.ID); byID == nil || byID.MAC != rec.MAC {
		t.Errorf("GetByID(%q) = %+v, want record for %q", rec.ID, byID, rec.MAC)
	}
	if store.GetByMAC(ctx, "unknown") != nil {
		t.Error("GetByMAC(unknown) should be nil")
	}
}

func TestUpsertConfigPreservesTelemetry(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))
	ts := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	store.UpsertTelemetry(ctx, "aa11", Telemetry{Voltage: 230, Power: 45, ToggleEcho: true, Timestamp: ts})
	store.SetState(ctx, "aa11", StateWorking)

	// Re-seeding config (e.g. warm load) must not wipe live data.
	updated := testRecord("aa11", "project-7")
	updated.Name = "Renamed"
	store.UpsertConfig(ctx, updated)

	got := store.GetByMAC(ctx, "aa11")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "Renamed")
	}
	if got.Telemetry.Voltage != 230 || got.State != StateWorking || !got.LastSeen.Equal(ts) {
		t.Errorf("live data not preserved: %+v", got)
	}
}

func TestUpsertTelemetry(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if store.UpsertTelemetry(ctx, "absent", Telemetry{Voltage: 230}) != nil {
		t.Error("UpsertTelemetry() on absent record should return nil")
	}

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))

	ts := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	got := store.UpsertTelemetry(ctx, "aa11", Telemetry{
		Voltage: 231.5, Power: 47, ToggleEcho: false, Timestamp: ts,
	})
	if got == nil {
		t.Fatal("UpsertTelemetry() = nil, want updated record")
	}
	if got.Telemetry.Voltage != 231.5 || !got.LastSeen.Equal(ts) {
		t.Errorf("telemetry not merged: %+v", got)
	}
	if got.Toggle {
		t.Error("Toggle should track the device's relay echo")
	}
	if got.Schedule.OnHour != 18 {
		t.Error("config should be preserved across telemetry upserts")
	}
}

func TestLastSeenMonotonic(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.UpsertTelemetry(ctx, "aa11", Telemetry{
			Voltage:   230,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got := store.GetByMAC(ctx, "aa11")
	want := base.Add(4 * time.Minute)
	if !got.LastSeen.Equal(want) {
		t.Errorf("LastSeen = %v, want timestamp of most recent event %v", got.LastSeen, want)
	}
}

func TestSetStatePublishes(t *testing.T) {
	store, _, pub := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))

	if !store.SetState(ctx, "aa11", StatePowerLost) {
		t.Fatal("SetState() = false, want true")
	}

	events := pub.events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].channel != eventbus.DeviceStatusChannel("project-7") {
		t.Errorf("published on %q, want %q", events[0].channel, eventbus.DeviceStatusChannel("project-7"))
	}

	var rec Record
	if err := json.Unmarshal(events[0].payload, &rec); err != nil {
		t.Fatalf("payload not a record: %v", err)
	}
	if rec.State != StatePowerLost || rec.MAC != "aa11" {
		t.Errorf("payload = %+v, want full merged record with new state", rec)
	}
}

func TestSetStateNoTenantNoPublish(t *testing.T) {
	store, _, pub := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("aa11", "")
	store.UpsertConfig(ctx, rec)
	store.SetState(ctx, "aa11", StateWorking)

	if len(pub.events()) != 0 {
		t.Error("SetState() with unknown tenant must not publish")
	}
}

func TestTouchLastSeenAndDelete(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))

	rewound := time.Now().UTC().Add(-10 * time.Minute)
	if !store.TouchLastSeen(ctx, "aa11", rewound) {
		t.Fatal("TouchLastSeen() = false, want true")
	}
	if got := store.GetByMAC(ctx, "aa11"); !got.LastSeen.Equal(rewound) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, rewound)
	}

	if !store.Delete(ctx, "aa11") {
		t.Fatal("Delete() = false, want true")
	}
	if store.GetByMAC(ctx, "aa11") != nil {
		t.Error("record still present after Delete()")
	}
}

func TestWarmLoadAndClear(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	records := []*Record{
		testRecord("aa11", "project-7"),
		testRecord("bb22", "project-7"),
		testRecord("cc33", "project-8"),
	}
	if n := store.WarmLoad(ctx, records); n != 3 {
		t.Errorf("WarmLoad() = %d, want 3", n)
	}
	if got := store.GetAll(ctx); len(got) != 3 {
		t.Errorf("GetAll() returned %d records, want 3", len(got))
	}
	if got := store.GetAllByTenant(ctx, "project-7"); len(got) != 2 {
		t.Errorf("GetAllByTenant(project-7) returned %d records, want 2", len(got))
	}

	if !store.Clear(ctx) {
		t.Fatal("Clear() = false, want true")
	}
	if got := store.GetAll(ctx); len(got) != 0 {
		t.Errorf("GetAll() after Clear() returned %d records, want 0", len(got))
	}
}

func TestWriteRefreshesTTL(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))
	if ttl := mr.TTL("device:aa11"); ttl != 24*time.Hour {
		t.Errorf("TTL after write = %v, want 24h", ttl)
	}

	mr.FastForward(12 * time.Hour)
	store.UpsertTelemetry(ctx, "aa11", Telemetry{Voltage: 230})
	if ttl := mr.TTL("device:aa11"); ttl != 24*time.Hour {
		t.Errorf("TTL after telemetry = %v, want refreshed 24h", ttl)
	}
}

func TestUnknownDeviceMarker(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	store.MarkUnknown(ctx, "dead01")
	store.MarkUnknown(ctx, "dead02")

	macs := store.UnknownMACs(ctx)
	if len(macs) != 2 {
		t.Fatalf("UnknownMACs() returned %d entries, want 2", len(macs))
	}

	mr.FastForward(2 * time.Minute)
	if got := store.UnknownMACs(ctx); len(got) != 0 {
		t.Errorf("marker set should expire, got %v", got)
	}
}

func TestStoreDegradesWhenUnreachable(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	store.UpsertConfig(ctx, testRecord("aa11", "project-7"))
	mr.Close()

	if store.Available(ctx) {
		t.Error("Available() = true with store down")
	}
	if store.GetByMAC(ctx, "aa11") != nil {
		t.Error("GetByMAC() should degrade to nil")
	}
	if len(store.GetAll(ctx)) != 0 {
		t.Error("GetAll() should degrade to empty")
	}
	if store.UpsertConfig(ctx, testRecord("bb22", "project-7")) {
		t.Error("UpsertConfig() should degrade to false")
	}
	if store.SetState(ctx, "aa11", StateWorking) {
		t.Error("SetState() should degrade to false")
	}
}
