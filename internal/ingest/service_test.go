package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"

	"github.com/baotran97/gridpulse-core/internal/alert"
	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/mqtt"
	"github.com/baotran97/gridpulse-core/internal/status"
)

// fakeSubscriber records subscriptions so tests can invoke handlers directly.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

// fakeCatalog serves configs from a map.
type fakeCatalog struct {
	devices map[string]*device.Record
}

func (f *fakeCatalog) GetByMAC(_ context.Context, mac string) (*device.Record, error) {
	if rec, ok := f.devices[device.NormalizeMAC(mac)]; ok {
		return rec.Clone(), nil
	}
	return nil, device.ErrNotFound
}

func (f *fakeCatalog) List(_ context.Context) ([]*device.Record, error) {
	var out []*device.Record
	for _, rec := range f.devices {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (f *fakeCatalog) ListByTenant(ctx context.Context, tenant string) ([]*device.Record, error) {
	all, _ := f.List(ctx)
	var out []*device.Record
	for _, rec := range all {
		if rec.Tenant == tenant {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Create(context.Context, *device.Record) error { return nil }
func (f *fakeCatalog) Update(context.Context, *device.Record) error { return nil }
func (f *fakeCatalog) Delete(context.Context, string) error         { return nil }

// nullRepository discards alerts; counts appends.
type nullRepository struct {
	mu    sync.Mutex
	count int
}

func (n *nullRepository) Append(context.Context, *alert.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func (n *nullRepository) ListByTenant(context.Context, string, int) ([]alert.Record, error) {
	return nil, nil
}

func (n *nullRepository) Resolve(context.Context, string, string) error { return nil }

// nullPublisher drops events.
type nullPublisher struct{}

func (nullPublisher) Publish(context.Context, string, []byte) error { return nil }

func newTestService(t *testing.T) (*Service, *device.Store, *fakeSubscriber) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := device.NewStore(rdb, logging.Default(), 24*time.Hour, time.Minute, nullPublisher{})
	catalog := &fakeCatalog{devices: map[string]*device.Record{
		"a1b2c3d4e5f6": {
			ID:       "dev-1",
			MAC:      "a1b2c3d4e5f6",
			Tenant:   "project-7",
			Name:     "Lamp 1",
			Schedule: device.Schedule{OnHour: 18, OffHour: 5},
			Auto:     true,
		},
	}}

	pipeline := alert.NewPipeline(store, status.NewClassifier(40), &nullRepository{},
		nullPublisher{}, logging.Default(), 5*time.Minute, time.UTC)

	svc := NewService(store, catalog, pipeline, nil, logging.Default(), 1)

	sub := &fakeSubscriber{}
	if err := svc.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return svc, store, sub
}

func statusPayload(ts time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"time": %d, "voltage": 230.5, "current": 1.4, "power": 336, "toggle": true, "total_energy": 10.5}`,
		ts.Unix()))
}

func TestStartSubscribes(t *testing.T) {
	_, _, sub := newTestService(t)

	for _, topic := range []string{"unit/+/status", "unit/+/alive"} {
		if _, ok := sub.handlers[topic]; !ok {
			t.Errorf("no subscription for %s", topic)
		}
	}
}

func TestStatusMessageForKnownDevice(t *testing.T) {
	_, store, sub := newTestService(t)

	ts := time.Date(2026, 8, 29, 20, 0, 0, 0, time.UTC)
	handler := sub.handlers["unit/+/status"]
	if err := handler("unit/a1b2c3d4e5f6/status", statusPayload(ts)); err != nil {
		t.Fatalf("status handler error = %v", err)
	}

	rec := store.GetByMAC(context.Background(), "a1b2c3d4e5f6")
	if rec == nil {
		t.Fatal("record not seeded from catalog on first telemetry")
	}
	if rec.Telemetry.Voltage != 230.5 || !rec.LastSeen.Equal(ts) {
		t.Errorf("telemetry not merged: %+v", rec)
	}
	if rec.State == "" {
		t.Error("pipeline did not classify the reading")
	}
	if rec.Tenant != "project-7" {
		t.Errorf("tenant = %q, want project-7", rec.Tenant)
	}
}

func TestStatusMessageUnknownDevice(t *testing.T) {
	_, store, sub := newTestService(t)

	handler := sub.handlers["unit/+/status"]
	err := handler("unit/deadbeef0000/status", statusPayload(time.Now()))
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("handler error = %v, want ErrUnknownDevice", err)
	}

	macs := store.UnknownMACs(context.Background())
	if len(macs) != 1 || macs[0] != "deadbeef0000" {
		t.Errorf("unknown marker = %v, want [deadbeef0000]", macs)
	}
	if store.GetByMAC(context.Background(), "deadbeef0000") != nil {
		t.Error("unknown device must not enter the live store")
	}
}

func TestStatusMessageMalformed(t *testing.T) {
	_, _, sub := newTestService(t)

	handler := sub.handlers["unit/+/status"]
	if err := handler("unit/a1b2c3d4e5f6/status", []byte("garbage")); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("handler error = %v, want ErrMalformedPayload", err)
	}
}

func TestAliveBeaconAdvancesLastSeen(t *testing.T) {
	_, store, sub := newTestService(t)
	ctx := context.Background()

	// Seed via a status message, then rewind last-seen.
	old := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	sub.handlers["unit/+/status"]("unit/a1b2c3d4e5f6/status", statusPayload(old))
	store.TouchLastSeen(ctx, "a1b2c3d4e5f6", old)

	if err := sub.handlers["unit/+/alive"]("unit/a1b2c3d4e5f6/alive", []byte(`{}`)); err != nil {
		t.Fatalf("alive handler error = %v", err)
	}

	rec := store.GetByMAC(ctx, "a1b2c3d4e5f6")
	if !rec.LastSeen.After(old) {
		t.Errorf("LastSeen = %v, want advanced past %v", rec.LastSeen, old)
	}
}

// fakeCommandPublisher captures published commands.
type fakeCommandPublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakeCommandPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestCommanderSendToggle(t *testing.T) {
	pub := &fakeCommandPublisher{}
	cmd := NewCommander(pub, 1)

	if err := cmd.SendToggle("A1:B2:C3:D4:E5:F6", true); err != nil {
		t.Fatalf("SendToggle() error = %v", err)
	}

	// Forcing the relay leaves auto mode first: AUTO off, then TOGGLE on.
	if len(pub.topics) != 2 {
		t.Fatalf("published %d commands, want 2", len(pub.topics))
	}
	for _, topic := range pub.topics {
		if topic != "unit/a1b2c3d4e5f6/command" {
			t.Errorf("topic = %q, want unit/a1b2c3d4e5f6/command", topic)
		}
	}

	var first, second command
	json.Unmarshal(pub.payloads[0], &first)
	json.Unmarshal(pub.payloads[1], &second)
	if first.Command != "AUTO" || first.Payload != "off" {
		t.Errorf("first command = %+v, want AUTO off", first)
	}
	if second.Command != "TOGGLE" || second.Payload != "on" {
		t.Errorf("second command = %+v, want TOGGLE on", second)
	}
}

func TestCommanderSendSchedule(t *testing.T) {
	pub := &fakeCommandPublisher{}
	cmd := NewCommander(pub, 1)

	schedule := device.Schedule{OnHour: 18, OffHour: 5, OffMinute: 30}
	if err := cmd.SendSchedule("a1b2c3d4e5f6", schedule); err != nil {
		t.Fatalf("SendSchedule() error = %v", err)
	}

	var got struct {
		Command string          `json:"command"`
		Payload device.Schedule `json:"payload"`
	}
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if got.Command != "SCHEDULE" || got.Payload != schedule {
		t.Errorf("command = %+v, want SCHEDULE with window", got)
	}
}
