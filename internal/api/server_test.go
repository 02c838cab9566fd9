package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/baotran97/gridpulse-core/internal/alert"
	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/fanout"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// stubCatalog serves device configs from a map.
type stubCatalog struct {
	devices map[string]*device.Record
}

func (c *stubCatalog) GetByMAC(_ context.Context, mac string) (*device.Record, error) {
	if rec, ok := c.devices[device.NormalizeMAC(mac)]; ok {
		return rec.Clone(), nil
	}
	return nil, device.ErrNotFound
}

func (c *stubCatalog) List(_ context.Context) ([]*device.Record, error) {
	var out []*device.Record
	for _, rec := range c.devices {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (c *stubCatalog) ListByTenant(ctx context.Context, tenant string) ([]*device.Record, error) {
	all, _ := c.List(ctx)
	var out []*device.Record
	for _, rec := range all {
		if rec.Tenant == tenant {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *stubCatalog) Create(_ context.Context, rec *device.Record) error {
	mac := device.NormalizeMAC(rec.MAC)
	if _, ok := c.devices[mac]; ok {
		return device.ErrExists
	}
	c.devices[mac] = rec.Clone()
	return nil
}

func (c *stubCatalog) Update(_ context.Context, rec *device.Record) error {
	mac := device.NormalizeMAC(rec.MAC)
	if _, ok := c.devices[mac]; !ok {
		return device.ErrNotFound
	}
	c.devices[mac] = rec.Clone()
	return nil
}

func (c *stubCatalog) Delete(_ context.Context, mac string) error {
	mac = device.NormalizeMAC(mac)
	if _, ok := c.devices[mac]; !ok {
		return device.ErrNotFound
	}
	delete(c.devices, mac)
	return nil
}

// stubAlerts serves a fixed alert log.
type stubAlerts struct {
	records []alert.Record
}

func (a *stubAlerts) Append(_ context.Context, rec *alert.Record) error {
	a.records = append(a.records, *rec)
	return nil
}

func (a *stubAlerts) ListByTenant(_ context.Context, tenant string, limit int) ([]alert.Record, error) {
	var out []alert.Record
	for _, rec := range a.records {
		if rec.Tenant == tenant {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *stubAlerts) Resolve(_ context.Context, id, _ string) error {
	for _, rec := range a.records {
		if rec.ID == id {
			return nil
		}
	}
	return alert.ErrAlertNotFound
}

// stubBus accepts subscriptions and lets tests emit events.
type stubBus struct {
	handlers []struct {
		pattern string
		handler eventbus.Handler
	}
}

func (b *stubBus) Subscribe(pattern string, handler eventbus.Handler) error {
	b.handlers = append(b.handlers, struct {
		pattern string
		handler eventbus.Handler
	}{pattern, handler})
	return nil
}

func (b *stubBus) emit(channel string, payload []byte) {
	for _, sub := range b.handlers {
		if strings.HasPrefix(channel, strings.TrimSuffix(sub.pattern, "*")) {
			//nolint:errcheck // Handlers log their own failures
			sub.handler(channel, payload)
		}
	}
}

// testServer wires a Server against miniredis, stub catalog/alert log,
// and a stub event bus.
func testServer(t *testing.T) (*Server, *device.Store, *stubCatalog, *stubAlerts, *stubBus) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	store := device.NewStore(rdb, log, 24*time.Hour, time.Minute, nil)
	catalog := &stubCatalog{devices: make(map[string]*device.Record)}
	alerts := &stubAlerts{}
	bus := &stubBus{}

	monitor := fanout.NewManager(store, bus, log, eventbus.DeviceStatusPattern)
	alertHub := fanout.NewAlertManager(store, bus, log)
	if err := alertHub.Start(); err != nil {
		t.Fatalf("starting alert hub: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Store:    store,
		Catalog:  catalog,
		Alerts:   alerts,
		Monitor:  monitor,
		AlertHub: alertHub,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, store, catalog, alerts, bus
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestListDevicesTenantFilter(t *testing.T) {
	srv, store, _, _, _ := testServer(t)
	ctx := context.Background()
	store.UpsertConfig(ctx, &device.Record{ID: "d1", MAC: "aa0000000001", Tenant: "tenant-a"})
	store.UpsertConfig(ctx, &device.Record{ID: "d2", MAC: "bb0000000001", Tenant: "tenant-b"})

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/devices/?tenant=tenant-a")
	if err != nil {
		t.Fatalf("GET /devices: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Devices []device.Record `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || body.Devices[0].Tenant != "tenant-a" {
		t.Errorf("filtered list = %+v, want only tenant-a", body)
	}
}

func TestGetDeviceFallsBackToCatalog(t *testing.T) {
	srv, _, catalog, _, _ := testServer(t)
	catalog.devices["a1b2c3d4e5f6"] = &device.Record{ID: "d1", MAC: "a1b2c3d4e5f6", Tenant: "tenant-a", Name: "Lamp"}

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	// Not in the live store yet: served from the catalog.
	resp, err := http.Get(ts.URL + "/api/v1/devices/A1:B2:C3:D4:E5:F6/")
	if err != nil {
		t.Fatalf("GET /devices/{mac}: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/devices/000000000000/")
	if err != nil {
		t.Fatalf("GET unknown device: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp2.StatusCode)
	}
}

func TestCreateDevice(t *testing.T) {
	srv, store, _, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	body := `{"mac":"A1:B2:C3:D4:E5:F6","name":"Lamp","tenant":"tenant-a","schedule":{"on_hour":18,"off_hour":5}}`
	resp, err := http.Post(ts.URL+"/api/v1/devices/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /devices: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	// Live record seeded immediately.
	if rec := store.GetByMAC(context.Background(), "a1b2c3d4e5f6"); rec == nil || rec.Tenant != "tenant-a" {
		t.Errorf("live record not seeded after create: %+v", rec)
	}

	// Duplicate MAC conflicts.
	resp2, err := http.Post(ts.URL+"/api/v1/devices/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST duplicate: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp2.StatusCode)
	}
}

func TestListAlerts(t *testing.T) {
	srv, _, _, alerts, _ := testServer(t)
	alerts.records = []alert.Record{
		{ID: "a1", Tenant: "tenant-a", State: device.StatePowerLost, Severity: device.SeverityCritical, RaisedAt: time.Now()},
		{ID: "a2", Tenant: "tenant-b", State: device.StateDisconnected, Severity: device.SeverityCritical, RaisedAt: time.Now()},
	}

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/alerts/tenant-a")
	if err != nil {
		t.Fatalf("GET /alerts: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Alerts []alert.Record `json:"alerts"`
		Count  int            `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || body.Alerts[0].ID != "a1" {
		t.Errorf("alerts = %+v, want only tenant-a's alert", body)
	}
}

func TestResolveAlert(t *testing.T) {
	srv, _, _, alerts, _ := testServer(t)
	alerts.records = []alert.Record{{ID: "a1", Tenant: "tenant-a"}}

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/alerts/a1/resolve", "application/json",
		strings.NewReader(`{"resolved_by":"operator"}`))
	if err != nil {
		t.Fatalf("POST /resolve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	resp2, err := http.Post(ts.URL+"/api/v1/alerts/missing/resolve", "application/json",
		strings.NewReader(`{"resolved_by":"operator"}`))
	if err != nil {
		t.Fatalf("POST missing resolve: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing alert status = %d, want 404", resp2.StatusCode)
	}
}

func TestCommandEndpointsWithoutCommander(t *testing.T) {
	srv, _, _, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/devices/a1b2c3d4e5f6/toggle", "application/json",
		strings.NewReader(`{"on":true}`))
	if err != nil {
		t.Fatalf("POST /toggle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a command channel", resp.StatusCode)
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestMonitorWebSocket(t *testing.T) {
	srv, store, _, _, bus := testServer(t)
	ctx := context.Background()
	store.UpsertConfig(ctx, &device.Record{ID: "d1", MAC: "aa0000000001", Tenant: "tenant-a", Name: "Lamp"})

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(ts, "/ws/monitor?tenant=tenant-a&viewer=v1"), nil)
	if err != nil {
		t.Fatalf("dialing monitor socket: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Connect-time snapshot arrives first.
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var rec device.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if rec.MAC != "aa0000000001" {
		t.Errorf("snapshot mac = %q", rec.MAC)
	}

	// A live device-status event follows.
	bus.emit(eventbus.DeviceStatusChannel("tenant-a"), []byte(`{"mac":"aa0000000001","state":"working"}`))
	_, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading live event: %v", err)
	}
	if !strings.Contains(string(payload), "working") {
		t.Errorf("live event = %s", payload)
	}
}

func TestAlertWebSocketCatchUpAndAcknowledge(t *testing.T) {
	srv, _, _, _, bus := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	alertPayload := `{"tenant":"tenant-a","state":"power_lost"}`
	bus.emit(eventbus.AlertChannel("tenant-a"), []byte(alertPayload))

	// First connect: catch-up delivery.
	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(ts, "/ws/alert?tenant=tenant-a&viewer=v1"), nil)
	if err != nil {
		t.Fatalf("dialing alert socket: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading catch-up alert: %v", err)
	}
	if string(payload) != alertPayload {
		t.Errorf("catch-up = %s, want the published alert", payload)
	}

	// Acknowledge, then give the server a moment to process the frame.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("acknowledge")); err != nil {
		t.Fatalf("sending acknowledge: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		quiet, _, err := websocket.DefaultDialer.Dial(
			wsURL(ts, "/ws/alert?tenant=tenant-a&viewer=v1"), nil)
		if err != nil {
			t.Fatalf("redialing alert socket: %v", err)
		}
		quiet.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		_, _, err = quiet.ReadMessage()
		quiet.Close()
		if err != nil {
			// Timed out with no redelivery: the acknowledgment landed.
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("alert still redelivered after acknowledgment")
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	srv, _, _, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/monitor")
	if err != nil {
		t.Fatalf("GET /ws/monitor: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without viewer identity", resp.StatusCode)
	}
}
