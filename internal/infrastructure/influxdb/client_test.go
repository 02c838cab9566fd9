package influxdb

import (
	"errors"
	"testing"

	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteTelemetryDisconnected(t *testing.T) {
	// A disconnected client must drop writes silently, not panic.
	c := &Client{}

	c.WriteTelemetry(TelemetryPoint{DeviceID: "dev-1", Tenant: "t1", Voltage: 230})
	c.WritePoint("sweep_stats", map[string]string{"site": "x"}, map[string]interface{}{"scanned": 1})
	c.Flush()
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
