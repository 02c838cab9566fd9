package alert

import (
	"time"

	"github.com/baotran97/gridpulse-core/internal/device"
)

// Record is one raised alert. Append-only per tenant; immutable once
// written except for the resolution fields, which are set by an
// administrative action outside the pipeline.
type Record struct {
	ID         string          `json:"id"`
	Tenant     string          `json:"tenant"`
	DeviceID   string          `json:"device_id"`
	DeviceName string          `json:"device_name"`
	MAC        string          `json:"mac"`
	State      device.State    `json:"state"`
	Severity   device.Severity `json:"severity"`
	RaisedAt   time.Time       `json:"raised_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy *string         `json:"resolved_by,omitempty"`
}

// SweptDevice pairs a newly disconnected device record with its owning
// tenant, for the sweep caller to distribute on the device status channel.
type SweptDevice struct {
	Tenant string
	Record *device.Record
}
