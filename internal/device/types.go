package device

import "time"

// State is the closed enumeration of device operating conditions derived
// from telemetry and schedule.
type State string

// Device states.
const (
	StateWorking        State = "working"
	StateOff            State = "off"
	StateDisconnected   State = "disconnected"
	StatePowerLost      State = "power_lost"
	StateStillOn        State = "still_on"
	StateVoltageLow     State = "voltage_low"
	StateCurrentHigh    State = "current_high"
	StatePowerHigh      State = "power_high"
	StatePowerFactorLow State = "power_factor_low"
	StateEnergyHigh     State = "energy_high"
	StateOnOutOfHour    State = "on_out_of_hour"
	StateOffOutOfHour   State = "off_out_of_hour"
)

// Severity classifies how urgent a derived state is. Only non-Normal
// severities produce persisted or published alerts.
type Severity string

// Severities.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNormal   Severity = "normal"
)

// Schedule is the configured working-hours window. The window may span
// midnight (e.g. on 18:00, off 05:00).
type Schedule struct {
	OnHour    int `json:"on_hour"`
	OnMinute  int `json:"on_minute"`
	OffHour   int `json:"off_hour"`
	OffMinute int `json:"off_minute"`
}

// Telemetry is one normalized electrical reading from a device.
//
// Readings are normalized at the ingestion boundary (timestamp conversion,
// GPS field renaming, synthetic substitutions for meterless bench devices)
// before they reach this type; downstream logic never sees raw payloads.
type Telemetry struct {
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Power       float64   `json:"power"`
	PowerFactor float64   `json:"power_factor"`
	Energy      float64   `json:"energy"`       // interval energy derived at ingest, kWh
	EnergyMeter float64   `json:"energy_meter"` // raw cumulative register, kWh
	ToggleEcho  bool      `json:"toggle_echo"`  // relay state as reported by the device
	Lat         float64   `json:"lat,omitempty"`
	Lon         float64   `json:"lon,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Record is the merged live view of one device held in the state store:
// catalog configuration, last telemetry, derived state, and last-seen.
//
// A Record exists in the store only while its TTL has not lapsed. Absence
// means "unknown to the live system", not "does not exist" - the durable
// catalog is authoritative.
type Record struct {
	// Identity
	ID     string `json:"id"`
	MAC    string `json:"mac"`
	Tenant string `json:"tenant"`
	Name   string `json:"name"`
	Type   string `json:"type"`

	// Configuration
	Schedule Schedule `json:"schedule"`
	Auto     bool     `json:"auto"`
	Toggle   bool     `json:"toggle"`

	// Last telemetry
	Telemetry Telemetry `json:"telemetry"`

	// Derived
	State    State     `json:"state"`
	LastSeen time.Time `json:"last_seen"`
}

// Clone returns an independent copy of the record. Records handed out by
// the store are always clones so callers cannot mutate cached state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}
