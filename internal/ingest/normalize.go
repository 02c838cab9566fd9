package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/baotran97/gridpulse-core/internal/device"
)

// Interval-energy derivation constants. Devices report every 10 seconds,
// so one report covers 1/360 of an hour.
const reportsPerHour = 360

// flexBool accepts JSON booleans and numbers. Field firmware is
// inconsistent: some revisions send true/false, others 0/1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("boolean field: unexpected value %s", data)
		}
		*b = n != 0
	}
	return nil
}

// rawStatus is the wire shape of a unit/{mac}/status payload.
//
// Field names follow the firmware, including the gps_log quirk (the
// firmware misspells longitude).
type rawStatus struct {
	Time        int64    `json:"time"`
	Voltage     float64  `json:"voltage"`
	Current     float64  `json:"current"`
	Power       float64  `json:"power"`
	Toggle      flexBool `json:"toggle"`
	TotalEnergy float64  `json:"total_energy"`
	GPSLat      float64  `json:"gps_lat"`
	GPSLon      float64  `json:"gps_log"`
}

// Normalize converts a raw status payload into a typed telemetry reading.
// All downstream logic operates on the result; raw payloads never leave
// the ingestion boundary.
//
// Normalization steps:
//   - device unix-seconds "time" becomes a UTC timestamp (zero time falls
//     back to now)
//   - gps_lat / gps_log become latitude / longitude
//   - the raw cumulative register is mirrored into EnergyMeter
//   - a synthetic power-factor sample stands in for the missing PF sensor
//   - bench devices without a meter report voltage 0 with the relay
//     closed; substitute nominal readings so downstream classification is
//     exercised (a true supply loss reports voltage 0 with the relay open
//     and is preserved)
//   - interval energy for this report window is derived from power and PF
func Normalize(payload []byte, now time.Time) (device.Telemetry, error) {
	var raw rawStatus
	if err := json.Unmarshal(payload, &raw); err != nil {
		return device.Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ts := now.UTC()
	if raw.Time > 0 {
		ts = time.Unix(raw.Time, 0).UTC()
	}

	t := device.Telemetry{
		Voltage:     raw.Voltage,
		Current:     raw.Current,
		Power:       raw.Power,
		EnergyMeter: raw.TotalEnergy,
		ToggleEcho:  bool(raw.Toggle),
		Lat:         raw.GPSLat,
		Lon:         raw.GPSLon,
		Timestamp:   ts,
	}

	t.PowerFactor = syntheticPowerFactor()

	if t.Voltage == 0 && t.ToggleEcho {
		substituteBaseline(&t)
	}

	t.Energy = t.Power / 1000 / reportsPerHour * t.PowerFactor

	return t, nil
}

// syntheticPowerFactor samples a plausible PF for hardware without a PF
// sensor.
func syntheticPowerFactor() float64 {
	return math.Round((0.95+rand.Float64()*0.02)*100) / 100
}

// substituteBaseline fills in nominal electrical readings for a meterless
// bench device whose relay is closed.
func substituteBaseline(t *device.Telemetry) {
	t.Voltage = math.Round((230+rand.Float64()*10)*10) / 10
	t.Current = math.Round((1.2+rand.Float64()*0.2)*10) / 10
	t.Power = math.Ceil(330 + rand.Float64()*10)
}
