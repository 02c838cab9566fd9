package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the GridPulse MQTT namespace.
//
// Field devices publish under unit/{mac}/... and the service publishes its
// own lifecycle under gridpulse/system/....
const (
	// TopicPrefixUnit is the base for all field-device topics.
	TopicPrefixUnit = "unit"

	// TopicPrefixSystem is the base for service lifecycle topics.
	TopicPrefixSystem = "gridpulse/system"
)

// Topics provides builders for GridPulse MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.UnitCommand("a1b2c3d4e5f6")
//	// Returns: "unit/a1b2c3d4e5f6/command"
type Topics struct{}

// UnitStatus returns the telemetry topic for a specific device.
//
// Example: unit/a1b2c3d4e5f6/status
func (Topics) UnitStatus(mac string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixUnit, mac)
}

// AllUnitStatus returns the wildcard pattern matching telemetry from every device.
//
// Example: unit/+/status
func (Topics) AllUnitStatus() string {
	return TopicPrefixUnit + "/+/status"
}

// UnitCommand returns the command topic for a specific device.
//
// Example: unit/a1b2c3d4e5f6/command
func (Topics) UnitCommand(mac string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixUnit, mac)
}

// UnitAlive returns the liveness beacon topic for a specific device.
//
// Example: unit/a1b2c3d4e5f6/alive
func (Topics) UnitAlive(mac string) string {
	return fmt.Sprintf("%s/%s/alive", TopicPrefixUnit, mac)
}

// AllUnitAlive returns the wildcard pattern matching liveness beacons from
// every device.
//
// Example: unit/+/alive
func (Topics) AllUnitAlive() string {
	return TopicPrefixUnit + "/+/alive"
}

// SystemStatus returns the service lifecycle topic (online/offline, LWT).
//
// Example: gridpulse/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// MACFromUnitTopic extracts the device MAC from a unit/{mac}/... topic.
//
// Returns:
//   - string: The MAC segment
//   - error: ErrInvalidTopic if the topic does not follow the unit scheme
func MACFromUnitTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != TopicPrefixUnit || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[1], nil
}
