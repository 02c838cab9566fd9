package eventbus

import "strings"

// Channel name builders. Channels follow a prefix:suffix convention where
// the suffix is the tenant ID, so subscribers can watch a whole class of
// events with a trailing-wildcard pattern.
const (
	// DeviceStatusPrefix is the channel prefix for device state change events.
	DeviceStatusPrefix = "device_status:"

	// AlertPrefix is the channel prefix for alert events.
	AlertPrefix = "alert:"

	// DeviceStatusPattern matches device state change events for every tenant.
	DeviceStatusPattern = DeviceStatusPrefix + "*"

	// AlertPattern matches alert events for every tenant.
	AlertPattern = AlertPrefix + "*"
)

// DeviceStatusChannel returns the device status channel for a tenant.
//
// Example: device_status:project-7
func DeviceStatusChannel(tenant string) string {
	return DeviceStatusPrefix + tenant
}

// AlertChannel returns the alert channel for a tenant.
//
// Example: alert:project-7
func AlertChannel(tenant string) string {
	return AlertPrefix + tenant
}

// TenantFromChannel extracts the tenant suffix from a prefix:tenant channel
// name. Returns the empty string when the channel has no suffix.
func TenantFromChannel(channel string) string {
	idx := strings.IndexByte(channel, ':')
	if idx < 0 || idx+1 >= len(channel) {
		return ""
	}
	return channel[idx+1:]
}

// matchPattern reports whether a concrete channel name matches a
// subscription pattern. Patterns ending in '*' match by prefix; anything
// else requires an exact match.
func matchPattern(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}
