package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/mqtt"
)

// Command names understood by device firmware.
const (
	commandToggle   = "TOGGLE"
	commandAuto     = "AUTO"
	commandSchedule = "SCHEDULE"
)

// CommandPublisher is the narrow MQTT dependency of the commander.
// Satisfied by mqtt.Client.
type CommandPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Commander sends control commands to devices on unit/{mac}/command.
type Commander struct {
	pub CommandPublisher
	qos byte
}

// NewCommander creates a device commander.
func NewCommander(pub CommandPublisher, qos byte) *Commander {
	return &Commander{pub: pub, qos: qos}
}

// command is the wire shape of a unit/{mac}/command payload.
type command struct {
	Command string `json:"command"`
	Payload any    `json:"payload"`
}

// SendToggle forces the relay on or off. Forcing the relay implies leaving
// automatic mode, so an AUTO off command is sent first.
func (c *Commander) SendToggle(mac string, on bool) error {
	if err := c.SendAuto(mac, false); err != nil {
		return err
	}
	return c.send(mac, command{Command: commandToggle, Payload: onOff(on)})
}

// SendAuto enables or disables schedule-driven operation.
func (c *Commander) SendAuto(mac string, on bool) error {
	return c.send(mac, command{Command: commandAuto, Payload: onOff(on)})
}

// SendSchedule pushes a new working-hours window to the device.
func (c *Commander) SendSchedule(mac string, schedule device.Schedule) error {
	return c.send(mac, command{Command: commandSchedule, Payload: schedule})
}

func (c *Commander) send(mac string, cmd command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", cmd.Command, err)
	}
	topic := mqtt.Topics{}.UnitCommand(device.NormalizeMAC(mac))
	if err := c.pub.Publish(topic, payload, c.qos, false); err != nil {
		return fmt.Errorf("sending %s command to %s: %w", cmd.Command, mac, err)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
