package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "irrigation"

// Topic kinds below the prefix. Device topics are {prefix}/{kind}/{hardware_id}.
const (
	KindCommand = "command"
	KindStatus  = "status"
	KindReading = "reading"
	KindAck     = "ack"
	KindSystem  = "system"
)

// Topics builds the irrigation MQTT topic tree.
//
//	topics := mqtt.Topics{Prefix: "irrigation"}
//	topics.Command("esp32-a1b2c3")
//	// Returns: "irrigation/command/esp32-a1b2c3"
//
// A zero Topics uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

func (t Topics) device(kind, hardwareID string) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix(), kind, hardwareID)
}

// Command returns the topic pump commands are pushed to.
//
// Example: irrigation/command/esp32-a1b2c3
func (t Topics) Command(hardwareID string) string { return t.device(KindCommand, hardwareID) }

// Status returns the retained CurrentStatus topic for a device.
//
// Example: irrigation/status/esp32-a1b2c3
func (t Topics) Status(hardwareID string) string { return t.device(KindStatus, hardwareID) }

// Reading returns the topic a device publishes moisture readings on.
//
// Example: irrigation/reading/esp32-a1b2c3
func (t Topics) Reading(hardwareID string) string { return t.device(KindReading, hardwareID) }

// Ack returns the topic a device publishes command acknowledgements on.
//
// Example: irrigation/ack/esp32-a1b2c3
func (t Topics) Ack(hardwareID string) string { return t.device(KindAck, hardwareID) }

// SystemStatus returns the retained online/offline topic for the core.
//
// Example: irrigation/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/status", t.prefix(), KindSystem)
}

// AllReadings matches readings from every device.
//
// Pattern: irrigation/reading/+
func (t Topics) AllReadings() string { return t.device(KindReading, "+") }

// AllAcks matches acknowledgements from every device.
//
// Pattern: irrigation/ack/+
func (t Topics) AllAcks() string { return t.device(KindAck, "+") }

// ParseDevice splits a device topic into its kind and hardware ID. It
// reports false for topics outside the prefix or without exactly one
// segment after the kind.
func (t Topics) ParseDevice(topic string) (kind, hardwareID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	switch parts[0] {
	case KindCommand, KindStatus, KindReading, KindAck:
		return parts[0], parts[1], true
	}
	return "", "", false
}
