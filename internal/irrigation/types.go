package irrigation

import (
	"fmt"
	"strings"
	"time"
)

// Action is a pump directive.
type Action string

// Pump actions.
const (
	ActionOn  Action = "ON"
	ActionOff Action = "OFF"
)

// ActionFor maps a desired pump state to its action.
func ActionFor(on bool) Action {
	if on {
		return ActionOn
	}
	return ActionOff
}

// ParseAction accepts "ON" or "OFF" in any case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Valid reports whether a is ON or OFF.
func (a Action) Valid() bool {
	return a == ActionOn || a == ActionOff
}

// PumpState is the pump_status a command leaves behind.
func (a Action) PumpState() bool {
	return a == ActionOn
}

// Trigger records who created a command.
type Trigger string

// Command provenance.
const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	return t == TriggerManual || t == TriggerAuto
}

// Reading is one immutable moisture measurement.
type Reading struct {
	ID            int64     `json:"id"`
	DeviceID      string    `json:"device_id"`
	MoistureLevel float64   `json:"moisture_level"`
	Timestamp     time.Time `json:"timestamp"`
}

// Command is a pump directive for one device. Acknowledged flips from false
// to true exactly once and never back.
type Command struct {
	ID             int64      `json:"id"`
	DeviceID       string     `json:"device_id"`
	Action         Action     `json:"action"`
	TriggeredBy    Trigger    `json:"triggered_by"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// CurrentStatus is the per-device snapshot derived from the log.
// Version is the optimistic-concurrency counter used by the store.
type CurrentStatus struct {
	DeviceID        string    `json:"device_id"`
	CurrentMoisture float64   `json:"current_moisture"`
	PumpStatus      bool      `json:"pump_status"`
	AutoMode        bool      `json:"auto_mode"`
	LastUpdated     time.Time `json:"last_updated"`
	Version         int64     `json:"-"`
}

// Role distinguishes the two kinds of caller that can read a status.
type Role string

// Caller roles.
const (
	// RoleOwner is the dashboard user that owns the device.
	RoleOwner Role = "owner"

	// RoleDevice is the field unit itself, authenticated by API key.
	RoleDevice Role = "device"
)

// Caller is the identity resolved once at the transport boundary.
type Caller struct {
	Role     Role
	DeviceID string
	UserID   string // empty for RoleDevice
}

// OwnerCaller builds the caller for a dashboard user acting on their device.
func OwnerCaller(userID, deviceID string) Caller {
	return Caller{Role: RoleOwner, UserID: userID, DeviceID: deviceID}
}

// DeviceCaller builds the caller for a device acting on itself.
func DeviceCaller(deviceID string) Caller {
	return Caller{Role: RoleDevice, DeviceID: deviceID}
}

// Snapshot is the status view returned to a caller. Owners get the action
// history; devices get their pending queue and an empty action list.
type Snapshot struct {
	SoilMoisture    float64   `json:"soil_moisture"`
	MotorStatus     bool      `json:"motor_status"`
	IsAutoMode      bool      `json:"is_auto_mode"`
	Timestamp       time.Time `json:"timestamp"`
	History         []Reading `json:"history"`
	Actions         []Command `json:"actions"`
	PendingCommands []Command `json:"pending_commands,omitempty"`
}

// IngestResult describes everything one reading caused.
type IngestResult struct {
	Reading      Reading       `json:"reading"`
	Command      *Command      `json:"command,omitempty"` // auto command, if the decider fired
	Acknowledged int           `json:"acknowledged"`
	Status       CurrentStatus `json:"status"`
}

// EventKind identifies a committed change.
type EventKind string

// Event kinds delivered to notifiers.
const (
	EventReading  EventKind = "reading"
	EventCommand  EventKind = "command"
	EventStatus   EventKind = "status"
	EventAutoMode EventKind = "auto_mode"
)

// Event is a committed change. Exactly one of Reading, Command or Status is
// set, matching Kind (EventAutoMode carries Status).
type Event struct {
	Kind     EventKind
	DeviceID string
	Reading  *Reading
	Command  *Command
	Status   *CurrentStatus
}
