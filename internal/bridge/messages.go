package bridge

import (
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// ReadingMessage is published by a device on irrigation/reading/{hardware_id}.
type ReadingMessage struct {
	APIKey        string   `json:"api_key"`
	Moisture      *float64 `json:"moisture"`
	AckCommandIDs []int64  `json:"ack_command_ids,omitempty"`
}

// AckMessage is published by a device on irrigation/ack/{hardware_id}.
type AckMessage struct {
	APIKey     string  `json:"api_key"`
	CommandIDs []int64 `json:"command_ids"`
}

// CommandMessage is pushed to irrigation/command/{hardware_id}.
type CommandMessage struct {
	ID          int64              `json:"id"`
	Action      irrigation.Action  `json:"action"`
	TriggeredBy irrigation.Trigger `json:"triggered_by"`
	Timestamp   time.Time          `json:"timestamp"`
}

// StatusMessage is published retained on irrigation/status/{hardware_id}.
type StatusMessage struct {
	SoilMoisture float64   `json:"soil_moisture"`
	MotorStatus  bool      `json:"motor_status"`
	IsAutoMode   bool      `json:"is_auto_mode"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewCommandMessage builds the device-facing form of a command.
func NewCommandMessage(cmd *irrigation.Command) CommandMessage {
	return CommandMessage{
		ID:          cmd.ID,
		Action:      cmd.Action,
		TriggeredBy: cmd.TriggeredBy,
		Timestamp:   cmd.Timestamp,
	}
}

// NewStatusMessage builds the device-facing form of a status.
func NewStatusMessage(s *irrigation.CurrentStatus) StatusMessage {
	return StatusMessage{
		SoilMoisture: s.CurrentMoisture,
		MotorStatus:  s.PumpStatus,
		IsAutoMode:   s.AutoMode,
		Timestamp:    s.LastUpdated,
	}
}
