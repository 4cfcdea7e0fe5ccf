package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// Measurement names.
const (
	MeasurementSoilMoisture = "soil_moisture"
	MeasurementPumpCommand  = "pump_command"
	MeasurementPumpState    = "pump_state"
)

// WriteReading records a soil moisture reading at the time it was taken.
//
//	soil_moisture,device_id=dev-1 moisture=27.5,reading_id=42i
func (c *Client) WriteReading(r irrigation.Reading) {
	c.WritePointWithTime(MeasurementSoilMoisture,
		map[string]string{"device_id": r.DeviceID},
		map[string]any{
			"moisture":   r.MoistureLevel,
			"reading_id": r.ID,
		},
		r.Timestamp,
	)
}

// WriteCommand records a pump command. The state field is 1 for ON and 0
// for OFF so pump duty can be graphed directly.
//
//	pump_command,device_id=dev-1,action=ON,triggered_by=auto state=1i,command_id=7i
func (c *Client) WriteCommand(cmd irrigation.Command) {
	state := 0
	if cmd.Action.PumpState() {
		state = 1
	}
	c.WritePointWithTime(MeasurementPumpCommand,
		map[string]string{
			"device_id":    cmd.DeviceID,
			"action":       string(cmd.Action),
			"triggered_by": string(cmd.TriggeredBy),
		},
		map[string]any{
			"state":      state,
			"command_id": cmd.ID,
		},
		cmd.Timestamp,
	)
}

// WriteStatus records the projected pump and auto-mode state of a device.
func (c *Client) WriteStatus(s irrigation.CurrentStatus) {
	c.WritePointWithTime(MeasurementPumpState,
		map[string]string{"device_id": s.DeviceID},
		map[string]any{
			"pump_on":   s.PumpStatus,
			"auto_mode": s.AutoMode,
			"moisture":  s.CurrentMoisture,
		},
		s.LastUpdated,
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp. It is
// a no-op while the client is disconnected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
