package irrigation

import "time"

// DefaultMoisture seeds a status for a device that has reported nothing yet.
const DefaultMoisture = 50.0

// Projector folds log events into a CurrentStatus. All methods are pure;
// persisting the result is the caller's job.
//
// last_updated is taken from the event, not from the wall clock, so applying
// the same event twice yields the same snapshot.
type Projector struct {
	DefaultMoisture float64
}

// Initial returns the status a device starts with: default moisture, pump
// off, auto mode off.
func (p Projector) Initial(deviceID string, now time.Time) CurrentStatus {
	return CurrentStatus{
		DeviceID:        deviceID,
		CurrentMoisture: p.DefaultMoisture,
		LastUpdated:     now,
	}
}

// ApplyReading sets current_moisture from r.
func (Projector) ApplyReading(s CurrentStatus, r Reading) CurrentStatus {
	s.CurrentMoisture = r.MoistureLevel
	s.LastUpdated = r.Timestamp
	return s
}

// ApplyCommand sets pump_status from c.
func (Projector) ApplyCommand(s CurrentStatus, c Command) CurrentStatus {
	s.PumpStatus = c.Action.PumpState()
	s.LastUpdated = c.Timestamp
	return s
}

// ApplyAutoMode sets the auto-mode flag.
func (Projector) ApplyAutoMode(s CurrentStatus, enabled bool, at time.Time) CurrentStatus {
	s.AutoMode = enabled
	s.LastUpdated = at
	return s
}

// Rebuild re-derives a status from the log. base supplies the identity,
// version and auto_mode; latestReading and latestCommand may be nil.
//
// Moisture falls back to the default and the pump to off when the log has
// nothing to say. last_updated is the newest of the two events, or base's
// own timestamp when that is newer (an auto-mode change).
func (p Projector) Rebuild(base CurrentStatus, latestReading *Reading, latestCommand *Command) CurrentStatus {
	s := base
	s.CurrentMoisture = p.DefaultMoisture
	s.PumpStatus = false

	var newest time.Time
	if latestReading != nil {
		s.CurrentMoisture = latestReading.MoistureLevel
		newest = latestReading.Timestamp
	}
	if latestCommand != nil {
		s.PumpStatus = latestCommand.Action.PumpState()
		if latestCommand.Timestamp.After(newest) {
			newest = latestCommand.Timestamp
		}
	}
	if newest.After(s.LastUpdated) {
		s.LastUpdated = newest
	}
	return s
}
