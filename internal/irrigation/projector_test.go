package irrigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func TestProjector_Initial(t *testing.T) {
	p := Projector{DefaultMoisture: DefaultMoisture}
	s := p.Initial("dev-1", t0)

	assert.Equal(t, "dev-1", s.DeviceID)
	assert.Equal(t, 50.0, s.CurrentMoisture)
	assert.False(t, s.PumpStatus)
	assert.False(t, s.AutoMode)
	assert.Equal(t, t0, s.LastUpdated)
}

func TestProjector_ApplyIsIdempotent(t *testing.T) {
	p := Projector{DefaultMoisture: DefaultMoisture}
	base := p.Initial("dev-1", t0)

	r := Reading{ID: 7, DeviceID: "dev-1", MoistureLevel: 42.5, Timestamp: t0.Add(time.Minute)}
	once := p.ApplyReading(base, r)
	twice := p.ApplyReading(once, r)
	assert.Equal(t, once, twice)
	assert.Equal(t, 42.5, once.CurrentMoisture)
	assert.Equal(t, r.Timestamp, once.LastUpdated)

	c := Command{ID: 3, DeviceID: "dev-1", Action: ActionOn, Timestamp: t0.Add(2 * time.Minute)}
	once = p.ApplyCommand(once, c)
	twice = p.ApplyCommand(once, c)
	assert.Equal(t, once, twice)
	assert.True(t, once.PumpStatus)
	assert.Equal(t, 42.5, once.CurrentMoisture, "a command must not touch moisture")
}

func TestProjector_LastReadingWins(t *testing.T) {
	p := Projector{DefaultMoisture: DefaultMoisture}
	s := p.Initial("dev-1", t0)

	levels := []float64{12, 80, 33.3, 71}
	for i, m := range levels {
		s = p.ApplyReading(s, Reading{MoistureLevel: m, Timestamp: t0.Add(time.Duration(i+1) * time.Second)})
	}
	assert.Equal(t, 71.0, s.CurrentMoisture)
}

func TestProjector_Rebuild(t *testing.T) {
	p := Projector{DefaultMoisture: DefaultMoisture}

	t.Run("empty log", func(t *testing.T) {
		base := CurrentStatus{DeviceID: "dev-1", CurrentMoisture: 3, PumpStatus: true, AutoMode: true, LastUpdated: t0, Version: 4}
		got := p.Rebuild(base, nil, nil)
		assert.Equal(t, 50.0, got.CurrentMoisture)
		assert.False(t, got.PumpStatus)
		assert.True(t, got.AutoMode, "auto mode is not derivable from the log and must survive")
		assert.Equal(t, int64(4), got.Version)
		assert.Equal(t, t0, got.LastUpdated)
	})

	t.Run("latest events", func(t *testing.T) {
		base := CurrentStatus{DeviceID: "dev-1", CurrentMoisture: 99, LastUpdated: t0}
		r := &Reading{MoistureLevel: 21, Timestamp: t0.Add(time.Minute)}
		c := &Command{Action: ActionOn, Timestamp: t0.Add(2 * time.Minute)}
		got := p.Rebuild(base, r, c)
		assert.Equal(t, 21.0, got.CurrentMoisture)
		assert.True(t, got.PumpStatus)
		assert.Equal(t, c.Timestamp, got.LastUpdated)

		assert.Equal(t, got, p.Rebuild(got, r, c), "rebuild must be idempotent")
	})
}
