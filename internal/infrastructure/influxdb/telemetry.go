package influxdb

import (
	"context"

	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// Notify implements irrigation.Notifier, mirroring committed readings,
// commands and status changes into InfluxDB.
func (c *Client) Notify(_ context.Context, ev irrigation.Event) {
	switch ev.Kind {
	case irrigation.EventReading:
		if ev.Reading != nil {
			c.WriteReading(*ev.Reading)
		}
	case irrigation.EventCommand:
		if ev.Command != nil {
			c.WriteCommand(*ev.Command)
		}
	case irrigation.EventStatus, irrigation.EventAutoMode:
		if ev.Status != nil {
			c.WriteStatus(*ev.Status)
		}
	}
}
