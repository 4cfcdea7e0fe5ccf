package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/bridge"
)

// healthCheckTimeout bounds each dependency probe in GET /health.
const healthCheckTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Bridge        *bridge.Metrics `json:"bridge,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	if s.bridge != nil {
		stats := s.bridge.GetMetrics()
		metrics.Bridge = &stats
	}

	if devices, err := s.registry.ListDevices(r.Context()); err == nil {
		metrics.Devices.Total = len(devices)
		for i := range devices {
			if devices[i].IsActive {
				metrics.Devices.Active++
			}
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleHealth reports the state of each dependency. The database is the
// only hard dependency; MQTT and InfluxDB degrade the status but not the
// HTTP code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"
	code := http.StatusOK

	probe := func(name string, fn func(ctx context.Context) error) error {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "ok"
		}
		return err
	}

	if s.db != nil {
		if err := probe("database", s.db.HealthCheck); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if s.mqtt != nil {
		if err := probe("mqtt", s.mqtt.HealthCheck); err != nil && status == "ok" {
			status = "degraded"
		}
	}
	if s.influx != nil {
		if err := probe("influxdb", s.influx.HealthCheck); err != nil && status == "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
