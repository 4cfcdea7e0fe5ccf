package influxdb

import "errors"

// Errors returned by the telemetry client. Write failures arrive wrapped in
// ErrWriteFailed through the SetOnError callback, never from a Write call.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrWriteFailed      = errors.New("influxdb: write failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
