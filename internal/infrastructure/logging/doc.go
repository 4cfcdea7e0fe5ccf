// Package logging provides structured logging for the irrigation service.
//
// It wraps log/slog so that every component logs through the same handler
// with the service name and build version attached.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("reading ingested", "device_id", id, "moisture", 41.5)
//	logger.WithDevice(id).Warn("status conflict, retrying")
//
// Device API keys and user passwords must never be logged. Log the device
// ID or the first few characters of a key instead.
package logging
