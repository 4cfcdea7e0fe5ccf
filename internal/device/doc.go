// Package device manages irrigation field units: their registration, the
// API keys they authenticate with, and which user owns them.
//
// A device is created by an administrator for an existing user. The raw
// API key is returned exactly once at creation; only its SHA-256 digest is
// stored, so lost keys are rotated rather than recovered.
//
// The Registry caches devices by ID and by key digest so the per-request
// API key check on the reading endpoint does not hit SQLite.
//
// Deleting a device cascades to its readings, commands and status row at
// the storage layer. The irrigation core never deletes devices.
package device
