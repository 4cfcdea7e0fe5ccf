package device

import "errors"

// Domain errors for the device package. Check them with errors.Is.
var (
	// ErrDeviceNotFound is returned when no device matches the lookup.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when the hardware ID is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrDeviceInactive is returned when a deactivated device authenticates.
	ErrDeviceInactive = errors.New("device: inactive")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidHardwareID is returned when a hardware ID has the wrong format.
	ErrInvalidHardwareID = errors.New("device: invalid hardware id")

	// ErrOwnerNotFound is returned when the owning user does not exist.
	ErrOwnerNotFound = errors.New("device: owner not found")

	// ErrInvalidAPIKey is returned when a presented API key matches no device.
	ErrInvalidAPIKey = errors.New("device: invalid api key")
)
