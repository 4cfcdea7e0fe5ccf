package device

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 100

// hardwareIDPattern matches the identifiers field units report, e.g.
// "esp32-a4cf12" or "device_7".
var hardwareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]{0,63}$`)

// ValidateDevice checks the fields a caller supplies when registering a
// device. IDs, timestamps and the key digest are filled in by the repository.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if !IsValidHardwareID(d.HardwareID) {
		return fmt.Errorf("%w: %q", ErrInvalidHardwareID, d.HardwareID)
	}
	if d.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidDevice)
	}
	if d.APIKeyHash == "" {
		return fmt.Errorf("%w: api key hash is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateName rejects empty and overlong names.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// IsValidHardwareID reports whether id is an acceptable hardware identifier.
// Hardware IDs also appear in MQTT topics, so wildcards and slashes are
// not allowed.
func IsValidHardwareID(id string) bool {
	return hardwareIDPattern.MatchString(id)
}
