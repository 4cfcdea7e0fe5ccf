package device

import "time"

// Device is a registered irrigation field unit.
type Device struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	HardwareID string    `json:"hardware_id"`
	APIKeyHash string    `json:"-"` // never serialised
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy. Device holds no reference types
// today; callers still use DeepCopy so the cache stays safe if that changes.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
