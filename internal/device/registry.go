package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry wraps a Repository with an in-memory cache keyed by device ID
// and by API key digest.
//
// The cache is filled by RefreshCache at startup and kept in sync by the
// registry's own write methods. Devices created outside the registry (for
// example by irrigationctl against the same database) are picked up on the
// first cache miss.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	byID    map[string]*Device
	byKey   map[string]string // api key hash -> device ID
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		byID:   make(map[string]*Device),
		byKey:  make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.byID = make(map[string]*Device, len(devices))
	r.byKey = make(map[string]string, len(devices))
	for i := range devices {
		r.storeLocked(&devices[i])
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Invalidate drops a device from the cache so the next lookup re-reads it.
func (r *Registry) Invalidate(id string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.dropLocked(id)
}

func (r *Registry) storeLocked(d *Device) {
	r.dropLocked(d.ID)
	cp := d.DeepCopy()
	r.byID[cp.ID] = cp
	r.byKey[cp.APIKeyHash] = cp.ID
}

func (r *Registry) dropLocked(id string) {
	if old, ok := r.byID[id]; ok {
		delete(r.byKey, old.APIKeyHash)
		delete(r.byID, id)
	}
}

func (r *Registry) cache(d *Device) {
	r.cacheMu.Lock()
	r.storeLocked(d)
	r.cacheMu.Unlock()
}

// GetDevice retrieves a device by ID. The returned device is a copy.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.byID[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache(d)
	return d, nil
}

// Authenticate resolves a raw API key to an active device.
//
// Returns:
//   - *Device: The device owning the key
//   - error: ErrInvalidAPIKey for unknown keys, ErrDeviceInactive for
//     disabled devices, or a repository error
func (r *Registry) Authenticate(ctx context.Context, rawKey string) (*Device, error) {
	if rawKey == "" {
		return nil, ErrInvalidAPIKey
	}
	hash := HashAPIKey(rawKey)

	r.cacheMu.RLock()
	var d *Device
	if id, ok := r.byKey[hash]; ok {
		d = r.byID[id].DeepCopy()
	}
	r.cacheMu.RUnlock()

	if d == nil {
		found, err := r.repo.GetByAPIKeyHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				return nil, ErrInvalidAPIKey
			}
			return nil, err
		}
		r.cache(found)
		d = found
	}

	if !d.IsActive {
		return nil, ErrDeviceInactive
	}
	return d, nil
}

// OwnerDevice returns the first active device a user owns. Each user
// controls a single irrigation unit from the dashboard.
func (r *Registry) OwnerDevice(ctx context.Context, ownerID string) (*Device, error) {
	devices, err := r.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].IsActive {
			r.cache(&devices[i])
			return devices[i].DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// GetByHardwareID resolves the identifier used in MQTT topics.
func (r *Registry) GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error) {
	r.cacheMu.RLock()
	for _, d := range r.byID {
		if d.HardwareID == hardwareID {
			cp := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cp, nil
		}
	}
	r.cacheMu.RUnlock()

	d, err := r.repo.GetByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	r.cache(d)
	return d, nil
}

// ListDevices returns every device from the repository.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// Register validates and persists a new device, generating its API key.
//
// Returns:
//   - *Device: The stored device
//   - string: The raw API key; it is not retrievable later
//   - error: Validation or repository error
func (r *Registry) Register(ctx context.Context, d *Device) (*Device, string, error) {
	raw, err := AssignNewAPIKey(d)
	if err != nil {
		return nil, "", err
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return nil, "", err
	}
	r.cache(d)

	r.logger.Info("device registered",
		"device_id", d.ID,
		"hardware_id", d.HardwareID,
		"owner_id", d.OwnerID,
		"key_prefix", KeyPrefix(raw),
	)
	return d.DeepCopy(), raw, nil
}

// SetActive enables or disables a device and refreshes its cache entry.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	if err := r.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	r.Invalidate(id)
	r.logger.Info("device activity changed", "device_id", id, "active", active)
	return nil
}

// RotateAPIKey issues a new key for a device, invalidating the old one.
func (r *Registry) RotateAPIKey(ctx context.Context, id string) (string, error) {
	raw, hash, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	if err := r.repo.UpdateAPIKeyHash(ctx, id, hash); err != nil {
		return "", err
	}
	r.Invalidate(id)
	r.logger.Info("device api key rotated", "device_id", id, "key_prefix", KeyPrefix(raw))
	return raw, nil
}
