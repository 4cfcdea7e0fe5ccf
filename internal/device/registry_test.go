package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// mockRepository is an in-memory Repository that counts reads so tests can
// assert cache hits.
type mockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	reads   int
	listErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{devices: make(map[string]*Device)}
}

func (m *mockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.HardwareID == d.HardwareID {
			return ErrDeviceExists
		}
	}
	if d.ID == "" {
		d.ID = "dev-" + d.HardwareID
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockRepository) find(match func(*Device) bool) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, d := range m.devices {
		if match(d) {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	return m.find(func(d *Device) bool { return d.ID == id })
}

func (m *mockRepository) GetByAPIKeyHash(_ context.Context, hash string) (*Device, error) {
	return m.find(func(d *Device) bool { return d.APIKeyHash == hash })
}

func (m *mockRepository) GetByHardwareID(_ context.Context, hw string) (*Device, error) {
	return m.find(func(d *Device) bool { return d.HardwareID == hw })
}

func (m *mockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockRepository) ListByOwner(_ context.Context, ownerID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockRepository) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.IsActive = active
	return nil
}

func (m *mockRepository) UpdateAPIKeyHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.APIKeyHash = hash
	return nil
}

func TestRegistry_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	reg := NewRegistry(repo)

	d, raw, err := reg.Register(ctx, &Device{OwnerID: "usr-alice", Name: "Bed A", HardwareID: "bed-a", IsActive: true})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		t.Errorf("raw key %q missing prefix", raw)
	}
	if d.APIKeyHash != HashAPIKey(raw) {
		t.Error("stored hash does not match raw key")
	}

	readsBefore := repo.reads
	got, err := reg.Authenticate(ctx, raw)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("Authenticate() ID = %q, want %q", got.ID, d.ID)
	}
	if repo.reads != readsBefore {
		t.Error("Authenticate() hit the repository for a cached device")
	}
}

func TestRegistry_AuthenticateErrors(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	reg := NewRegistry(repo)

	d, raw, err := reg.Register(ctx, &Device{OwnerID: "usr-alice", Name: "Bed B", HardwareID: "bed-b", IsActive: true})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := reg.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("empty key error = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := reg.Authenticate(ctx, "irr_wrong"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("unknown key error = %v, want ErrInvalidAPIKey", err)
	}

	if err := reg.SetActive(ctx, d.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if _, err := reg.Authenticate(ctx, raw); !errors.Is(err, ErrDeviceInactive) {
		t.Errorf("inactive device error = %v, want ErrDeviceInactive", err)
	}
}

func TestRegistry_RotateAPIKey(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMockRepository())

	_, oldKey, err := reg.Register(ctx, &Device{OwnerID: "usr-alice", Name: "Bed C", HardwareID: "bed-c", IsActive: true})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, err := reg.Authenticate(ctx, oldKey)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	newKey, err := reg.RotateAPIKey(ctx, d.ID)
	if err != nil {
		t.Fatalf("RotateAPIKey() error = %v", err)
	}
	if _, err := reg.Authenticate(ctx, oldKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("old key after rotation error = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := reg.Authenticate(ctx, newKey); err != nil {
		t.Errorf("new key error = %v", err)
	}
}

func TestRegistry_OwnerDevice(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	reg := NewRegistry(repo)

	inactive := &Device{ID: "dev-1", OwnerID: "usr-bob", Name: "Old", HardwareID: "old", APIKeyHash: "h1"}
	active := &Device{ID: "dev-2", OwnerID: "usr-bob", Name: "New", HardwareID: "new", APIKeyHash: "h2", IsActive: true}
	for _, d := range []*Device{inactive, active} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := reg.OwnerDevice(ctx, "usr-bob")
	if err != nil {
		t.Fatalf("OwnerDevice() error = %v", err)
	}
	if got.ID != "dev-2" {
		t.Errorf("OwnerDevice() = %q, want dev-2", got.ID)
	}

	if _, err := reg.OwnerDevice(ctx, "usr-nobody"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("OwnerDevice() for user without devices error = %v", err)
	}
}

func TestRegistry_GetDeviceReturnsCopy(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMockRepository())

	d, _, err := reg.Register(ctx, &Device{OwnerID: "usr-alice", Name: "Bed D", HardwareID: "bed-d", IsActive: true})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := reg.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	got.Name = "mutated"

	again, _ := reg.GetDevice(ctx, d.ID)
	if again.Name != "Bed D" {
		t.Errorf("cache mutated through returned copy: %q", again.Name)
	}

	byHW, err := reg.GetByHardwareID(ctx, "bed-d")
	if err != nil || byHW.ID != d.ID {
		t.Errorf("GetByHardwareID() = %v, %v", byHW, err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	reg := NewRegistry(repo)

	if err := repo.Create(ctx, &Device{ID: "dev-x", OwnerID: "u", Name: "X", HardwareID: "x", APIKeyHash: HashAPIKey("kx"), IsActive: true}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	readsBefore := repo.reads
	if _, err := reg.Authenticate(ctx, "kx"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if repo.reads != readsBefore {
		t.Error("Authenticate() missed the refreshed cache")
	}

	repo.listErr = errors.New("disk on fire")
	if err := reg.RefreshCache(ctx); err == nil {
		t.Error("RefreshCache() expected error")
	}
}
