package device

import (
	"context"
	"errors"
	"testing"
)

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(testDB(t))

	d := newTestDevice("esp32-north")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.HardwareID != "esp32-north" || got.OwnerID != "usr-alice" || !got.IsActive {
		t.Errorf("GetByID() = %+v", got)
	}

	byKey, err := repo.GetByAPIKeyHash(ctx, HashAPIKey("key-esp32-north"))
	if err != nil {
		t.Fatalf("GetByAPIKeyHash() error = %v", err)
	}
	if byKey.ID != d.ID {
		t.Errorf("GetByAPIKeyHash() ID = %q, want %q", byKey.ID, d.ID)
	}

	byHW, err := repo.GetByHardwareID(ctx, "esp32-north")
	if err != nil {
		t.Fatalf("GetByHardwareID() error = %v", err)
	}
	if byHW.ID != d.ID {
		t.Errorf("GetByHardwareID() ID = %q, want %q", byHW.ID, d.ID)
	}
}

func TestSQLiteRepository_CreateErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(testDB(t))

	if err := repo.Create(ctx, newTestDevice("dup-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"duplicate hardware id", newTestDevice("dup-1"), ErrDeviceExists},
		{"unknown owner", func() *Device { d := newTestDevice("orphan"); d.OwnerID = "usr-ghost"; return d }(), ErrOwnerNotFound},
		{"empty name", func() *Device { d := newTestDevice("noname"); d.Name = " "; return d }(), ErrInvalidName},
		{"bad hardware id", newTestDevice("bad/id"), ErrInvalidHardwareID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.device)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(testDB(t))

	if _, err := repo.GetByID(ctx, "dev-missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.SetActive(ctx, "dev-missing", false); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetActive() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListByOwnerAndSetActive(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(testDB(t))

	first := newTestDevice("unit-1")
	second := newTestDevice("unit-2")
	for _, d := range []*Device{first, second} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.SetActive(ctx, first.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	devices, err := repo.ListByOwner(ctx, "usr-alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ListByOwner() returned %d devices, want 2", len(devices))
	}
	if devices[0].IsActive {
		t.Error("first device still active after SetActive(false)")
	}

	none, err := repo.ListByOwner(ctx, "usr-nobody")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListByOwner() for unknown owner = %v, want empty slice", none)
	}
}

func TestSQLiteRepository_UpdateAPIKeyHash(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(testDB(t))

	d := newTestDevice("rotating")
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newHash := HashAPIKey("rotated")
	if err := repo.UpdateAPIKeyHash(ctx, d.ID, newHash); err != nil {
		t.Fatalf("UpdateAPIKeyHash() error = %v", err)
	}
	if _, err := repo.GetByAPIKeyHash(ctx, d.APIKeyHash); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("old hash still resolves: %v", err)
	}
	if _, err := repo.GetByAPIKeyHash(ctx, newHash); err != nil {
		t.Errorf("new hash lookup error = %v", err)
	}
}

func TestSQLiteRepository_WithTxRollback(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	d := newTestDevice("tx-unit")
	if err := repo.WithTx(tx).Create(ctx, d); err != nil {
		t.Fatalf("Create() in tx error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("device survived rollback: %v", err)
	}
}
