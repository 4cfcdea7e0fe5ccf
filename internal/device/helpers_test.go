package device

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/migrations"
)

// testDB opens a migrated in-memory database with one user, "usr-alice".
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	_, err = db.Exec(`INSERT INTO users (id, username, display_name, password_hash, role, created_at, updated_at)
		VALUES ('usr-alice', 'alice', 'Alice', 'x', 'user', '2026-03-01T00:00:00Z', '2026-03-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return db.DB
}

func newTestDevice(hardwareID string) *Device {
	return &Device{
		OwnerID:    "usr-alice",
		Name:       "Greenhouse " + hardwareID,
		HardwareID: hardwareID,
		APIKeyHash: HashAPIKey("key-" + hardwareID),
		IsActive:   true,
	}
}
