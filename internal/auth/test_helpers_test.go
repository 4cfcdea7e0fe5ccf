package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/migrations"
)

// testDB creates a temporary SQLite database with the full schema applied.
// A file-backed database is used so WAL mode is exercised as in production.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// fakeHash stands in for a PHC string where the password itself is not
// under test; real Argon2id hashing costs ~64 MiB per call.
const fakeHash = "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"

// seedTestUser inserts a user with the password "test-password".
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}
