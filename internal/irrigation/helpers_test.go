package irrigation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/migrations"
)

const (
	testDeviceID  = "dev-field-1"
	otherDeviceID = "dev-field-2"
	idleDeviceID  = "dev-retired"
)

// newTestDB opens a migrated in-memory database with one user and three
// devices, the last of them inactive.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	require.NoError(t, db.Migrate(context.Background(), migrations.FS))

	const ts = "2026-03-01T00:00:00Z"
	_, err = db.Exec(`INSERT INTO users (id, username, display_name, password_hash, role, created_at, updated_at)
		VALUES ('usr-grower', 'grower', 'Grower', 'x', 'user', ?, ?)`, ts, ts)
	require.NoError(t, err)

	for i, id := range []string{testDeviceID, otherDeviceID, idleDeviceID} {
		active := 1
		if id == idleDeviceID {
			active = 0
		}
		_, err = db.Exec(`INSERT INTO devices (id, owner_id, name, hardware_id, api_key_hash, is_active, created_at, updated_at)
			VALUES (?, 'usr-grower', ?, ?, ?, ?, ?, ?)`,
			id, "Bed "+id, "hw-"+id, "hash-"+id, active, ts, ts)
		require.NoError(t, err, "seeding device %d", i)
	}
	return db.DB
}

// fakeDirectory resolves the devices seeded by newTestDB.
type fakeDirectory struct{}

func (fakeDirectory) GetDevice(_ context.Context, id string) (*device.Device, error) {
	switch id {
	case testDeviceID, otherDeviceID:
		return &device.Device{ID: id, IsActive: true}, nil
	case idleDeviceID:
		return &device.Device{ID: id, IsActive: false}, nil
	}
	return nil, device.ErrDeviceNotFound
}

// stepClock advances by one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// newTestService wires a Service on store. A nil store means a fresh
// SQLiteStore over a new database.
func newTestService(t *testing.T, store Store) (*Service, *sql.DB) {
	t.Helper()

	var db *sql.DB
	if store == nil {
		db = newTestDB(t)
		store = NewSQLiteStore(db)
	}

	opts := DefaultOptions()
	opts.Clock = newStepClock().Now
	svc, err := NewService(store, fakeDirectory{}, opts)
	require.NoError(t, err)
	return svc, db
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func countRows(t *testing.T, db *sql.DB, table, deviceID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE device_id = ?`, deviceID).Scan(&n))
	return n
}
