package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for devices.
type Repository interface {
	// Create inserts a new device. The ID and timestamps are generated.
	// Returns ErrDeviceExists for a duplicate hardware ID and
	// ErrOwnerNotFound when the owner does not exist.
	Create(ctx context.Context, d *Device) error

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByAPIKeyHash looks a device up by its key digest.
	GetByAPIKeyHash(ctx context.Context, hash string) (*Device, error)

	// GetByHardwareID looks a device up by the identifier the unit reports.
	GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error)

	// List returns every device ordered by creation time.
	List(ctx context.Context) ([]Device, error)

	// ListByOwner returns the devices a user owns, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Device, error)

	// SetActive enables or disables a device.
	SetActive(ctx context.Context, id string, active bool) error

	// UpdateAPIKeyHash replaces the stored key digest (key rotation).
	UpdateAPIKeyHash(ctx context.Context, id, hash string) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	q querier
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{q: db}
}

// WithTx returns a repository whose statements run inside tx.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{q: tx}
}

const deviceColumns = `id, owner_id, name, hardware_id, api_key_hash, is_active, created_at, updated_at`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}

	if d.ID == "" {
		d.ID = "dev-" + uuid.NewString()[:12]
	}
	now := time.Now().UTC().Truncate(time.Second)
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Name = strings.TrimSpace(d.Name)

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Name, d.HardwareID, d.APIKeyHash,
		boolToInt(d.IsActive), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return fmt.Errorf("%w: hardware id %q", ErrDeviceExists, d.HardwareID)
		case isForeignKeyError(err):
			return fmt.Errorf("%w: %s", ErrOwnerNotFound, d.OwnerID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
}

// GetByAPIKeyHash retrieves a device by API key digest.
func (r *SQLiteRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE api_key_hash = ?`, hash)
}

// GetByHardwareID retrieves a device by hardware identifier.
func (r *SQLiteRepository) GetByHardwareID(ctx context.Context, hardwareID string) (*Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE hardware_id = ?`, hardwareID)
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY created_at, id`)
}

// ListByOwner retrieves the devices owned by a user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	return r.list(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

// SetActive enables or disables a device.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, `UPDATE devices SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
}

// UpdateAPIKeyHash replaces the key digest of a device.
func (r *SQLiteRepository) UpdateAPIKeyHash(ctx context.Context, id, hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: api key hash is required", ErrInvalidDevice)
	}
	err := r.update(ctx, `UPDATE devices SET api_key_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC().Format(time.RFC3339), id)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: api key collision", ErrDeviceExists)
	}
	return err
}

func (r *SQLiteRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*Device, error) {
	d, err := scanDeviceRow(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(s rowScanner) (*Device, error) {
	var d Device
	var isActive int
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.OwnerID, &d.Name, &d.HardwareID, &d.APIKeyHash,
		&isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.IsActive = isActive != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
