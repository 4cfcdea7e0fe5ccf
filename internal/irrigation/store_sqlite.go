package irrigation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on the service database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store backed by db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// InTx implements Store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlTx{q: tx})
	})
	return classifyStoreError(err)
}

// WithTx exposes an already open transaction as a Tx, for callers that
// combine irrigation writes with other repositories (device provisioning).
// The caller owns commit and rollback.
func (s *SQLiteStore) WithTx(tx *sql.Tx) Tx {
	return &sqlTx{q: tx}
}

func classifyStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrValidation),
		errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrPersistence):
		return err
	case isBusy(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

type sqlTx struct {
	q querier
}

const statusColumns = `device_id, current_moisture, pump_status, auto_mode, last_updated, version`

func (t *sqlTx) LoadStatus(ctx context.Context, deviceID string) (*CurrentStatus, error) {
	var s CurrentStatus
	var pump, auto int
	var lastUpdated string

	err := t.q.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM current_status WHERE device_id = ?`, deviceID,
	).Scan(&s.DeviceID, &s.CurrentMoisture, &pump, &auto, &lastUpdated, &s.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errStatusNotFound
		}
		return nil, fmt.Errorf("loading status: %w", err)
	}

	s.PumpStatus = pump != 0
	s.AutoMode = auto != 0
	if s.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *sqlTx) InsertStatus(ctx context.Context, s *CurrentStatus) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO current_status (`+statusColumns+`) VALUES (?, ?, ?, ?, ?, 0)`,
		s.DeviceID, s.CurrentMoisture, boolToInt(s.PumpStatus), boolToInt(s.AutoMode),
		formatTime(s.LastUpdated),
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintPrimaryKey), isConstraint(err, sqlite3.ErrConstraintUnique):
			return fmt.Errorf("%w: status for %s created concurrently", ErrConflict, s.DeviceID)
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, s.DeviceID)
		}
		return fmt.Errorf("inserting status: %w", err)
	}
	s.Version = 0
	return nil
}

func (t *sqlTx) UpdateStatus(ctx context.Context, s *CurrentStatus) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE current_status
		 SET current_moisture = ?, pump_status = ?, auto_mode = ?, last_updated = ?, version = version + 1
		 WHERE device_id = ? AND version = ?`,
		s.CurrentMoisture, boolToInt(s.PumpStatus), boolToInt(s.AutoMode), formatTime(s.LastUpdated),
		s.DeviceID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: status for %s changed since version %d", ErrConflict, s.DeviceID, s.Version)
	}
	s.Version++
	return nil
}

func (t *sqlTx) AppendReading(ctx context.Context, r *Reading) error {
	result, err := t.q.ExecContext(ctx,
		`INSERT INTO readings (device_id, moisture_level, timestamp) VALUES (?, ?, ?)`,
		r.DeviceID, r.MoistureLevel, formatTime(r.Timestamp),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, r.DeviceID)
		}
		return fmt.Errorf("inserting reading: %w", err)
	}
	if r.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

func (t *sqlTx) AppendCommand(ctx context.Context, c *Command) error {
	result, err := t.q.ExecContext(ctx,
		`INSERT INTO commands (device_id, action, triggered_by, timestamp, acknowledged)
		 VALUES (?, ?, ?, ?, 0)`,
		c.DeviceID, string(c.Action), string(c.TriggeredBy), formatTime(c.Timestamp),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, c.DeviceID)
		}
		return fmt.Errorf("inserting command: %w", err)
	}
	if c.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	c.Acknowledged = false
	c.AcknowledgedAt = nil
	return nil
}

func (t *sqlTx) Acknowledge(ctx context.Context, deviceID string, ids []int64, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, formatTime(at), deviceID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	result, err := t.q.ExecContext(ctx,
		`UPDATE commands SET acknowledged = 1, acknowledged_at = ?
		 WHERE device_id = ? AND acknowledged = 0 AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("acknowledging commands: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("acknowledging commands: %w", err)
	}
	return int(rows), nil
}

const (
	readingColumns = `id, device_id, moisture_level, timestamp`
	commandColumns = `id, device_id, action, triggered_by, timestamp, acknowledged, acknowledged_at`
)

func (t *sqlTx) PendingCommands(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	return t.listCommands(ctx,
		`SELECT `+commandColumns+` FROM commands
		 WHERE device_id = ? AND acknowledged = 0
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, deviceID, limit)
}

func (t *sqlTx) RecentCommands(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	return t.listCommands(ctx,
		`SELECT `+commandColumns+` FROM commands
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, deviceID, limit)
}

func (t *sqlTx) LatestCommand(ctx context.Context, deviceID string) (*Command, error) {
	cmds, err := t.RecentCommands(ctx, deviceID, 1)
	if err != nil || len(cmds) == 0 {
		return nil, err
	}
	return &cmds[0], nil
}

func (t *sqlTx) RecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var ts string
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.MoistureLevel, &ts); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

func (t *sqlTx) LatestReading(ctx context.Context, deviceID string) (*Reading, error) {
	readings, err := t.RecentReadings(ctx, deviceID, 1)
	if err != nil || len(readings) == 0 {
		return nil, err
	}
	return &readings[0], nil
}

func (t *sqlTx) listCommands(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	defer rows.Close()

	commands := []Command{}
	for rows.Next() {
		var c Command
		var action, trigger, ts string
		var acked int
		var ackedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.DeviceID, &action, &trigger, &ts, &acked, &ackedAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		c.Action = Action(action)
		c.TriggeredBy = Trigger(trigger)
		c.Acknowledged = acked != 0
		if c.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if ackedAt.Valid {
			at, err := parseTime(ackedAt.String)
			if err != nil {
				return nil, err
			}
			c.AcknowledgedAt = &at
		}
		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return commands, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
