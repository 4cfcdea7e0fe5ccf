package irrigation

import (
	"context"
	"time"
)

// Store runs units of work against the event log and the status table.
//
// InTx commits when fn returns nil and rolls back otherwise. Errors come
// back classified: ErrConflict for lost compare-and-swap races and busy
// databases, ErrPersistence for everything the store itself failed at, and
// fn's own domain errors unchanged.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside one unit of work.
type Tx interface {
	// LoadStatus returns errStatusNotFound when the device has no row yet.
	LoadStatus(ctx context.Context, deviceID string) (*CurrentStatus, error)

	// InsertStatus creates the row with version 0. A concurrent insert for
	// the same device is reported as ErrConflict.
	InsertStatus(ctx context.Context, s *CurrentStatus) error

	// UpdateStatus writes s if the stored version still equals s.Version and
	// then increments s.Version. A mismatch is ErrConflict.
	UpdateStatus(ctx context.Context, s *CurrentStatus) error

	// AppendReading inserts r and sets r.ID.
	AppendReading(ctx context.Context, r *Reading) error

	// AppendCommand inserts c unacknowledged and sets c.ID.
	AppendCommand(ctx context.Context, c *Command) error

	// Acknowledge flips acknowledged for the device's unacknowledged commands
	// among ids and returns how many rows changed.
	Acknowledge(ctx context.Context, deviceID string, ids []int64, at time.Time) (int, error)

	PendingCommands(ctx context.Context, deviceID string, limit int) ([]Command, error)
	RecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error)
	RecentCommands(ctx context.Context, deviceID string, limit int) ([]Command, error)

	// LatestReading and LatestCommand return nil, nil for an empty log.
	LatestReading(ctx context.Context, deviceID string) (*Reading, error)
	LatestCommand(ctx context.Context, deviceID string) (*Command, error)
}
