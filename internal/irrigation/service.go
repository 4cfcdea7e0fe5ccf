package irrigation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
)

// History limits for the owner-facing views.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Logger defines the logging interface used by the Service.
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

// DeviceDirectory resolves device IDs. *device.Registry satisfies it.
type DeviceDirectory interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Notifier receives committed changes. Notify must not block for long; it
// runs on the request goroutine after the transaction has committed and
// before the device lock is released, so a device's events arrive in commit
// order.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Options tunes a Service.
type Options struct {
	Thresholds      Thresholds
	DefaultMoisture float64

	// PendingLimit is the size of the queue shown to a device in its status.
	PendingLimit int

	// HistoryLimit and ActionsLimit size the owner's status view.
	HistoryLimit int
	ActionsLimit int

	// MaxConflictRetries is how many times a transaction that lost a
	// status CAS is replayed before ErrConflict is returned.
	MaxConflictRetries int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the 30/60 band and the original view sizes.
func DefaultOptions() Options {
	return Options{
		Thresholds:         DefaultThresholds,
		DefaultMoisture:    DefaultMoisture,
		PendingLimit:       DefaultPendingLimit,
		HistoryLimit:       10,
		ActionsLimit:       10,
		MaxConflictRetries: 3,
	}
}

// OptionsFromConfig maps the irrigation config section onto Options.
func OptionsFromConfig(cfg config.IrrigationConfig) Options {
	opts := DefaultOptions()
	opts.Thresholds = Thresholds{Low: cfg.LowThreshold, High: cfg.HighThreshold}
	opts.DefaultMoisture = cfg.DefaultMoisture
	if cfg.PendingLimit > 0 {
		opts.PendingLimit = cfg.PendingLimit
	}
	if cfg.HistoryLimit > 0 {
		opts.HistoryLimit = cfg.HistoryLimit
	}
	if cfg.ActionsLimit > 0 {
		opts.ActionsLimit = cfg.ActionsLimit
	}
	if cfg.MaxConflictRetries >= 0 {
		opts.MaxConflictRetries = cfg.MaxConflictRetries
	}
	return opts
}

// Service is the irrigation core. It is safe for concurrent use.
type Service struct {
	store     Store
	devices   DeviceDirectory
	opts      Options
	projector Projector
	locks     *keyedMutex

	mu        sync.RWMutex
	notifiers []Notifier
	logger    Logger
}

// NewService creates the irrigation core.
//
// Parameters:
//   - store: Event log and status persistence
//   - devices: Resolves device IDs; inactive or unknown devices are rejected
//   - opts: Thresholds, view sizes and retry budget
//
// Returns:
//   - *Service: Ready to use
//   - error: If opts.Thresholds is not a valid band
func NewService(store Store, devices DeviceDirectory, opts Options) (*Service, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	return &Service{
		store:     store,
		devices:   devices,
		opts:      opts,
		projector: Projector{DefaultMoisture: opts.DefaultMoisture},
		locks:     newKeyedMutex(),
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// AddNotifier registers n for committed changes.
func (s *Service) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Thresholds returns the configured auto-control band.
func (s *Service) Thresholds() Thresholds {
	return s.opts.Thresholds
}

// ValidateMoisture rejects values outside [0, 100] and non-finite values.
func ValidateMoisture(moisture float64) error {
	if math.IsNaN(moisture) || math.IsInf(moisture, 0) {
		return fmt.Errorf("%w: moisture must be a finite number", ErrValidation)
	}
	if moisture < 0 || moisture > 100 {
		return fmt.Errorf("%w: moisture %g outside [0, 100]", ErrValidation, moisture)
	}
	return nil
}

// SubmitReading records a reading and applies everything it implies:
//
//  1. the reading is appended and projected into CurrentStatus
//  2. the acknowledgements in ackIDs are applied
//  3. in auto mode the decider may enqueue a command, which is projected too
//
// Acknowledgements run before the decider so a command created by this call
// can never be part of its own ack batch.
//
// The whole operation is one transaction. Validation and device lookup
// happen before it starts and leave no trace on failure.
//
// Returns:
//   - *IngestResult: The stored reading, the auto command if any, the
//     number of newly acknowledged commands and the final status
//   - error: ErrValidation, ErrDeviceNotFound, ErrConflict or ErrPersistence
func (s *Service) SubmitReading(ctx context.Context, deviceID string, moisture float64, ackIDs []int64) (*IngestResult, error) {
	if err := ValidateMoisture(moisture); err != nil {
		return nil, err
	}
	ackIDs = normaliseIDs(ackIDs)
	if len(ackIDs) > MaxAckBatch {
		return nil, fmt.Errorf("%w: at most %d command ids per acknowledgement", ErrValidation, MaxAckBatch)
	}
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	var result *IngestResult
	err := s.mutate(ctx, deviceID, func(tx Tx) ([]Event, error) {
		status, now, err := s.loadStatus(ctx, tx, deviceID)
		if err != nil {
			return nil, err
		}

		reading := &Reading{DeviceID: deviceID, MoistureLevel: moisture, Timestamp: now}
		if err := tx.AppendReading(ctx, reading); err != nil {
			return nil, err
		}
		next := s.projector.ApplyReading(*status, *reading)
		if err := tx.UpdateStatus(ctx, &next); err != nil {
			return nil, err
		}

		acked, err := Acknowledge(ctx, tx, deviceID, ackIDs, now)
		if err != nil {
			return nil, err
		}

		var cmd *Command
		if action, ok := s.opts.Thresholds.Decide(moisture, next); ok {
			if cmd, err = Enqueue(ctx, tx, deviceID, action, TriggerAuto, now); err != nil {
				return nil, err
			}
			next = s.projector.ApplyCommand(next, *cmd)
			if err := tx.UpdateStatus(ctx, &next); err != nil {
				return nil, err
			}
		}

		result = &IngestResult{Reading: *reading, Command: cmd, Acknowledged: acked, Status: next}
		return ingestEvents(deviceID, result), nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Debug("reading ingested",
		"device_id", deviceID,
		"reading_id", result.Reading.ID,
		"moisture", moisture,
		"acknowledged", result.Acknowledged,
	)
	if result.Command != nil {
		s.log().Info("auto control issued command",
			"device_id", deviceID,
			"command_id", result.Command.ID,
			"action", result.Command.Action,
			"moisture", moisture,
		)
	}

	return result, nil
}

// ingestEvents describes an ingested reading: the reading, the auto command
// if one was issued, then the resulting status.
func ingestEvents(deviceID string, result *IngestResult) []Event {
	reading, status := result.Reading, result.Status
	events := []Event{{Kind: EventReading, DeviceID: deviceID, Reading: &reading}}
	if result.Command != nil {
		cmd := *result.Command
		events = append(events, Event{Kind: EventCommand, DeviceID: deviceID, Command: &cmd})
	}
	return append(events, Event{Kind: EventStatus, DeviceID: deviceID, Status: &status})
}

// ToggleManualPump enqueues a manual command for the desired pump state.
// Manual commands are accepted in either control mode.
func (s *Service) ToggleManualPump(ctx context.Context, deviceID string, on bool) (*Command, error) {
	return s.IssueCommand(ctx, deviceID, ActionFor(on))
}

// IssueCommand enqueues a manual command and projects it into CurrentStatus.
func (s *Service) IssueCommand(ctx context.Context, deviceID string, action Action) (*Command, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	var cmd *Command
	var status CurrentStatus
	err := s.mutate(ctx, deviceID, func(tx Tx) ([]Event, error) {
		current, now, err := s.loadStatus(ctx, tx, deviceID)
		if err != nil {
			return nil, err
		}
		if cmd, err = Enqueue(ctx, tx, deviceID, action, TriggerManual, now); err != nil {
			return nil, err
		}
		status = s.projector.ApplyCommand(*current, *cmd)
		if err := tx.UpdateStatus(ctx, &status); err != nil {
			return nil, err
		}
		issued, projected := *cmd, status
		return []Event{
			{Kind: EventCommand, DeviceID: deviceID, Command: &issued},
			{Kind: EventStatus, DeviceID: deviceID, Status: &projected},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("manual command issued", "device_id", deviceID, "command_id", cmd.ID, "action", cmd.Action)
	return cmd, nil
}

// SetAutoMode enables or disables auto control for a device.
func (s *Service) SetAutoMode(ctx context.Context, deviceID string, enabled bool) (*CurrentStatus, error) {
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	var status CurrentStatus
	err := s.mutate(ctx, deviceID, func(tx Tx) ([]Event, error) {
		current, now, err := s.loadStatus(ctx, tx, deviceID)
		if err != nil {
			return nil, err
		}
		status = s.projector.ApplyAutoMode(*current, enabled, now)
		if err := tx.UpdateStatus(ctx, &status); err != nil {
			return nil, err
		}
		changed := status
		return []Event{{Kind: EventAutoMode, DeviceID: deviceID, Status: &changed}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("auto mode changed", "device_id", deviceID, "enabled", enabled)
	return &status, nil
}

// Status assembles the view for caller. The status row is created on first
// access. Everything is read in one transaction, so the snapshot, history
// and queue are mutually consistent.
func (s *Service) Status(ctx context.Context, caller Caller) (*Snapshot, error) {
	if caller.Role != RoleOwner && caller.Role != RoleDevice {
		return nil, fmt.Errorf("%w: unknown caller role %q", ErrValidation, caller.Role)
	}
	if err := s.requireDevice(ctx, caller.DeviceID); err != nil {
		return nil, err
	}

	var snap *Snapshot
	err := s.serialised(ctx, caller.DeviceID, func(tx Tx) error {
		status, _, err := s.loadStatus(ctx, tx, caller.DeviceID)
		if err != nil {
			return err
		}
		snap, err = s.assembleSnapshot(ctx, tx, caller, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) assembleSnapshot(ctx context.Context, tx Tx, caller Caller, status *CurrentStatus) (*Snapshot, error) {
	history, err := tx.RecentReadings(ctx, caller.DeviceID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SoilMoisture: status.CurrentMoisture,
		MotorStatus:  status.PumpStatus,
		IsAutoMode:   status.AutoMode,
		Timestamp:    status.LastUpdated,
		History:      history,
		Actions:      []Command{},
	}
	if len(history) > 0 {
		snap.SoilMoisture = history[0].MoistureLevel
		snap.Timestamp = history[0].Timestamp
	}

	switch caller.Role {
	case RoleOwner:
		if snap.Actions, err = tx.RecentCommands(ctx, caller.DeviceID, s.opts.ActionsLimit); err != nil {
			return nil, err
		}
	case RoleDevice:
		if snap.PendingCommands, err = Pending(ctx, tx, caller.DeviceID, s.opts.PendingLimit); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// RebuildStatus re-derives CurrentStatus from the log: moisture from the
// latest reading, pump state from the latest command. auto_mode is kept.
func (s *Service) RebuildStatus(ctx context.Context, deviceID string) (*CurrentStatus, error) {
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	var status CurrentStatus
	err := s.mutate(ctx, deviceID, func(tx Tx) ([]Event, error) {
		current, _, err := s.loadStatus(ctx, tx, deviceID)
		if err != nil {
			return nil, err
		}
		reading, err := tx.LatestReading(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		cmd, err := tx.LatestCommand(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		status = s.projector.Rebuild(*current, reading, cmd)
		if err := tx.UpdateStatus(ctx, &status); err != nil {
			return nil, err
		}
		rebuilt := status
		return []Event{{Kind: EventStatus, DeviceID: deviceID, Status: &rebuilt}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("status rebuilt",
		"device_id", deviceID,
		"moisture", status.CurrentMoisture,
		"pump_status", status.PumpStatus,
	)
	return &status, nil
}

// InitializeStatus creates the default status row inside a caller's
// transaction. Used when a device is provisioned. An existing row is
// returned unchanged.
func (s *Service) InitializeStatus(ctx context.Context, tx Tx, deviceID string) (*CurrentStatus, error) {
	status, _, err := s.loadStatus(ctx, tx, deviceID)
	return status, err
}

// Pending returns the device's unacknowledged commands, newest first.
// limit is clamped to [1, MaxPendingLimit]; zero selects the default.
func (s *Service) Pending(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	var cmds []Command
	err := s.withRetry(ctx, deviceID, func(tx Tx) error {
		var err error
		cmds, err = Pending(ctx, tx, deviceID, limit)
		return err
	})
	return cmds, err
}

// Acknowledge marks the device's commands in ids as acknowledged and returns
// the number newly acknowledged. Repeating a batch returns 0.
func (s *Service) Acknowledge(ctx context.Context, deviceID string, ids []int64) (int, error) {
	ids = normaliseIDs(ids)
	if len(ids) > MaxAckBatch {
		return 0, fmt.Errorf("%w: at most %d command ids per acknowledgement", ErrValidation, MaxAckBatch)
	}
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return 0, err
	}

	var n int
	err := s.withRetry(ctx, deviceID, func(tx Tx) error {
		var err error
		n, err = Acknowledge(ctx, tx, deviceID, ids, s.opts.Clock().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log().Debug("commands acknowledged", "device_id", deviceID, "count", n)
	}
	return n, nil
}

// ReadingHistory returns the newest readings. limit is clamped to
// [1, MaxHistoryLimit]; zero selects DefaultHistoryLimit.
func (s *Service) ReadingHistory(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	var readings []Reading
	err := s.withRetry(ctx, deviceID, func(tx Tx) error {
		var err error
		readings, err = tx.RecentReadings(ctx, deviceID, limit)
		return err
	})
	return readings, err
}

// CommandHistory returns the newest commands, acknowledged or not.
func (s *Service) CommandHistory(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	if err := s.requireDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	var cmds []Command
	err := s.withRetry(ctx, deviceID, func(tx Tx) error {
		var err error
		cmds, err = tx.RecentCommands(ctx, deviceID, limit)
		return err
	})
	return cmds, err
}

// loadStatus returns the device's status, creating the default row on first
// access, together with the timestamp to stamp new events with. The
// timestamp never precedes the status's last_updated, so per-device event
// order and timestamp order agree even if the wall clock steps back.
func (s *Service) loadStatus(ctx context.Context, tx Tx, deviceID string) (*CurrentStatus, time.Time, error) {
	now := s.opts.Clock().UTC()

	status, err := tx.LoadStatus(ctx, deviceID)
	switch {
	case errors.Is(err, errStatusNotFound):
		initial := s.projector.Initial(deviceID, now)
		if err := tx.InsertStatus(ctx, &initial); err != nil {
			return nil, time.Time{}, err
		}
		return &initial, now, nil
	case err != nil:
		return nil, time.Time{}, err
	}

	if now.Before(status.LastUpdated) {
		now = status.LastUpdated
	}
	return status, now, nil
}

func (s *Service) requireDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrDeviceNotFound
	}
	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return fmt.Errorf("%w: resolving device: %w", ErrPersistence, err)
	}
	if !d.IsActive {
		return fmt.Errorf("%w: %s is inactive", ErrDeviceNotFound, deviceID)
	}
	return nil
}

// serialised runs fn under the device's lock with conflict retries.
func (s *Service) serialised(ctx context.Context, deviceID string, fn func(tx Tx) error) error {
	unlock, err := s.locks.Lock(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("waiting for device %s: %w", deviceID, err)
	}
	defer unlock()
	return s.withRetry(ctx, deviceID, fn)
}

// mutate is serialised for writes. fn returns the events describing its
// change; they are delivered after the commit and before the device lock is
// released, so each device's notifications arrive in commit order.
// Notifiers must not block.
func (s *Service) mutate(ctx context.Context, deviceID string, fn func(tx Tx) ([]Event, error)) error {
	unlock, err := s.locks.Lock(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("waiting for device %s: %w", deviceID, err)
	}
	defer unlock()

	var events []Event
	err = s.withRetry(ctx, deviceID, func(tx Tx) error {
		var err error
		events, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	s.notify(ctx, events...)
	return nil
}

// withRetry replays fn in a fresh transaction while it fails with
// ErrConflict, at most MaxConflictRetries extra times.
func (s *Service) withRetry(ctx context.Context, deviceID string, fn func(tx Tx) error) error {
	attempts := s.opts.MaxConflictRetries + 1
	for attempt := 1; ; attempt++ {
		err := s.store.InTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt >= attempts || ctx.Err() != nil {
			s.log().Warn("conflict retries exhausted", "device_id", deviceID, "attempts", attempt, "error", err)
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		s.log().Debug("status conflict, retrying", "device_id", deviceID, "attempt", attempt)
	}
}

func (s *Service) notify(ctx context.Context, events ...Event) {
	s.mu.RLock()
	notifiers := s.notifiers
	s.mu.RUnlock()

	for _, n := range notifiers {
		for _, ev := range events {
			n.Notify(ctx, ev)
		}
	}
}

func (s *Service) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
