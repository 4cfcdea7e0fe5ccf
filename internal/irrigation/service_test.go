package irrigation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReading_AutoScenario(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)

	// Dry soil turns the pump on.
	res, err := svc.SubmitReading(ctx, testDeviceID, 25, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Command)
	assert.Equal(t, ActionOn, res.Command.Action)
	assert.Equal(t, TriggerAuto, res.Command.TriggeredBy)
	assert.False(t, res.Command.Acknowledged)
	assert.True(t, res.Status.PumpStatus)
	assert.Equal(t, 25.0, res.Status.CurrentMoisture)

	// Inside the band nothing happens.
	res, err = svc.SubmitReading(ctx, testDeviceID, 45, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Command)
	assert.True(t, res.Status.PumpStatus)

	// Wet soil turns it off again.
	res, err = svc.SubmitReading(ctx, testDeviceID, 65, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Command)
	assert.Equal(t, ActionOff, res.Command.Action)
	assert.False(t, res.Status.PumpStatus)

	assert.Equal(t, 3, countRows(t, db, "readings", testDeviceID))
	assert.Equal(t, 2, countRows(t, db, "commands", testDeviceID))
}

func TestSubmitReading_ManualModeSuppressesDecider(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	cmd, err := svc.ToggleManualPump(ctx, testDeviceID, true)
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, cmd.TriggeredBy)

	res, err := svc.SubmitReading(ctx, testDeviceID, 10, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Command, "decider must not fire with auto mode off")
	assert.True(t, res.Status.PumpStatus)
	assert.False(t, res.Status.AutoMode)

	// Dry soil with the pump switched off manually still does not fire.
	_, err = svc.ToggleManualPump(ctx, testDeviceID, false)
	require.NoError(t, err)
	res, err = svc.SubmitReading(ctx, testDeviceID, 5, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Command)

	assert.Equal(t, 2, countRows(t, db, "commands", testDeviceID))
}

func TestSubmitReading_ConcurrentReadingsFireOnce(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitReading(ctx, testDeviceID, 20, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var onCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM commands WHERE device_id = ? AND action = 'ON'`, testDeviceID).Scan(&onCount))
	assert.Equal(t, 1, onCount)
	assert.Equal(t, workers, countRows(t, db, "readings", testDeviceID))
	assert.Equal(t, 0, svc.locks.size(), "lock entries must be released")
}

func TestSubmitReading_Validation(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	for _, m := range []float64{-0.1, 100.01, math.NaN(), math.Inf(1)} {
		_, err := svc.SubmitReading(ctx, testDeviceID, m, nil)
		assert.ErrorIs(t, err, ErrValidation, "moisture %g", m)
	}
	assert.Equal(t, 0, countRows(t, db, "readings", testDeviceID))
	assert.Equal(t, 0, countRows(t, db, "current_status", testDeviceID), "validation must not create a status")

	for _, m := range []float64{0, 100} {
		_, err := svc.SubmitReading(ctx, testDeviceID, m, nil)
		assert.NoError(t, err, "moisture %g is in range", m)
	}
}

func TestSubmitReading_UnknownOrInactiveDevice(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	_, err := svc.SubmitReading(ctx, "dev-ghost", 40, nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = svc.SubmitReading(ctx, idleDeviceID, 40, nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, 0, countRows(t, db, "readings", idleDeviceID))
}

func TestSubmitReading_AcknowledgesBeforeDeciding(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	manual, err := svc.ToggleManualPump(ctx, testDeviceID, false)
	require.NoError(t, err)
	_, err = svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)

	// The next command id is manual.ID+1. Acking it in the same request must
	// not touch the auto command this reading creates.
	res, err := svc.SubmitReading(ctx, testDeviceID, 12, []int64{manual.ID, manual.ID + 1})
	require.NoError(t, err)
	require.NotNil(t, res.Command)
	assert.Equal(t, manual.ID+1, res.Command.ID)
	assert.Equal(t, 1, res.Acknowledged)

	pending, err := svc.Pending(ctx, testDeviceID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Command.ID, pending[0].ID)
}

func TestAcknowledge_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	on, err := svc.ToggleManualPump(ctx, testDeviceID, true)
	require.NoError(t, err)
	off, err := svc.ToggleManualPump(ctx, testDeviceID, false)
	require.NoError(t, err)
	foreign, err := svc.ToggleManualPump(ctx, otherDeviceID, true)
	require.NoError(t, err)

	n, err := svc.Acknowledge(ctx, testDeviceID, []int64{on.ID, on.ID, foreign.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.Acknowledge(ctx, testDeviceID, []int64{on.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second acknowledgement must be a no-op")

	pending, err := svc.Pending(ctx, testDeviceID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, off.ID, pending[0].ID)

	otherPending, err := svc.Pending(ctx, otherDeviceID, 0)
	require.NoError(t, err)
	require.Len(t, otherPending, 1, "another device's ids must not be acknowledged")

	n, err = svc.Acknowledge(ctx, testDeviceID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPending_NewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	var ids []int64
	for i := range 7 {
		cmd, err := svc.ToggleManualPump(ctx, testDeviceID, i%2 == 0)
		require.NoError(t, err)
		ids = append(ids, cmd.ID)
	}

	pending, err := svc.Pending(ctx, testDeviceID, 0)
	require.NoError(t, err)
	require.Len(t, pending, DefaultPendingLimit)
	assert.Equal(t, ids[6], pending[0].ID)
	assert.Equal(t, ids[2], pending[4].ID)

	pending, err = svc.Pending(ctx, testDeviceID, 1000)
	require.NoError(t, err)
	assert.Len(t, pending, 7)
}

func TestProjectionConsistency(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	levels := []float64{55, 31, 47.5, 59.9, 38}
	for _, m := range levels {
		_, err := svc.SubmitReading(ctx, testDeviceID, m, nil)
		require.NoError(t, err)
	}

	snap, err := svc.Status(ctx, OwnerCaller("usr-grower", testDeviceID))
	require.NoError(t, err)
	assert.Equal(t, 38.0, snap.SoilMoisture)

	rebuilt, err := svc.RebuildStatus(ctx, testDeviceID)
	require.NoError(t, err)
	assert.Equal(t, 38.0, rebuilt.CurrentMoisture)
	assert.False(t, rebuilt.PumpStatus)
}

func TestRebuildStatus_MatchesIncrementalProjection(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, nil)

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)
	for _, m := range []float64{22, 40, 70, 15} {
		_, err := svc.SubmitReading(ctx, testDeviceID, m, nil)
		require.NoError(t, err)
	}

	// Corrupt the cache, then rebuild it from the log.
	_, err = db.Exec(`UPDATE current_status SET current_moisture = 99, pump_status = 0 WHERE device_id = ?`, testDeviceID)
	require.NoError(t, err)

	status, err := svc.RebuildStatus(ctx, testDeviceID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, status.CurrentMoisture)
	assert.True(t, status.PumpStatus, "latest command was the auto ON at 15")
	assert.True(t, status.AutoMode)
}

func TestStatus_RoleViews(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	// First access creates the default status.
	snap, err := svc.Status(ctx, OwnerCaller("usr-grower", testDeviceID))
	require.NoError(t, err)
	assert.Equal(t, DefaultMoisture, snap.SoilMoisture)
	assert.False(t, snap.MotorStatus)
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.Actions)

	for i := range 12 {
		_, err := svc.SubmitReading(ctx, testDeviceID, float64(40+i), nil)
		require.NoError(t, err)
	}
	for i := range 6 {
		_, err := svc.ToggleManualPump(ctx, testDeviceID, i%2 == 0)
		require.NoError(t, err)
	}

	owner, err := svc.Status(ctx, OwnerCaller("usr-grower", testDeviceID))
	require.NoError(t, err)
	assert.Len(t, owner.History, 10)
	assert.Len(t, owner.Actions, 6)
	assert.Nil(t, owner.PendingCommands)
	assert.Equal(t, 51.0, owner.SoilMoisture)
	assert.Equal(t, owner.History[0].Timestamp, owner.Timestamp)
	assert.False(t, owner.MotorStatus, "last toggle was OFF")

	dev, err := svc.Status(ctx, DeviceCaller(testDeviceID))
	require.NoError(t, err)
	assert.Len(t, dev.History, 10)
	assert.Empty(t, dev.Actions)
	assert.Len(t, dev.PendingCommands, 5)
	for _, c := range dev.PendingCommands {
		assert.Equal(t, testDeviceID, c.DeviceID)
		assert.False(t, c.Acknowledged)
	}

	_, err = svc.Status(ctx, Caller{Role: "visitor", DeviceID: testDeviceID})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIssueCommand_InvalidAction(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.IssueCommand(context.Background(), testDeviceID, Action("BLINK"))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	rec := &recorder{}
	svc.AddNotifier(rec)

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, testDeviceID, 50, nil)
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, testDeviceID, 10, nil)
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, testDeviceID, 101, nil)
	require.Error(t, err)

	assert.Equal(t, []EventKind{
		EventAutoMode,
		EventReading, EventStatus,
		EventReading, EventCommand, EventStatus,
	}, rec.kinds())
}

func TestNotifications_DeliveredUnderDeviceLock(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	var mu sync.Mutex
	var unlocked []EventKind
	svc.AddNotifier(NotifierFunc(func(ctx context.Context, ev Event) {
		lockCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if unlock, err := svc.locks.Lock(lockCtx, ev.DeviceID); err == nil {
			unlock()
			mu.Lock()
			unlocked = append(unlocked, ev.Kind)
			mu.Unlock()
		}
	}))

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, testDeviceID, 10, nil)
	require.NoError(t, err)
	_, err = svc.IssueCommand(ctx, testDeviceID, ActionOff)
	require.NoError(t, err)
	_, err = svc.RebuildStatus(ctx, testDeviceID)
	require.NoError(t, err)

	assert.Empty(t, unlocked, "events delivered after the device lock was released")
}

func TestNotifications_StatusVersionsIncrease(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	rec := &recorder{}
	svc.AddNotifier(rec)

	_, err := svc.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = svc.SubmitReading(ctx, testDeviceID, float64(10*i), nil)
			case 1:
				_, err = svc.IssueCommand(ctx, testDeviceID, ActionOn)
			default:
				_, err = svc.SetAutoMode(ctx, testDeviceID, i%2 == 0)
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var last int64
	var statuses int
	for _, ev := range rec.events {
		if ev.Status == nil {
			continue
		}
		statuses++
		assert.Greater(t, ev.Status.Version, last, "status event %d went backwards", statuses)
		last = ev.Status.Version
	}
	assert.Equal(t, workers+1, statuses)
}

// failingStore wraps a store and makes AppendCommand fail, which happens
// after the reading and its first projection were written.
type failingStore struct {
	inner Store
}

type failingTx struct {
	Tx
}

func (failingTx) AppendCommand(context.Context, *Command) error {
	return errors.New("disk I/O error")
}

func (f failingStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return f.inner.InTx(ctx, func(tx Tx) error { return fn(failingTx{Tx: tx}) })
}

func TestSubmitReading_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	good, _ := newTestService(t, NewSQLiteStore(db))
	_, err := good.SetAutoMode(ctx, testDeviceID, true)
	require.NoError(t, err)

	bad, _ := newTestService(t, failingStore{inner: NewSQLiteStore(db)})
	rec := &recorder{}
	bad.AddNotifier(rec)

	_, err = bad.SubmitReading(ctx, testDeviceID, 12, nil)
	require.ErrorIs(t, err, ErrPersistence)

	assert.Equal(t, 0, countRows(t, db, "readings", testDeviceID), "reading must be rolled back")
	assert.Empty(t, rec.kinds(), "nothing is announced for a rolled back ingestion")

	snap, err := good.Status(ctx, OwnerCaller("usr-grower", testDeviceID))
	require.NoError(t, err)
	assert.Equal(t, DefaultMoisture, snap.SoilMoisture)
	assert.False(t, snap.MotorStatus)
}

// conflictStore makes the first n status updates lose their CAS.
type conflictStore struct {
	inner Store
	mu    sync.Mutex
	left  int
	calls int
}

type conflictTx struct {
	Tx
	store *conflictStore
}

func (c conflictTx) UpdateStatus(ctx context.Context, s *CurrentStatus) error {
	c.store.mu.Lock()
	c.store.calls++
	lose := c.store.left > 0
	if lose {
		c.store.left--
	}
	c.store.mu.Unlock()
	if lose {
		return ErrConflict
	}
	return c.Tx.UpdateStatus(ctx, s)
}

func (c *conflictStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return c.inner.InTx(ctx, func(tx Tx) error { return fn(conflictTx{Tx: tx, store: c}) })
}

func TestSubmitReading_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store := &conflictStore{inner: NewSQLiteStore(db), left: 2}
	svc, _ := newTestService(t, store)

	res, err := svc.SubmitReading(ctx, testDeviceID, 33, nil)
	require.NoError(t, err)
	assert.Equal(t, 33.0, res.Status.CurrentMoisture)
	assert.Equal(t, 1, countRows(t, db, "readings", testDeviceID), "failed attempts must roll back")

	store.left = 100
	_, err = svc.SubmitReading(ctx, testDeviceID, 34, nil)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, countRows(t, db, "readings", testDeviceID))
}

func TestSubmitReading_CancelledContext(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SubmitReading(ctx, testDeviceID, 40, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, countRows(t, db, "readings", testDeviceID))
}

func TestHistory_Clamped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	for i := range 3 {
		_, err := svc.SubmitReading(ctx, testDeviceID, float64(i), nil)
		require.NoError(t, err)
	}

	readings, err := svc.ReadingHistory(ctx, testDeviceID, -5)
	require.NoError(t, err)
	assert.Len(t, readings, 3)
	assert.Equal(t, 2.0, readings[0].MoistureLevel)

	readings, err = svc.ReadingHistory(ctx, testDeviceID, 2)
	require.NoError(t, err)
	assert.Len(t, readings, 2)

	cmds, err := svc.CommandHistory(ctx, testDeviceID, 0)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.NotNil(t, cmds)
}

func TestNewService_RejectsBadBand(t *testing.T) {
	opts := DefaultOptions()
	opts.Thresholds = Thresholds{Low: 70, High: 20}
	_, err := NewService(NewSQLiteStore(nil), fakeDirectory{}, opts)
	assert.ErrorIs(t, err, ErrValidation)
}
