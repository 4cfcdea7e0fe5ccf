package irrigation

import (
	"context"
	"fmt"
	"time"
)

// Limits on the command queue.
const (
	DefaultPendingLimit = 5
	MaxPendingLimit     = 50

	// MaxAckBatch bounds how many ids one acknowledgement may carry.
	MaxAckBatch = 500
)

// Enqueue appends an unacknowledged command to the device's queue.
func Enqueue(ctx context.Context, tx Tx, deviceID string, action Action, trigger Trigger, at time.Time) (*Command, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !trigger.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}

	cmd := &Command{
		DeviceID:    deviceID,
		Action:      action,
		TriggeredBy: trigger,
		Timestamp:   at,
	}
	if err := tx.AppendCommand(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Pending returns the device's unacknowledged commands, newest first, capped
// at limit. The result is a snapshot of the queue at the time of the call.
func Pending(ctx context.Context, tx Tx, deviceID string, limit int) ([]Command, error) {
	return tx.PendingCommands(ctx, deviceID, clampLimit(limit, DefaultPendingLimit, MaxPendingLimit))
}

// Acknowledge marks the given commands as acknowledged and returns how many
// changed. Ids that belong to another device, do not exist or were already
// acknowledged are ignored, so resubmitting a batch acknowledges nothing new.
func Acknowledge(ctx context.Context, tx Tx, deviceID string, ids []int64, at time.Time) (int, error) {
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > MaxAckBatch {
		return 0, fmt.Errorf("%w: at most %d command ids per acknowledgement", ErrValidation, MaxAckBatch)
	}
	return tx.Acknowledge(ctx, deviceID, ids, at)
}

// normaliseIDs drops non-positive and duplicate ids, keeping first-seen order.
func normaliseIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
