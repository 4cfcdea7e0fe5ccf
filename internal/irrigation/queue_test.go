package irrigation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseIDs(t *testing.T) {
	assert.Nil(t, normaliseIDs(nil))
	assert.Equal(t, []int64{3, 1, 7}, normaliseIDs([]int64{3, 1, 3, 0, -2, 7, 1}))
	assert.Empty(t, normaliseIDs([]int64{0, -1}))
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, DefaultPendingLimit},
		{0, DefaultPendingLimit},
		{1, 1},
		{MaxPendingLimit, MaxPendingLimit},
		{MaxPendingLimit + 1, MaxPendingLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.in, DefaultPendingLimit, MaxPendingLimit), "limit %d", tt.in)
	}
}

func TestEnqueue_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	// A nil Tx proves validation happens before any store call.
	_, err := Enqueue(ctx, nil, "dev-1", Action("MAYBE"), TriggerManual, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = Enqueue(ctx, nil, "dev-1", ActionOn, Trigger("cron"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestAcknowledge_BatchLimit(t *testing.T) {
	ids := make([]int64, MaxAckBatch+1)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	_, err := Acknowledge(context.Background(), nil, "dev-1", ids, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	n, err := Acknowledge(context.Background(), nil, "dev-1", []int64{0}, time.Now())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
