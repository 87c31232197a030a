package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

func TestSweepRemovesOnlyStaleRows(t *testing.T) {
	ctx := context.Background()

	fake := newFakeLeaseStore()
	fake.seed(types.Lease{
		ResourceKey:   "M1_Day_2024-01-01",
		HolderID:      "holder-live",
		LastHeartbeat: time.Now(),
		Active:        true,
	})
	fake.seed(types.Lease{
		ResourceKey:   "M2_Day_2024-01-01",
		HolderID:      "holder-dead",
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
		Active:        true,
	})

	gc, err := NewGC(testCoordinationConfig(), fake)
	require.NoError(t, err)

	removed := gc.Sweep(ctx)
	assert.Equal(t, int64(1), removed)

	_, ok := fake.get("M1_Day_2024-01-01", "holder-live")
	assert.True(t, ok)
	_, ok = fake.get("M2_Day_2024-01-01", "holder-dead")
	assert.False(t, ok)
}

func TestGCRunsOnSchedule(t *testing.T) {
	fake := newFakeLeaseStore()

	cfg := testCoordinationConfig()
	cfg.GCInterval = 20 * time.Millisecond

	gc, err := NewGC(cfg, fake)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.allStaleSweeps >= 2
	}, 2*time.Second, 5*time.Millisecond, "sweep never fired")

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not shut down")
	}
}
