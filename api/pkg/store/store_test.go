package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/suite"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreTestSuite))
}

type PostgresStoreTestSuite struct {
	suite.Suite
	ctx context.Context
	db  *PostgresStore
}

func (suite *PostgresStoreTestSuite) SetupTest() {
	suite.ctx = context.Background()

	var storeCfg config.Store

	err := envconfig.Process("", &storeCfg)
	suite.NoError(err)

	if storeCfg.Host == "" {
		suite.T().Skip("POSTGRES_HOST not set, skipping store tests")
	}

	store, err := NewPostgresStore(storeCfg)
	suite.NoError(err)

	suite.T().Cleanup(func() {
		_ = store.Close()
	})

	suite.db = store
}

func (suite *PostgresStoreTestSuite) testResourceKey() string {
	return fmt.Sprintf("TestMachine-%s_Day_2024-01-02", system.GenerateUUID())
}

func (suite *PostgresStoreTestSuite) TestLeaseLifecycle() {
	resourceKey := suite.testResourceKey()

	suite.T().Cleanup(func() {
		_, _ = suite.db.DeleteAllStaleLeases(suite.ctx, time.Now().Add(time.Hour))
	})

	started := time.Now().Truncate(time.Millisecond)

	lease, err := suite.db.UpsertLease(suite.ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      "holder-a",
		HolderLabel:   "amber-kiosk-100",
		StartedAt:     started,
		LastHeartbeat: started,
		Active:        true,
	})
	suite.NoError(err)
	suite.NotNil(lease)

	leases, err := suite.db.QueryActiveLeases(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Len(leases, 1)
	suite.Equal("holder-a", leases[0].HolderID)
	suite.Equal("amber-kiosk-100", leases[0].HolderLabel)

	// heartbeat
	renewed := started.Add(30 * time.Second)
	err = suite.db.TouchLease(suite.ctx, resourceKey, "holder-a", renewed)
	suite.NoError(err)

	leases, err = suite.db.QueryActiveLeases(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Len(leases, 1)
	suite.WithinDuration(renewed, leases[0].LastHeartbeat, time.Second)

	// touching someone else's lease must not invent a row
	err = suite.db.TouchLease(suite.ctx, resourceKey, "holder-b", renewed)
	suite.ErrorIs(err, ErrNotFound)

	err = suite.db.DeleteLease(suite.ctx, resourceKey, "holder-a")
	suite.NoError(err)

	leases, err = suite.db.QueryActiveLeases(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Empty(leases)
}

func (suite *PostgresStoreTestSuite) TestUpsertLeaseOverwritesAbandonedRow() {
	resourceKey := suite.testResourceKey()

	suite.T().Cleanup(func() {
		_ = suite.db.DeleteLease(suite.ctx, resourceKey, "holder-a")
	})

	stale := time.Now().Add(-10 * time.Minute)
	_, err := suite.db.UpsertLease(suite.ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      "holder-a",
		HolderLabel:   "before-crash",
		StartedAt:     stale,
		LastHeartbeat: stale,
		Active:        true,
	})
	suite.NoError(err)

	now := time.Now()
	_, err = suite.db.UpsertLease(suite.ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      "holder-a",
		HolderLabel:   "after-restart",
		StartedAt:     now,
		LastHeartbeat: now,
		Active:        true,
	})
	suite.NoError(err)

	leases, err := suite.db.QueryActiveLeases(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Len(leases, 1)
	suite.Equal("after-restart", leases[0].HolderLabel)
}

func (suite *PostgresStoreTestSuite) TestDeleteStaleLeases() {
	resourceKey := suite.testResourceKey()

	suite.T().Cleanup(func() {
		_ = suite.db.DeleteLease(suite.ctx, resourceKey, "holder-fresh")
		_ = suite.db.DeleteLease(suite.ctx, resourceKey, "holder-stale")
	})

	now := time.Now()

	_, err := suite.db.UpsertLease(suite.ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      "holder-fresh",
		LastHeartbeat: now,
		Active:        true,
	})
	suite.NoError(err)

	_, err = suite.db.UpsertLease(suite.ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      "holder-stale",
		LastHeartbeat: now.Add(-5 * time.Minute),
		Active:        true,
	})
	suite.NoError(err)

	removed, err := suite.db.DeleteStaleLeases(suite.ctx, resourceKey, now.Add(-2*time.Minute))
	suite.NoError(err)
	suite.Equal(int64(1), removed)

	leases, err := suite.db.QueryActiveLeases(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Len(leases, 1)
	suite.Equal("holder-fresh", leases[0].HolderID)
}

func (suite *PostgresStoreTestSuite) TestTimerMirrorRoundTrip() {
	resourceKey := suite.testResourceKey()

	suite.T().Cleanup(func() {
		_ = suite.db.DeleteTimerMirror(suite.ctx, resourceKey)
	})

	startTime := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	resumedAt := startTime.Add(30 * time.Minute)

	_, err := suite.db.UpsertTimerMirror(suite.ctx, &types.TimerMirror{
		ResourceKey: resourceKey,
		HolderID:    "holder-a",
		State: types.TimerState{
			ResourceKey:    resourceKey,
			IsRunning:      true,
			StartTime:      &startTime,
			LastResumedAt:  &resumedAt,
			TotalRunTimeMs: 120000,
			PauseHistory: []types.PauseInterval{
				{
					PausedAt:   startTime.Add(10 * time.Minute),
					ResumedAt:  resumedAt,
					DurationMs: 1200000,
					Reason:     "material jam",
				},
			},
		},
	})
	suite.NoError(err)

	mirror, err := suite.db.GetTimerMirror(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.Equal("holder-a", mirror.HolderID)
	suite.True(mirror.State.IsRunning)
	suite.Equal(int64(120000), mirror.State.TotalRunTimeMs)
	suite.Len(mirror.State.PauseHistory, 1)
	suite.Equal("material jam", mirror.State.PauseHistory[0].Reason)
	suite.NotNil(mirror.State.StartTime)

	// upsert replaces the state blob
	_, err = suite.db.UpsertTimerMirror(suite.ctx, &types.TimerMirror{
		ResourceKey: resourceKey,
		HolderID:    "holder-a",
		State: types.TimerState{
			ResourceKey:    resourceKey,
			IsRunning:      false,
			StartTime:      &startTime,
			PausedAt:       &resumedAt,
			TotalRunTimeMs: 240000,
		},
	})
	suite.NoError(err)

	mirror, err = suite.db.GetTimerMirror(suite.ctx, resourceKey)
	suite.NoError(err)
	suite.False(mirror.State.IsRunning)
	suite.Equal(int64(240000), mirror.State.TotalRunTimeMs)

	err = suite.db.DeleteTimerMirror(suite.ctx, resourceKey)
	suite.NoError(err)

	_, err = suite.db.GetTimerMirror(suite.ctx, resourceKey)
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *PostgresStoreTestSuite) TestDowntimeRecords() {
	resourceKey := suite.testResourceKey()

	pausedAt := time.Now().Add(-3 * time.Minute)
	resumedAt := time.Now()

	record, err := suite.db.CreateDowntimeRecord(suite.ctx, &types.DowntimeRecord{
		ResourceKey: resourceKey,
		MachineName: "TestMachine",
		Shift:       types.ShiftDay,
		Date:        "2024-01-02",
		Reason:      "changeover",
		Minutes:     3,
		Source:      types.DowntimeSourceTimerPause,
		PausedAt:    pausedAt,
		ResumedAt:   resumedAt,
	})
	suite.NoError(err)
	suite.NotEmpty(record.ID)
	suite.False(record.Created.IsZero())

	records, err := suite.db.ListDowntimeRecords(suite.ctx, &ListDowntimeRecordsQuery{
		ResourceKey: resourceKey,
	})
	suite.NoError(err)
	suite.Len(records, 1)
	suite.Equal("changeover", records[0].Reason)
	suite.Equal(3, records[0].Minutes)
	suite.Equal(types.DowntimeSourceTimerPause, records[0].Source)

	// shift filter should exclude
	records, err = suite.db.ListDowntimeRecords(suite.ctx, &ListDowntimeRecordsQuery{
		ResourceKey: resourceKey,
		Shift:       types.ShiftNight,
	})
	suite.NoError(err)
	suite.Empty(records)

	_, err = suite.db.CreateDowntimeRecord(suite.ctx, &types.DowntimeRecord{
		ResourceKey: resourceKey,
		Minutes:     0,
	})
	suite.Error(err)
}
