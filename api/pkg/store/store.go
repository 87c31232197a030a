package store

import (
	"context"
	"errors"
	"time"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

// ListDowntimeRecordsQuery filters downtime listings. Zero-value fields
// are ignored.
type ListDowntimeRecordsQuery struct {
	ResourceKey string      `json:"resource_key"`
	MachineName string      `json:"machine_name"`
	Shift       types.Shift `json:"shift"`
	Date        string      `json:"date"`
	Since       time.Time   `json:"since"`
}

// Store is the backing-store surface the coordination layer depends on.
// The backing store is shared across devices and eventually consistent
// from the agent's point of view; callers must tolerate transient errors
// and stale reads.
type Store interface {
	// leases
	QueryActiveLeases(ctx context.Context, resourceKey string) ([]*types.Lease, error)
	UpsertLease(ctx context.Context, lease *types.Lease) (*types.Lease, error)
	TouchLease(ctx context.Context, resourceKey, holderID string, at time.Time) error
	DeleteLease(ctx context.Context, resourceKey, holderID string) error
	DeleteStaleLeases(ctx context.Context, resourceKey string, olderThan time.Time) (int64, error)
	DeleteAllStaleLeases(ctx context.Context, olderThan time.Time) (int64, error)

	// timer mirrors
	UpsertTimerMirror(ctx context.Context, mirror *types.TimerMirror) (*types.TimerMirror, error)
	GetTimerMirror(ctx context.Context, resourceKey string) (*types.TimerMirror, error)
	DeleteTimerMirror(ctx context.Context, resourceKey string) error

	// downtime
	CreateDowntimeRecord(ctx context.Context, record *types.DowntimeRecord) (*types.DowntimeRecord, error)
	ListDowntimeRecords(ctx context.Context, q *ListDowntimeRecordsQuery) ([]*types.DowntimeRecord, error)

	Close() error
}

var ErrNotFound = errors.New("not found")
