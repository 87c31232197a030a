package store

import (
	"context"
	"errors"
	"time"

	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func (s *PostgresStore) CreateDowntimeRecord(ctx context.Context, record *types.DowntimeRecord) (*types.DowntimeRecord, error) {
	if record.ResourceKey == "" {
		return nil, errors.New("resource key is required")
	}
	if record.Minutes <= 0 {
		return nil, errors.New("minutes must be positive")
	}

	if record.ID == "" {
		record.ID = system.GenerateDowntimeID()
	}
	if record.Created.IsZero() {
		record.Created = time.Now()
	}

	db := s.gdb.WithContext(ctx)

	err := db.Create(&record).Error
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *PostgresStore) ListDowntimeRecords(ctx context.Context, q *ListDowntimeRecordsQuery) ([]*types.DowntimeRecord, error) {
	if q == nil {
		q = &ListDowntimeRecordsQuery{}
	}

	query := s.gdb.WithContext(ctx).Model(&types.DowntimeRecord{})

	if q.ResourceKey != "" {
		query = query.Where("resource_key = ?", q.ResourceKey)
	}
	if q.MachineName != "" {
		query = query.Where("machine_name = ?", q.MachineName)
	}
	if q.Shift != "" {
		query = query.Where("shift = ?", q.Shift)
	}
	if q.Date != "" {
		query = query.Where("date = ?", q.Date)
	}
	if !q.Since.IsZero() {
		query = query.Where("created >= ?", q.Since)
	}

	var records []*types.DowntimeRecord
	err := query.Order("created DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}
