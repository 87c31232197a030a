package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm/clause"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

func (s *PostgresStore) QueryActiveLeases(ctx context.Context, resourceKey string) ([]*types.Lease, error) {
	if resourceKey == "" {
		return nil, errors.New("resource key is required")
	}

	db := s.gdb.WithContext(ctx)

	var leases []*types.Lease
	err := db.Where("resource_key = ? AND active = ?", resourceKey, true).
		Order("last_heartbeat DESC").
		Find(&leases).Error
	if err != nil {
		return nil, err
	}

	return leases, nil
}

func (s *PostgresStore) UpsertLease(ctx context.Context, lease *types.Lease) (*types.Lease, error) {
	if lease.ResourceKey == "" {
		return nil, errors.New("resource key is required")
	}
	if lease.HolderID == "" {
		return nil, errors.New("holder ID is required")
	}

	db := s.gdb.WithContext(ctx)

	// Use upsert so re-acquiring after a crash overwrites the abandoned row
	err := db.Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&lease).Error
	if err != nil {
		return nil, err
	}

	return lease, nil
}

func (s *PostgresStore) TouchLease(ctx context.Context, resourceKey, holderID string, at time.Time) error {
	if resourceKey == "" {
		return errors.New("resource key is required")
	}
	if holderID == "" {
		return errors.New("holder ID is required")
	}

	db := s.gdb.WithContext(ctx)

	result := db.Model(&types.Lease{}).
		Where("resource_key = ? AND holder_id = ?", resourceKey, holderID).
		Update("last_heartbeat", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) DeleteLease(ctx context.Context, resourceKey, holderID string) error {
	if resourceKey == "" {
		return errors.New("resource key is required")
	}
	if holderID == "" {
		return errors.New("holder ID is required")
	}

	db := s.gdb.WithContext(ctx)

	err := db.Delete(&types.Lease{}, "resource_key = ? AND holder_id = ?", resourceKey, holderID).Error
	if err != nil {
		return err
	}

	return nil
}

func (s *PostgresStore) DeleteStaleLeases(ctx context.Context, resourceKey string, olderThan time.Time) (int64, error) {
	if resourceKey == "" {
		return 0, errors.New("resource key is required")
	}

	db := s.gdb.WithContext(ctx)

	result := db.Where("resource_key = ? AND last_heartbeat < ?", resourceKey, olderThan).
		Delete(&types.Lease{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (s *PostgresStore) DeleteAllStaleLeases(ctx context.Context, olderThan time.Time) (int64, error) {
	db := s.gdb.WithContext(ctx)

	result := db.Where("last_heartbeat < ?", olderThan).
		Delete(&types.Lease{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
