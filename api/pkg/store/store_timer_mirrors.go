package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

func (s *PostgresStore) UpsertTimerMirror(ctx context.Context, mirror *types.TimerMirror) (*types.TimerMirror, error) {
	if mirror.ResourceKey == "" {
		return nil, errors.New("resource key is required")
	}
	if mirror.HolderID == "" {
		return nil, errors.New("holder ID is required")
	}

	mirror.UpdatedAt = time.Now()

	db := s.gdb.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&mirror).Error
	if err != nil {
		return nil, err
	}

	return mirror, nil
}

func (s *PostgresStore) GetTimerMirror(ctx context.Context, resourceKey string) (*types.TimerMirror, error) {
	if resourceKey == "" {
		return nil, errors.New("resource key is required")
	}

	db := s.gdb.WithContext(ctx)

	var mirror types.TimerMirror
	err := db.Where("resource_key = ?", resourceKey).First(&mirror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &mirror, nil
}

func (s *PostgresStore) DeleteTimerMirror(ctx context.Context, resourceKey string) error {
	if resourceKey == "" {
		return errors.New("resource key is required")
	}

	db := s.gdb.WithContext(ctx)

	err := db.Delete(&types.TimerMirror{}, "resource_key = ?", resourceKey).Error
	if err != nil {
		return err
	}

	return nil
}
