// Package localstore is the device-local durable cache. It backs timer
// state, device identity and restorable session records with a single
// sqlite file so the agent survives restarts and power loss without the
// backing store being reachable.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/floorlinehq/floorline/api/pkg/system"
)

var ErrNotFound = errors.New("not found")

// Entry is one durable key/value row. Values are opaque to the local
// store; callers encode what they need.
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (Entry) TableName() string {
	return "entries"
}

type LocalStore struct {
	gdb *gorm.DB
}

func Open(path string) (*LocalStore, error) {
	if err := system.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create local store directory: %w", err)
	}

	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", path, err)
	}

	if err := gormDB.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	return &LocalStore{gdb: gormDB}, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}

	var entry Entry
	err := s.gdb.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	return entry.Value, nil
}

func (s *LocalStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key is required")
	}

	entry := Entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	return s.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&entry).Error
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}

	return s.gdb.WithContext(ctx).Delete(&Entry{}, "key = ?", key).Error
}

// List returns all entries whose key starts with prefix, ordered by key.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.gdb.WithContext(ctx).
		Where("key LIKE ?", prefix+"%").
		Order("key ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Keys returns the keys under prefix without loading values.
func (s *LocalStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.gdb.WithContext(ctx).
		Model(&Entry{}).
		Where("key LIKE ?", prefix+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *LocalStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
