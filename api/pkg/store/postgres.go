package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

type PostgresStore struct {
	cfg config.Store

	gdb *gorm.DB
}

var _ Store = &PostgresStore{}

func NewPostgresStore(cfg config.Store) (*PostgresStore, error) {
	// Waiting for connection
	gormDB, err := connect(context.Background(), connectConfig{
		host:            cfg.Host,
		port:            cfg.Port,
		schemaName:      cfg.Schema,
		database:        cfg.Database,
		username:        cfg.Username,
		password:        cfg.Password,
		ssl:             cfg.SSL,
		idleConns:       cfg.IdleConns,
		maxConns:        cfg.MaxConns,
		maxConnIdleTime: cfg.MaxConnIdleTime,
		maxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{
		cfg: cfg,
		gdb: gormDB,
	}

	if cfg.AutoMigrate {
		if err := store.autoMigrate(); err != nil {
			return nil, fmt.Errorf("there was an error doing the migration: %w", err)
		}
	}

	return store, nil
}

func (s *PostgresStore) autoMigrate() error {
	return s.gdb.WithContext(context.Background()).AutoMigrate(
		&types.Lease{},
		&types.TimerMirror{},
		&types.DowntimeRecord{},
	)
}

type connectConfig struct {
	host            string
	port            int
	schemaName      string
	database        string
	username        string
	password        string
	ssl             bool
	idleConns       int
	maxConns        int
	maxConnIdleTime time.Duration
	maxConnLifetime time.Duration
}

func (c connectConfig) dsn() string {
	sslSettings := "sslmode=disable"
	if c.ssl {
		sslSettings = "sslmode=require"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s %s",
		c.host, c.port, c.username, c.password, c.database, sslSettings,
	)
	if c.schemaName != "" {
		dsn += " search_path=" + c.schemaName
	}

	return dsn
}

func connect(ctx context.Context, cfg connectConfig) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for postgres to be ready")
		default:
			gormDB, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
				Logger: NewGormLogger(500*time.Millisecond, true),
			})
			if err != nil {
				log.Warn().Err(err).Msg("sql store connector can't reach postgres, waiting")
				time.Sleep(1 * time.Second)
				continue
			}

			sqlDB, err := gormDB.DB()
			if err != nil {
				return nil, err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				log.Warn().Err(err).Msg("sql store connector can't ping postgres, waiting")
				time.Sleep(1 * time.Second)
				continue
			}

			sqlDB.SetMaxIdleConns(cfg.idleConns)
			sqlDB.SetMaxOpenConns(cfg.maxConns)
			sqlDB.SetConnMaxIdleTime(cfg.maxConnIdleTime)
			sqlDB.SetConnMaxLifetime(cfg.maxConnLifetime)

			return gormDB, nil
		}
	}
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
