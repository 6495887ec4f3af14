package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hesampakdaman/messaging/internal/config"
	"github.com/hesampakdaman/messaging/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrStoreUnavailable wraps any failure to reach or provision the database
// at startup. It is not retried.
var ErrStoreUnavailable = errors.New("store unavailable")

func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.ConnString()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Every write already runs inside an explicit transaction.
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreUnavailable, err)
	}

	return db, nil
}

// Migrate creates the log tables and their indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ChannelCounter{},
		&models.Message{},
		&models.ReadMark{},
	)
}
