package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConnOption struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

var defaultConnOption = ConnOption{
	MaxOpenConns:    50,
	MaxIdleConns:    10,
	ConnMaxLifetime: 30 * time.Minute,
	LogLevel:        logger.Warn,
}

func DSN(dbname, host, port, user, pas string) string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable", user, pas, host, port, dbname)
}

// MigrateURL golang-migrate 使用 pgx5 driver
func MigrateURL(dbname, host, port, user, pas string) string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=disable", user, pas, host, port, dbname)
}

func GetDbConn(dbname, host, port, user, pas string, opts ...ConnOption) (*gorm.DB, error) {
	opt := defaultConnOption
	if len(opts) > 0 {
		opt = opts[0]
	}

	// TranslateError 讓 unique violation 轉成 gorm.ErrDuplicatedKey
	db, err := gorm.Open(postgres.Open(DSN(dbname, host, port, user, pas)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(opt.LogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opt.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}
	return db, nil
}
