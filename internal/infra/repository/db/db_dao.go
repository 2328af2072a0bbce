package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/repository"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const uniqueViolation = "23505"

// DbDao 以 gorm 實作所有 repository, 交易內外共用
type DbDao struct {
	db *gorm.DB
}

func NewDbDao(conn *gorm.DB) *DbDao {
	return &DbDao{db: conn}
}

var _ repository.UnitOfWork = (*DbDao)(nil)

func (d *DbDao) conn(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// Transaction ReadCommitted, 需要的排他性由 SELECT ... FOR UPDATE 與條件式 UPDATE 提供
func (d *DbDao) Transaction(ctx context.Context, fn func(tx repository.Stores) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DbDao{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (d *DbDao) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunMigrations 執行內嵌的 migrations, 已是最新版本不算錯誤
func RunMigrations(migrateURL string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations 全部 down, 只給測試與維運工具使用
func RollbackMigrations(migrateURL string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

// translate gorm 與 driver 錯誤轉成 repository 的 sentinel
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", repository.ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, what)
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %s: %s", repository.ErrDuplicate, what, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
