package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/config"
)

func DSN(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.DB)
}

func migrateURL(cfg config.Postgres) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.User, cfg.Pass),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func Open(cfg config.Postgres) (*gorm.DB, error) {
	return OpenDSN(DSN(cfg))
}

func OpenDSN(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate applies every pending migration found under dir in migrations.
// Each service keeps its own version table so several can share a database.
func Migrate(cfg config.Postgres, migrations fs.FS, dir, table string) error {
	return migrateURLWith(migrateURL(cfg), migrations, dir, table)
}

// MigrateDatabaseURL is Migrate for a postgres:// connection URL.
func MigrateDatabaseURL(databaseURL string, migrations fs.FS, dir, table string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	u.Scheme = "pgx5"
	return migrateURLWith(u.String(), migrations, dir, table)
}

func migrateURLWith(target string, migrations fs.FS, dir, table string) error {
	if table != "" {
		u, err := url.Parse(target)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("x-migrations-table", table)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ValidID reports whether id can be bound to a uuid column. Anything else
// would fail in Postgres with 22P02 instead of simply matching no row.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
