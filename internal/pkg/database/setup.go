package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tcdynamics/workflowai/app/models"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	// InMemoryPath selects a private in-memory SQLite database.
	InMemoryPath = ":memory:"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

type Config struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Path     string
	Debug    bool
}

// SetupDatabase opens the configured database, migrates the schema and
// stores the handle for GetDB.
func SetupDatabase(cfg Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	DB = db
	return db, nil
}

// Open connects with retries. MySQL is retried because the container may
// still be starting; SQLite fails on the first error.
func Open(cfg Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite:
		return openSQLite(cfg.Path, gormCfg)
	case DriverMySQL, "":
		return openMySQL(cfg, gormCfg)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

func openMySQL(cfg Config, gormCfg *gorm.Config) (*gorm.DB, error) {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Name)

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			return db, nil
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries).Msg("failed to connect to database")
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("database: connect mysql: %w", err)
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database: DB_PATH is required for sqlite")
	}
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Every pooled connection to :memory: would be a separate database.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenInMemory returns a migrated private SQLite database.
func OpenInMemory() (*gorm.DB, error) {
	db, err := openSQLite(InMemoryPath, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate brings the schema up to date with the models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Subscriber{},
		&models.WebhookEvent{},
		&models.ConnectedAccount{},
		&models.ContactMessage{},
		&models.DemoRequest{},
		&models.APIKey{},
	); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// Ping checks connectivity of db.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database: not initialised")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
