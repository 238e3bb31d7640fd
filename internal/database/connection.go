package database

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/unifiedinbox/mailsync/config"
)

func NewConnection(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	portInt, err := strconv.Atoi(dbConfig.Port)
	if err != nil {
		return nil, errors.Wrap(err, "invalid port number")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogLevel(dbConfig.LogLevel),
		// Duplicate key violations must be recognizable as
		// gorm.ErrDuplicatedKey for idempotent inserts.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return db, nil
}

func gormLogLevel(level string) gormlogger.Interface {
	switch level {
	case "INFO":
		return gormlogger.Default.LogMode(gormlogger.Info)
	case "ERROR":
		return gormlogger.Default.LogMode(gormlogger.Error)
	default:
		return gormlogger.Default.LogMode(gormlogger.Warn)
	}
}

func validateConfig(cfg *config.DatabaseConfig) error {
	switch {
	case cfg == nil:
		return errors.New("database config is nil")
	case cfg.Host == "":
		return errors.New("database host config is empty")
	case cfg.Port == "":
		return errors.New("database port config is empty")
	case cfg.User == "":
		return errors.New("database user config is empty")
	case cfg.Password == "":
		return errors.New("database password config is empty")
	case cfg.DBName == "":
		return errors.New("database name config is empty")
	case cfg.SSLMode == "":
		return errors.New("database sslmode config is empty")
	}
	return nil
}
