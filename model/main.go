package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leafdriven/mediadex/common"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
)

var DB *gorm.DB

func chooseDB(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"):
		return openPostgreSQL(dsn)
	case dsn != "":
		return openMySQL(dsn)
	default:
		return openSQLite()
	}
}

func openPostgreSQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using PostgreSQL as database")
	common.UsingPostgreSQL.Store(true)
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openMySQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using MySQL as database")
	common.UsingMySQL.Store(true)
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openSQLite() (*gorm.DB, error) {
	logger.Logger.Info("SQL_DSN not set, using SQLite as database")
	common.UsingSQLite.Store(true)
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", common.SQLitePath, common.SQLiteBusyTimeout)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func InitDB() {
	var err error
	DB, err = chooseDB(config.SQLDSN)
	if err != nil {
		logger.Logger.Fatal("failed to initialize database", zap.Error(err))
		return
	}

	if config.DebugSQLEnabled {
		logger.Logger.Debug("debug sql enabled")
		DB = DB.Debug()
	}

	setDBConns(DB)

	if !config.IsMasterNode {
		return
	}

	logger.Logger.Info("database migration started")
	if err = migrateDB(); err != nil {
		logger.Logger.Fatal("failed to migrate database", zap.Error(err))
		return
	}
	logger.Logger.Info("database migration completed")
}

func migrateDB() error {
	var err error
	if err = DB.AutoMigrate(&Principal{}); err != nil {
		return errors.Wrapf(err, "failed to migrate Principal")
	}
	if err = DB.AutoMigrate(&MediaFile{}); err != nil {
		return errors.Wrapf(err, "failed to migrate MediaFile")
	}
	if err = DB.AutoMigrate(&IndexedChannel{}); err != nil {
		return errors.Wrapf(err, "failed to migrate IndexedChannel")
	}
	if err = DB.AutoMigrate(&Connection{}); err != nil {
		return errors.Wrapf(err, "failed to migrate Connection")
	}
	if err = DB.AutoMigrate(&Filter{}); err != nil {
		return errors.Wrapf(err, "failed to migrate Filter")
	}
	if err = DB.AutoMigrate(&BatchLink{}); err != nil {
		return errors.Wrapf(err, "failed to migrate BatchLink")
	}
	if err = DB.AutoMigrate(&Setting{}); err != nil {
		return errors.Wrapf(err, "failed to migrate Setting")
	}
	return nil
}

func setDBConns(db *gorm.DB) *sql.DB {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal("failed to connect database", zap.Error(err))
		return nil
	}

	sqlDB.SetMaxIdleConns(config.SQLMaxIdleConns)
	sqlDB.SetMaxOpenConns(config.SQLMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Second * time.Duration(config.SQLMaxLifetimeSeconds))

	logger.Logger.Info("database connection pool configured",
		zap.Int("max_idle_conns", config.SQLMaxIdleConns),
		zap.Int("max_open_conns", config.SQLMaxOpenConns),
		zap.Int("max_lifetime_secs", config.SQLMaxLifetimeSeconds))

	return sqlDB
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}
