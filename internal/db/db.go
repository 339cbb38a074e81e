package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/config"
)

func New(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.DB.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}
	if cfg.DB.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}
	if cfg.DB.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.DB.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("parse DB_CONN_MAX_LIFETIME: %w", err)
		}
		sqlDB.SetConnMaxLifetime(lifetime)
	}

	if err := runMigrations(database); err != nil {
		return nil, err
	}
	log.Info().Msg("database ready")
	return database, nil
}
