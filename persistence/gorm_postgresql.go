// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/pongserver/models"
)

// GormPostgreSQL implements Database on top of gorm.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormPlayer{}, &models.GormMatchRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// UpsertPlayer creates the profile row on first login and refreshes
// the display name afterwards.
func (g *GormPostgreSQL) UpsertPlayer(userID int64, displayName string) error {
	var player models.GormPlayer
	err := g.db.Where("user_id = ?", userID).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.db.Create(&models.GormPlayer{
			UserID:      userID,
			DisplayName: displayName,
		}).Error
	}
	if err != nil {
		return err
	}
	if player.DisplayName != displayName {
		return g.db.Model(&player).Update("display_name", displayName).Error
	}
	return nil
}

func (g *GormPostgreSQL) SaveMatchRecord(record models.MatchRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	return g.db.Create(&models.GormMatchRecord{
		RoomID:     record.RoomID,
		Difficulty: record.Difficulty,
		WinnerSide: record.WinnerSide,
		Players:    players,
		Duration:   record.Duration,
	}).Error
}

// RecordOutcome bumps a player's win or loss counter atomically.
func (g *GormPostgreSQL) RecordOutcome(userID int64, won bool) error {
	column := "losses"
	if won {
		column = "wins"
	}
	res := g.db.Model(&models.GormPlayer{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (g *GormPostgreSQL) GetPlayerStats(userID int64) (*models.PlayerStats, error) {
	var player models.GormPlayer
	err := g.db.Where("user_id = ?", userID).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.PlayerStats{
		TotalGames: player.Wins + player.Losses,
		Wins:       player.Wins,
		Losses:     player.Losses,
	}, nil
}

func (g *GormPostgreSQL) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
