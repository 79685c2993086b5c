package models

import (
	"gorm.io/gorm"
)

// GormPlayer persists a user profile.
type GormPlayer struct {
	gorm.Model
	UserID      int64  `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	Wins        int    `gorm:"default:0"`
	Losses      int    `gorm:"default:0"`
}

// GormMatchRecord persists one finished match. Players holds the
// serialized MatchPlayer list.
type GormMatchRecord struct {
	gorm.Model
	RoomID     string `gorm:"index;not null"`
	Difficulty string `gorm:"not null"`
	WinnerSide string `gorm:"not null"`
	Players    []byte `gorm:"type:jsonb;not null"`
	Duration   int    `gorm:"default:0"` // seconds
}
