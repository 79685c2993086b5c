package models

import (
	"time"
)

// PlayerData is the persisted profile for a user.
type PlayerData struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatchRecord captures one finished match for history.
type MatchRecord struct {
	RoomID     string        `json:"room_id"`
	Difficulty string        `json:"difficulty"`
	WinnerSide string        `json:"winner_side"`
	Players    []MatchPlayer `json:"players"`
	Duration   int           `json:"duration"` // seconds
	CreatedAt  time.Time     `json:"created_at"`
}

// MatchPlayer is one participant's line in a match record.
type MatchPlayer struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Side        string `json:"side"`
	Score       int    `json:"score"`
	Outcome     string `json:"outcome"` // win/lose
}

// PlayerStats is the aggregate served over the stats RPC.
type PlayerStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
}
