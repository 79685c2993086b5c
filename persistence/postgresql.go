// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/pongserver/models"
)

// PostgreSQL implements Database on raw database/sql with lib/pq, for
// deployments that prefer explicit SQL over the gorm layer.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS players (
            id SERIAL PRIMARY KEY,
            user_id BIGINT UNIQUE NOT NULL,
            display_name VARCHAR(255) NOT NULL,
            wins INT DEFAULT 0,
            losses INT DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) NOT NULL,
            difficulty VARCHAR(50) NOT NULL,
            winner_side VARCHAR(10) NOT NULL,
            players JSONB NOT NULL,
            duration INT DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_players_user_id ON players(user_id);
        CREATE INDEX IF NOT EXISTS idx_match_records_room_id ON match_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_match_records_created_at ON match_records(created_at);
    `)
	return err
}

func (p *PostgreSQL) UpsertPlayer(userID int64, displayName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO players (user_id, display_name)
        VALUES ($1, $2)
        ON CONFLICT (user_id)
        DO UPDATE SET display_name = $2, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, userID, displayName)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(record models.MatchRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO match_records (room_id, difficulty, winner_side, players, duration)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err = p.db.ExecContext(ctx, query,
		record.RoomID, record.Difficulty, record.WinnerSide, players, record.Duration)
	return err
}

func (p *PostgreSQL) RecordOutcome(userID int64, won bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	column := "losses"
	if won {
		column = "wins"
	}
	query := fmt.Sprintf(`
        UPDATE players SET %s = %s + 1, updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $1
    `, column, column)

	res, err := p.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *PostgreSQL) GetPlayerStats(userID int64) (*models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stats models.PlayerStats
	query := `SELECT wins, losses FROM players WHERE user_id = $1`
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&stats.Wins, &stats.Losses)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	stats.TotalGames = stats.Wins + stats.Losses
	return &stats, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
