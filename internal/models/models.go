package models

import (
	"database/sql"
	"time"
)

// User represents a registered player
type User struct {
	ID               int          `db:"id" json:"id"`
	Username         string       `db:"username" json:"username"`
	DisplayName      string       `db:"display_name" json:"display_name"`
	Level            int          `db:"level" json:"level"`
	TotalGamesPlayed int          `db:"total_games_played" json:"total_games_played"`
	TotalGamesWon    int          `db:"total_games_won" json:"total_games_won"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	LastActive       sql.NullTime `db:"last_active" json:"last_active,omitempty"`
}

// GameRecord is the final persisted result of a finished game
type GameRecord struct {
	ID         int            `db:"id" json:"id"`
	RoomID     string         `db:"room_id" json:"room_id"`
	PlayerX    string         `db:"player_x" json:"player_x"`
	PlayerO    string         `db:"player_o" json:"player_o"`
	Winner     sql.NullString `db:"winner" json:"winner,omitempty"`
	WinLine    sql.NullString `db:"win_line" json:"win_line,omitempty"`
	MoveCount  int            `db:"move_count" json:"move_count"`
	EndedBy    string         `db:"ended_by" json:"ended_by"`
	StartedAt  sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	FinishedAt time.Time      `db:"finished_at" json:"finished_at"`
}

// ChatMessageRecord is an archived chat message row
type ChatMessageRecord struct {
	ID         string    `db:"id" json:"id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Kind       string    `db:"kind" json:"kind"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
