package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/playgrid/backend/internal/models"
)

// Store is the persistence collaborator: final game records, archived chat
// messages, and user rows. In-flight session state never lives here.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureUser looks up the user by username, creating the row on first login.
func (s *Store) EnsureUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		INSERT INTO users (username, display_name, created_at, last_active)
		VALUES ($1, $1, NOW(), NOW())
		ON CONFLICT (username) DO UPDATE SET last_active = NOW()
		RETURNING id, username, display_name, level, total_games_played, total_games_won, created_at, last_active
	`, username)
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user %q: %w", username, err)
	}
	return user, nil
}

// SaveGameResult writes the final record of a finished game and bumps the
// players' aggregate counters.
func (s *Store) SaveGameResult(ctx context.Context, rec models.GameRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_records (room_id, player_x, player_o, winner, win_line, move_count, ended_by, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.RoomID, rec.PlayerX, rec.PlayerO, rec.Winner, rec.WinLine, rec.MoveCount, rec.EndedBy, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert game record: %w", err)
	}

	// Player ids are the external "u_<id>" form issued at login
	for i, player := range []string{rec.PlayerX, rec.PlayerO} {
		won := rec.Winner.Valid &&
			((rec.Winner.String == "X" && i == 0) ||
				(rec.Winner.String == "O" && i == 1))
		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET total_games_played = total_games_played + 1,
			    total_games_won = total_games_won + CASE WHEN $2 THEN 1 ELSE 0 END,
			    last_active = NOW()
			WHERE 'u_' || id = $1
		`, player, won); err != nil {
			return fmt.Errorf("update user totals for %q: %w", player, err)
		}
	}

	return tx.Commit()
}

// ArchiveMessage persists one chat message.
func (s *Store) ArchiveMessage(ctx context.Context, rec models.ChatMessageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, room_id, author_id, author_name, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.RoomID, rec.AuthorID, rec.AuthorName, rec.Kind, rec.Body, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive message %s: %w", rec.ID, err)
	}
	return nil
}

// RecentMessages returns archived messages for a room, newest first. Used by
// the fallback history path.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit, offset int) ([]models.ChatMessageRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.ChatMessageRecord
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, room_id, author_id, author_name, kind, body, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("recent messages for %q: %w", roomID, err)
	}
	return out, nil
}

// UserByUsername fetches a single user row.
func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		SELECT id, username, display_name, level, total_games_played, total_games_won, created_at, last_active
		FROM users WHERE username = $1
	`, username)
	if err == sql.ErrNoRows {
		return models.User{}, err
	}
	if err != nil {
		return models.User{}, fmt.Errorf("user %q: %w", username, err)
	}
	return user, nil
}

// GameTotals returns aggregate counts for the stats surface.
func (s *Store) GameTotals(ctx context.Context) (games int, draws int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE winner IS NULL AND ended_by = 'play')
		FROM game_records
	`)
	if err := row.Scan(&games, &draws); err != nil {
		return 0, 0, fmt.Errorf("game totals: %w", err)
	}
	return games, draws, nil
}
