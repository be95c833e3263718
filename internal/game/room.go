package game

import (
	"time"
)

// Status is the per-room state machine: waiting → active → finished, with
// finished → active only via a mutual rematch handshake.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Winner values for a finished room. Empty while the room is unfinished.
const WinnerDraw = "draw"

// PlayerSlot binds one symbol to a player and their live connection.
type PlayerSlot struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	ConnID   string `json:"-"`
}

// Room is one active or finished game. Owned by the Engine; mutated only
// through the Engine's move/surrender/rematch operations.
type Room struct {
	ID          string
	Players     map[Mark]*PlayerSlot
	Board       Board
	CurrentTurn Mark
	Status      Status
	Winner      string // "X", "O", "draw", or "" while unfinished
	WinningLine []int
	MoveCount   int
	EndedBy     string // "play", "surrender", "disconnect"

	CreatedAt  time.Time
	StartedAt  time.Time
	LastMoveAt time.Time
	FinishedAt time.Time

	Spectators map[string]string // connID -> userID

	rematchVotes map[string]bool // userID -> accepted
	rematchTimer *time.Timer
}

// slotFor returns the symbol and slot for the given user, if they are a player.
func (r *Room) slotFor(userID string) (Mark, *PlayerSlot) {
	for mark, slot := range r.Players {
		if slot != nil && slot.UserID == userID {
			return mark, slot
		}
	}
	return MarkNone, nil
}

// recipients returns the connection ids of both players and all spectators.
func (r *Room) recipients() []string {
	out := make([]string, 0, len(r.Players)+len(r.Spectators))
	for _, slot := range r.Players {
		if slot != nil && slot.ConnID != "" {
			out = append(out, slot.ConnID)
		}
	}
	for connID := range r.Spectators {
		out = append(out, connID)
	}
	return out
}

// finish transitions the room to finished and records the outcome.
func (r *Room) finish(winner string, line []int, endedBy string) {
	r.Status = StatusFinished
	r.Winner = winner
	r.WinningLine = line
	r.EndedBy = endedBy
	r.FinishedAt = time.Now()
}

// reset returns the room to a fresh active state: empty board, X to move.
// Used on mutual rematch accept.
func (r *Room) reset() {
	r.Board = Board{}
	r.CurrentTurn = MarkX
	r.Status = StatusActive
	r.Winner = ""
	r.WinningLine = nil
	r.MoveCount = 0
	r.EndedBy = ""
	r.StartedAt = time.Now()
	r.LastMoveAt = time.Time{}
	r.FinishedAt = time.Time{}
	r.rematchVotes = nil
}

// RoomState is the serializable snapshot delivered to participants.
type RoomState struct {
	RoomID      string              `json:"room_id"`
	Players     map[Mark]PlayerSlot `json:"players"`
	Board       Board               `json:"board"`
	CurrentTurn Mark                `json:"current_turn"`
	Status      Status              `json:"status"`
	Winner      string              `json:"winner,omitempty"`
	WinningLine []int               `json:"winning_line,omitempty"`
	MoveCount   int                 `json:"move_count"`
	Spectators  int                 `json:"spectators"`
	CreatedAt   time.Time           `json:"created_at"`
}

// snapshot copies the room into a RoomState safe to hand outside the engine.
func (r *Room) snapshot() RoomState {
	players := make(map[Mark]PlayerSlot, len(r.Players))
	for mark, slot := range r.Players {
		if slot != nil {
			players[mark] = *slot
		}
	}
	var line []int
	if r.WinningLine != nil {
		line = append(line, r.WinningLine...)
	}
	return RoomState{
		RoomID:      r.ID,
		Players:     players,
		Board:       r.Board,
		CurrentTurn: r.CurrentTurn,
		Status:      r.Status,
		Winner:      r.Winner,
		WinningLine: line,
		MoveCount:   r.MoveCount,
		Spectators:  len(r.Spectators),
		CreatedAt:   r.CreatedAt,
	}
}
