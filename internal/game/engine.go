package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/models"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAPlayer      = errors.New("not a player in this room")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrInvalidPosition = errors.New("invalid position")
	ErrRoomNotActive   = errors.New("room is not active")
	ErrRoomNotFinished = errors.New("room is not finished")
)

// RecordStore persists final game results. Writes happen after the in-memory
// transition and never roll it back.
type RecordStore interface {
	SaveGameResult(ctx context.Context, rec models.GameRecord) error
}

// Engine owns all game rooms. Rooms are mutated only through its methods;
// every method returns the data the coordinator needs for broadcasting.
type Engine struct {
	cfg   *config.Config
	store RecordStore

	mu     sync.RWMutex
	rooms  map[string]*Room
	byUser map[string]string // userID -> roomID (players only)

	// onRoomExpired fires when a rematch handshake times out and the room is
	// torn down. Set by the coordinator.
	onRoomExpired func(roomID string, recipients []string)
}

func NewEngine(cfg *config.Config, store RecordStore) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		rooms:  make(map[string]*Room),
		byUser: make(map[string]string),
	}
}

// OnRoomExpired registers the rematch-timeout teardown callback.
func (e *Engine) OnRoomExpired(fn func(roomID string, recipients []string)) {
	e.onRoomExpired = fn
}

// Result carries a room snapshot plus the connections it concerns.
type Result struct {
	State      RoomState
	Recipients []string
}

// CreateRoom creates an active room for two matched players. The first player
// takes X and moves first.
func (e *Engine) CreateRoom(roomID string, p1, p2 PlayerSlot) Result {
	if roomID == "" {
		roomID = "room_" + uuid.NewString()
	}

	now := time.Now()
	room := &Room{
		ID:          roomID,
		Players:     map[Mark]*PlayerSlot{MarkX: &p1, MarkO: &p2},
		CurrentTurn: MarkX,
		Status:      StatusActive,
		CreatedAt:   now,
		StartedAt:   now,
		Spectators:  make(map[string]string),
	}

	e.mu.Lock()
	e.rooms[roomID] = room
	e.byUser[p1.UserID] = roomID
	e.byUser[p2.UserID] = roomID
	result := Result{State: room.snapshot(), Recipients: room.recipients()}
	e.mu.Unlock()

	log.Printf("[GAME] Room created: %s X=%s O=%s", roomID, p1.UserID, p2.UserID)
	return result
}

// JoinResult is the outcome of a join: assigned players re-attach to their
// slot, everyone else becomes a read-only spectator.
type JoinResult struct {
	Result
	AsSpectator bool
	Symbol      Mark // set for players
}

// JoinRoom attaches the connection to the room. If the requester is one of
// the two assigned players their live connection is re-bound to the slot and
// a paused room resumes; otherwise they are added as a spectator.
func (e *Engine) JoinRoom(userID, connID, roomID string) (JoinResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	mark, slot := room.slotFor(userID)
	if slot != nil {
		slot.ConnID = connID
		// Resume a room paused by this player's disconnect once both players
		// are reachable again
		if room.Status == StatusWaiting && room.bothConnected() {
			room.Status = StatusActive
		}
		return JoinResult{
			Result: Result{State: room.snapshot(), Recipients: room.recipients()},
			Symbol: mark,
		}, nil
	}

	room.Spectators[connID] = userID
	return JoinResult{
		Result:      Result{State: room.snapshot(), Recipients: room.recipients()},
		AsSpectator: true,
	}, nil
}

func (r *Room) bothConnected() bool {
	for _, slot := range r.Players {
		if slot == nil || slot.ConnID == "" {
			return false
		}
	}
	return true
}

// MoveResult is an accepted move plus the resulting room state.
type MoveResult struct {
	Result
	Symbol   Mark
	Position int
	Finished bool
}

// MakeMove validates and applies one move. Rejections are synchronous and
// precede any state mutation; an accepted move either flips the turn or
// finishes the room. Win is evaluated before draw: a ninth move that
// completes a line is a win.
func (e *Engine) MakeMove(userID, roomID string, position int) (MoveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return MoveResult{}, ErrRoomNotFound
	}

	mark, slot := room.slotFor(userID)
	if slot == nil {
		return MoveResult{}, ErrNotAPlayer
	}
	if room.Status != StatusActive {
		return MoveResult{}, ErrRoomNotActive
	}
	if mark != room.CurrentTurn {
		return MoveResult{}, ErrNotYourTurn
	}
	if position < 0 || position > 8 {
		return MoveResult{}, fmt.Errorf("%w: %d out of range", ErrInvalidPosition, position)
	}
	if room.Board[position] != MarkNone {
		return MoveResult{}, fmt.Errorf("%w: cell %d occupied", ErrInvalidPosition, position)
	}

	room.Board[position] = mark
	room.MoveCount++
	room.LastMoveAt = time.Now()

	finished := false
	if winner, line := room.Board.Winner(); winner != MarkNone {
		room.finish(string(winner), line, "play")
		finished = true
	} else if room.Board.Full() {
		room.finish(WinnerDraw, nil, "play")
		finished = true
	} else {
		room.CurrentTurn = Opponent(mark)
	}

	if finished {
		log.Printf("[GAME] Room %s finished: winner=%s moves=%d", roomID, room.Winner, room.MoveCount)
		e.persistFinished(room)
	}

	return MoveResult{
		Result:   Result{State: room.snapshot(), Recipients: room.recipients()},
		Symbol:   mark,
		Position: position,
		Finished: finished,
	}, nil
}

// Surrender finishes the room with the opponent declared winner.
func (e *Engine) Surrender(userID, roomID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return Result{}, ErrRoomNotFound
	}
	mark, slot := room.slotFor(userID)
	if slot == nil {
		return Result{}, ErrNotAPlayer
	}
	if room.Status != StatusActive {
		return Result{}, ErrRoomNotActive
	}

	room.finish(string(Opponent(mark)), nil, "surrender")
	log.Printf("[GAME] Room %s surrendered by %s, winner=%s", roomID, userID, room.Winner)
	e.persistFinished(room)

	return Result{State: room.snapshot(), Recipients: room.recipients()}, nil
}

// RematchResult reports the state of the rematch handshake.
type RematchResult struct {
	Result
	Restarted bool // both players accepted; room reset to active
	Declined  bool
}

// RequestRematch records the requester's rematch vote on a finished room and
// arms the response timer. When both players have voted the room resets to a
// fresh active game.
func (e *Engine) RequestRematch(userID, roomID string) (RematchResult, error) {
	return e.rematchVote(userID, roomID, true)
}

// RespondRematch records the responder's accept/decline. Decline ends the
// handshake; the room stays finished.
func (e *Engine) RespondRematch(userID, roomID string, accept bool) (RematchResult, error) {
	return e.rematchVote(userID, roomID, accept)
}

func (e *Engine) rematchVote(userID, roomID string, accept bool) (RematchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return RematchResult{}, ErrRoomNotFound
	}
	if _, slot := room.slotFor(userID); slot == nil {
		return RematchResult{}, ErrNotAPlayer
	}
	if room.Status != StatusFinished {
		return RematchResult{}, ErrRoomNotFinished
	}

	if !accept {
		room.rematchVotes = nil
		e.stopRematchTimerLocked(room)
		return RematchResult{
			Result:   Result{State: room.snapshot(), Recipients: room.recipients()},
			Declined: true,
		}, nil
	}

	if room.rematchVotes == nil {
		room.rematchVotes = make(map[string]bool)
	}
	room.rematchVotes[userID] = true

	// Both players must accept before the timer fires or the room is torn down
	if room.rematchTimer == nil {
		timeout := time.Duration(e.cfg.RematchTimeoutSecs) * time.Second
		room.rematchTimer = time.AfterFunc(timeout, func() { e.expireRematch(roomID) })
	}

	all := true
	for _, slot := range room.Players {
		if slot == nil || !room.rematchVotes[slot.UserID] {
			all = false
			break
		}
	}

	if all {
		e.stopRematchTimerLocked(room)
		room.reset()
		log.Printf("[GAME] Room %s rematch accepted - restarting", roomID)
		return RematchResult{
			Result:    Result{State: room.snapshot(), Recipients: room.recipients()},
			Restarted: true,
		}, nil
	}

	return RematchResult{
		Result: Result{State: room.snapshot(), Recipients: room.recipients()},
	}, nil
}

func (e *Engine) stopRematchTimerLocked(room *Room) {
	if room.rematchTimer != nil {
		room.rematchTimer.Stop()
		room.rematchTimer = nil
	}
}

// expireRematch tears the room down when the handshake is not completed in
// time.
func (e *Engine) expireRematch(roomID string) {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok || room.Status != StatusFinished || room.rematchVotes == nil {
		e.mu.Unlock()
		return
	}
	recipients := room.recipients()
	e.removeRoomLocked(room)
	e.mu.Unlock()

	log.Printf("[GAME] Room %s torn down (rematch not completed in time)", roomID)
	if e.onRoomExpired != nil {
		e.onRoomExpired(roomID, recipients)
	}
}

// Spectate adds the connection as a read-only spectator.
func (e *Engine) Spectate(userID, connID, roomID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, ok := e.rooms[roomID]
	if !ok {
		return Result{}, ErrRoomNotFound
	}
	room.Spectators[connID] = userID
	return Result{State: room.snapshot(), Recipients: room.recipients()}, nil
}

// StopSpectating removes the connection from the spectator set. A no-op for
// connections that were not spectating.
func (e *Engine) StopSpectating(connID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if room, ok := e.rooms[roomID]; ok {
		delete(room.Spectators, connID)
	}
}

// DisconnectResult describes the room event caused by a player disconnect.
type DisconnectResult struct {
	Result
	RoomID string
	Paused bool
}

// HandleDisconnect reacts to a user's connection going away. A player in an
// active room pauses it (waiting, not forfeited); spectator entries for the
// connection are dropped everywhere.
func (e *Engine) HandleDisconnect(userID, connID string) *DisconnectResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, room := range e.rooms {
		delete(room.Spectators, connID)
	}

	roomID, ok := e.byUser[userID]
	if !ok {
		return nil
	}
	room, ok := e.rooms[roomID]
	if !ok {
		return nil
	}

	_, slot := room.slotFor(userID)
	if slot == nil {
		return nil
	}
	slot.ConnID = ""

	if room.Status != StatusActive {
		return nil
	}
	room.Status = StatusWaiting
	log.Printf("[GAME] Room %s paused: player %s disconnected", roomID, userID)

	return &DisconnectResult{
		Result: Result{State: room.snapshot(), Recipients: room.recipients()},
		RoomID: roomID,
		Paused: true,
	}
}

// GetState returns a snapshot of the room. Used by the fallback surface.
func (e *Engine) GetState(roomID string) (RoomState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	room, ok := e.rooms[roomID]
	if !ok {
		return RoomState{}, ErrRoomNotFound
	}
	return room.snapshot(), nil
}

// RoomFor returns the room id the user currently plays in, if any.
func (e *Engine) RoomFor(userID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	roomID, ok := e.byUser[userID]
	return roomID, ok
}

// Cleanup purges rooms finished beyond the retention window and abandoned
// rooms with no reachable players and no spectators. Returns the purge count.
func (e *Engine) Cleanup() int {
	retention := time.Duration(e.cfg.FinishedRetentionMinutes) * time.Minute

	e.mu.Lock()
	defer e.mu.Unlock()

	purged := 0
	for _, room := range e.rooms {
		expired := room.Status == StatusFinished && time.Since(room.FinishedAt) > retention
		abandoned := !room.anyConnected() && len(room.Spectators) == 0 && room.Status != StatusActive
		if expired || abandoned {
			e.removeRoomLocked(room)
			purged++
		}
	}
	if purged > 0 {
		log.Printf("[GAME] Purged %d rooms", purged)
	}
	return purged
}

func (r *Room) anyConnected() bool {
	for _, slot := range r.Players {
		if slot != nil && slot.ConnID != "" {
			return true
		}
	}
	return false
}

func (e *Engine) removeRoomLocked(room *Room) {
	e.stopRematchTimerLocked(room)
	delete(e.rooms, room.ID)
	for _, slot := range room.Players {
		if slot != nil && e.byUser[slot.UserID] == room.ID {
			delete(e.byUser, slot.UserID)
		}
	}
}

// Counts returns (active, finished, total) room counts for the stats surface.
func (e *Engine) Counts() (active, finished, total int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, room := range e.rooms {
		switch room.Status {
		case StatusActive:
			active++
		case StatusFinished:
			finished++
		}
	}
	return active, finished, len(e.rooms)
}

// persistFinished fires the final-record write without blocking the in-memory
// transition. A transient store failure is retried once and then logged; the
// authoritative in-memory state is never rolled back.
func (e *Engine) persistFinished(room *Room) {
	if e.store == nil {
		return
	}

	rec := models.GameRecord{
		RoomID:     room.ID,
		MoveCount:  room.MoveCount,
		EndedBy:    room.EndedBy,
		FinishedAt: room.FinishedAt,
	}
	if slot := room.Players[MarkX]; slot != nil {
		rec.PlayerX = slot.UserID
	}
	if slot := room.Players[MarkO]; slot != nil {
		rec.PlayerO = slot.UserID
	}
	if room.Winner != "" && room.Winner != WinnerDraw {
		rec.Winner = sql.NullString{String: room.Winner, Valid: true}
	}
	if len(room.WinningLine) == 3 {
		rec.WinLine = sql.NullString{
			String: fmt.Sprintf("%d,%d,%d", room.WinningLine[0], room.WinningLine[1], room.WinningLine[2]),
			Valid:  true,
		}
	}
	if !room.StartedAt.IsZero() {
		rec.StartedAt = sql.NullTime{Time: room.StartedAt, Valid: true}
	}

	go func() {
		for attempt := 1; attempt <= 2; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := e.store.SaveGameResult(ctx, rec)
			cancel()
			if err == nil {
				return
			}
			log.Printf("[DB] SaveGameResult failed for room %s (attempt %d): %v", rec.RoomID, attempt, err)
			time.Sleep(time.Second)
		}
	}()
}

// ParseWinLine converts the persisted "a,b,c" form back to cell indexes.
func ParseWinLine(s string) []int {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil
	}
	out := make([]int, 0, 3)
	for _, p := range parts {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}
