package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		RematchTimeoutSecs:       1,
		FinishedRetentionMinutes: 10,
	}
}

// recordingStore captures SaveGameResult calls for assertions.
type recordingStore struct {
	mu   sync.Mutex
	recs []models.GameRecord
	done chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{done: make(chan struct{}, 4)}
}

func (s *recordingStore) SaveGameResult(_ context.Context, rec models.GameRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *recordingStore) wait(t *testing.T) models.GameRecord {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("game record was not persisted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[len(s.recs)-1]
}

func newActiveRoom(t *testing.T, e *Engine) string {
	t.Helper()
	result := e.CreateRoom("",
		PlayerSlot{UserID: "u_1", Username: "alice", ConnID: "c1"},
		PlayerSlot{UserID: "u_2", Username: "bob", ConnID: "c2"})
	if result.State.Status != StatusActive {
		t.Fatalf("new room status = %q, want active", result.State.Status)
	}
	if result.State.CurrentTurn != MarkX {
		t.Fatalf("new room turn = %q, want X", result.State.CurrentTurn)
	}
	return result.State.RoomID
}

func playMoves(t *testing.T, e *Engine, roomID string, moves ...int) MoveResult {
	t.Helper()
	users := []string{"u_1", "u_2"}
	var last MoveResult
	for i, pos := range moves {
		var err error
		last, err = e.MakeMove(users[i%2], roomID, pos)
		if err != nil {
			t.Fatalf("move %d (pos %d): %v", i, pos, err)
		}
	}
	return last
}

func TestWinEndsGame(t *testing.T) {
	store := newRecordingStore()
	e := NewEngine(testConfig(), store)
	roomID := newActiveRoom(t, e)

	// X completes the top row on the fifth move
	result := playMoves(t, e, roomID, 0, 3, 1, 4, 2)

	if !result.Finished {
		t.Fatal("fifth move should have finished the game")
	}
	if result.State.Winner != "X" {
		t.Errorf("winner = %q, want X", result.State.Winner)
	}
	if got := result.State.WinningLine; len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("winning line = %v, want [0 1 2]", got)
	}
	if result.State.Status != StatusFinished {
		t.Errorf("status = %q, want finished", result.State.Status)
	}

	// No moves are accepted on a finished room
	if _, err := e.MakeMove("u_2", roomID, 5); !errors.Is(err, ErrRoomNotActive) {
		t.Errorf("move after finish: err = %v, want ErrRoomNotActive", err)
	}

	rec := store.wait(t)
	if !rec.Winner.Valid || rec.Winner.String != "X" {
		t.Errorf("persisted winner = %+v, want X", rec.Winner)
	}
	if rec.EndedBy != "play" {
		t.Errorf("persisted ended_by = %q, want play", rec.EndedBy)
	}
	if line := ParseWinLine(rec.WinLine.String); len(line) != 3 || line[0] != 0 {
		t.Errorf("persisted win line %q parsed to %v", rec.WinLine.String, line)
	}
}

func TestDrawOnFullBoard(t *testing.T) {
	store := newRecordingStore()
	e := NewEngine(testConfig(), store)
	roomID := newActiveRoom(t, e)

	result := playMoves(t, e, roomID, 0, 1, 2, 4, 3, 5, 7, 6, 8)

	if !result.Finished || result.State.Winner != WinnerDraw {
		t.Fatalf("expected draw, got finished=%v winner=%q", result.Finished, result.State.Winner)
	}
	if result.State.MoveCount != 9 {
		t.Errorf("move count = %d, want 9", result.State.MoveCount)
	}

	rec := store.wait(t)
	if rec.Winner.Valid {
		t.Errorf("draw persisted a winner: %+v", rec.Winner)
	}
}

func TestNinthMoveWinBeatsDraw(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)

	// The board fills on the ninth move, which also completes the 0-4-8
	// diagonal for X. That move is a win, not a draw.
	result := playMoves(t, e, roomID, 0, 1, 4, 2, 3, 5, 7, 6, 8)

	if result.State.Winner != "X" {
		t.Errorf("winner = %q, want X (win takes precedence over draw)", result.State.Winner)
	}
}

func TestMoveValidation(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)

	if _, err := e.MakeMove("u_1", "room_nope", 0); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room: err = %v", err)
	}
	if _, err := e.MakeMove("u_99", roomID, 0); !errors.Is(err, ErrNotAPlayer) {
		t.Errorf("stranger: err = %v", err)
	}
	if _, err := e.MakeMove("u_2", roomID, 0); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("O moving first: err = %v", err)
	}
	if _, err := e.MakeMove("u_1", roomID, 9); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("out of range: err = %v", err)
	}
	if _, err := e.MakeMove("u_1", roomID, -1); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("negative position: err = %v", err)
	}

	if _, err := e.MakeMove("u_1", roomID, 4); err != nil {
		t.Fatalf("valid move rejected: %v", err)
	}
	if _, err := e.MakeMove("u_2", roomID, 4); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("occupied cell: err = %v", err)
	}
	if _, err := e.MakeMove("u_1", roomID, 5); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("moving twice: err = %v", err)
	}
}

func TestSurrender(t *testing.T) {
	store := newRecordingStore()
	e := NewEngine(testConfig(), store)
	roomID := newActiveRoom(t, e)

	result, err := e.Surrender("u_1", roomID)
	if err != nil {
		t.Fatalf("surrender: %v", err)
	}
	if result.State.Winner != "O" {
		t.Errorf("winner after X surrender = %q, want O", result.State.Winner)
	}

	rec := store.wait(t)
	if rec.EndedBy != "surrender" {
		t.Errorf("persisted ended_by = %q, want surrender", rec.EndedBy)
	}

	// Surrendering a finished room is rejected
	if _, err := e.Surrender("u_2", roomID); !errors.Is(err, ErrRoomNotActive) {
		t.Errorf("second surrender: err = %v", err)
	}
}

func TestDisconnectPausesAndRejoinResumes(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)
	playMoves(t, e, roomID, 0)

	dr := e.HandleDisconnect("u_1", "c1")
	if dr == nil || !dr.Paused {
		t.Fatal("disconnect of an active player should pause the room")
	}
	if dr.State.Status != StatusWaiting {
		t.Errorf("status = %q, want waiting", dr.State.Status)
	}

	// The board survives the pause and moves are rejected while waiting
	if _, err := e.MakeMove("u_2", roomID, 4); !errors.Is(err, ErrRoomNotActive) {
		t.Errorf("move on paused room: err = %v", err)
	}

	jr, err := e.JoinRoom("u_1", "c1-new", roomID)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if jr.AsSpectator {
		t.Error("returning player was treated as a spectator")
	}
	if jr.Symbol != MarkX {
		t.Errorf("rejoin symbol = %q, want X", jr.Symbol)
	}
	if jr.State.Status != StatusActive {
		t.Errorf("status after rejoin = %q, want active", jr.State.Status)
	}
	if jr.State.Board[0] != MarkX {
		t.Error("board state was lost across the pause")
	}
}

func TestJoinUnknownUserBecomesSpectator(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)

	jr, err := e.JoinRoom("u_42", "c42", roomID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !jr.AsSpectator {
		t.Fatal("stranger should join as spectator")
	}
	if jr.State.Spectators != 1 {
		t.Errorf("spectator count = %d, want 1", jr.State.Spectators)
	}

	// Spectator connections are in the broadcast set
	found := false
	for _, id := range jr.Recipients {
		if id == "c42" {
			found = true
		}
	}
	if !found {
		t.Error("spectator connection missing from recipients")
	}

	e.StopSpectating("c42", roomID)
	state, _ := e.GetState(roomID)
	if state.Spectators != 0 {
		t.Errorf("spectator count after leave = %d, want 0", state.Spectators)
	}
}

func TestRematchHandshake(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)
	playMoves(t, e, roomID, 0, 3, 1, 4, 2) // X wins

	// Rematch requires a finished room
	r1, err := e.RequestRematch("u_1", roomID)
	if err != nil {
		t.Fatalf("request rematch: %v", err)
	}
	if r1.Restarted || r1.Declined {
		t.Fatal("single vote should not complete the handshake")
	}

	r2, err := e.RespondRematch("u_2", roomID, true)
	if err != nil {
		t.Fatalf("respond rematch: %v", err)
	}
	if !r2.Restarted {
		t.Fatal("mutual accept should restart the room")
	}
	if r2.State.Status != StatusActive || r2.State.CurrentTurn != MarkX || r2.State.MoveCount != 0 {
		t.Errorf("restarted room state = %+v", r2.State)
	}
	for i, cell := range r2.State.Board {
		if cell != MarkNone {
			t.Errorf("cell %d not cleared: %q", i, cell)
		}
	}
}

func TestRematchDecline(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)
	playMoves(t, e, roomID, 0, 3, 1, 4, 2)

	if _, err := e.RequestRematch("u_1", roomID); err != nil {
		t.Fatal(err)
	}
	result, err := e.RespondRematch("u_2", roomID, false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !result.Declined {
		t.Fatal("decline not reported")
	}
	if result.State.Status != StatusFinished {
		t.Errorf("declined room status = %q, want finished", result.State.Status)
	}
}

func TestRematchOnActiveRoomRejected(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	roomID := newActiveRoom(t, e)

	if _, err := e.RequestRematch("u_1", roomID); !errors.Is(err, ErrRoomNotFinished) {
		t.Errorf("rematch on active room: err = %v", err)
	}
}

func TestRematchTimeoutTearsDownRoom(t *testing.T) {
	e := NewEngine(testConfig(), nil) // 1s rematch timeout
	expired := make(chan string, 1)
	e.OnRoomExpired(func(roomID string, _ []string) { expired <- roomID })

	roomID := newActiveRoom(t, e)
	playMoves(t, e, roomID, 0, 3, 1, 4, 2)

	if _, err := e.RequestRematch("u_1", roomID); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-expired:
		if got != roomID {
			t.Errorf("expired room = %q, want %q", got, roomID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rematch timeout never fired")
	}

	if _, err := e.GetState(roomID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("room still present after teardown: err = %v", err)
	}
	if _, ok := e.RoomFor("u_1"); ok {
		t.Error("player index not cleared after teardown")
	}
}

func TestCleanupPurgesFinishedAndAbandoned(t *testing.T) {
	cfg := testConfig()
	cfg.FinishedRetentionMinutes = 0
	e := NewEngine(cfg, nil)

	finishedRoom := newActiveRoom(t, e)
	playMoves(t, e, finishedRoom, 0, 3, 1, 4, 2)

	abandoned := e.CreateRoom("",
		PlayerSlot{UserID: "u_3", Username: "carol", ConnID: "c3"},
		PlayerSlot{UserID: "u_4", Username: "dave", ConnID: "c4"})
	e.HandleDisconnect("u_3", "c3")
	e.HandleDisconnect("u_4", "c4")

	time.Sleep(10 * time.Millisecond)
	if purged := e.Cleanup(); purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
	if _, err := e.GetState(abandoned.State.RoomID); !errors.Is(err, ErrRoomNotFound) {
		t.Error("abandoned room survived cleanup")
	}
}

func TestParseWinLine(t *testing.T) {
	if got := ParseWinLine("0,4,8"); len(got) != 3 || got[1] != 4 {
		t.Errorf("ParseWinLine(0,4,8) = %v", got)
	}
	if got := ParseWinLine("not-a-line"); got != nil {
		t.Errorf("malformed input parsed to %v", got)
	}
}
