package ws

import (
	"sync"
	"testing"

	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/game"
	"github.com/playgrid/backend/internal/matchmaking"
	"github.com/playgrid/backend/internal/registry"
)

// fakeConn stands in for a live socket at the registry.Conn seam.
type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []map[string]any
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) Origin() string { return "test" }
func (c *fakeConn) Close(string)   {}

func (c *fakeConn) Send(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := v.(map[string]any); ok {
		c.sent = append(c.sent, m)
	}
	return true
}

func (c *fakeConn) lastSent() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

// passVerifier maps any token directly to a fixed identity.
type passVerifier struct{ id auth.Identity }

func (v passVerifier) Verify(string) (auth.Identity, error) { return v.id, nil }

func testCoordinator(t *testing.T, conn *fakeConn, id auth.Identity) *Coordinator {
	t.Helper()
	cfg := &config.Config{
		AuthMaxAttempts:          5,
		AuthMaxPerOrigin:         100,
		AuthWindowSeconds:        300,
		SkillToleranceBase:       2,
		SkillToleranceStep:       2,
		SkillToleranceMax:        100,
		ToleranceWidenSecs:       10,
		PairingIntervalSecs:      3,
		MaxQueueWaitSecs:         120,
		PairingRateWindowMin:     5,
		RematchTimeoutSecs:       30,
		FinishedRetentionMinutes: 10,
		ChatBufferCap:            100,
		ChatMaxMessageLen:        500,
		TypingIdleSecs:           5,
		ChatRetentionMinutes:     60,
	}

	reg := registry.New(passVerifier{id: id}, nil, cfg)
	hub := NewHub()
	co := NewCoordinator(hub, reg,
		matchmaking.New(cfg, hub.Alive),
		game.NewEngine(cfg, nil),
		chat.NewEngine(cfg, reg, nil),
		nil, cfg)

	reg.Register(conn)
	if _, err := reg.Authenticate(conn, "any"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return co
}

func TestPlayerMoveRequiresPosition(t *testing.T) {
	conn := &fakeConn{id: "c1"}
	co := testCoordinator(t, conn, auth.Identity{UserID: "u_1", Username: "alice", Level: 1})

	room := co.games.CreateRoom("",
		game.PlayerSlot{UserID: "u_1", Username: "alice", ConnID: "c1"},
		game.PlayerSlot{UserID: "u_2", Username: "bob", ConnID: "c2"})
	roomID := room.State.RoomID

	// A payload without the position field must not be read as cell 0
	co.handlePlayerMove(conn, []byte(`{"room_id":"`+roomID+`"}`))

	out := conn.lastSent()
	if out["type"] != OutError || out["code"] != "validation_failed" {
		t.Fatalf("missing position produced %v", out)
	}
	state, err := co.games.GetState(roomID)
	if err != nil {
		t.Fatal(err)
	}
	if state.MoveCount != 0 || state.Board[0] != game.MarkNone {
		t.Errorf("board mutated by rejected move: %+v", state)
	}

	// An explicit position 0 is a normal move
	co.handlePlayerMove(conn, []byte(`{"room_id":"`+roomID+`","position":0}`))
	state, err = co.games.GetState(roomID)
	if err != nil {
		t.Fatal(err)
	}
	if state.MoveCount != 1 || state.Board[0] != game.MarkX {
		t.Errorf("explicit cell-0 move not applied: %+v", state)
	}
}
