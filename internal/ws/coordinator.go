package ws

import (
	"log"

	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/game"
	"github.com/playgrid/backend/internal/matchmaking"
	"github.com/playgrid/backend/internal/registry"
	"github.com/redis/go-redis/v9"
)

// Coordinator is the composition root of the real-time subsystem: it binds
// one Connection Registry, one Matchmaking Engine, one Game Session Engine,
// and one Chat Room Engine to the transport. Every inbound event flows
// transport -> Coordinator -> target engine; the engine mutates its owned
// state and the Coordinator broadcasts the results.
type Coordinator struct {
	hub      *Hub
	registry *registry.Registry
	matches  *matchmaking.Engine
	games    *game.Engine
	chat     *chat.Engine
	cfg      *config.Config
	rdb      *redis.Client

	handlers map[string]registry.Handler
}

func NewCoordinator(hub *Hub, reg *registry.Registry, mm *matchmaking.Engine, games *game.Engine, chatEngine *chat.Engine, rdb *redis.Client, cfg *config.Config) *Coordinator {
	co := &Coordinator{
		hub:      hub,
		registry: reg,
		matches:  mm,
		games:    games,
		chat:     chatEngine,
		cfg:      cfg,
		rdb:      rdb,
	}
	hub.coordinator = co

	mm.OnMatch(co.onMatch)
	mm.OnTimeout(co.onMatchTimeout)
	games.OnRoomExpired(co.onRoomExpired)
	chatEngine.OnTypingStop(co.onTypingStop)

	co.handlers = map[string]registry.Handler{
		EvFindMatch:           co.handleFindMatch,
		EvQuickMatch:          co.handleQuickMatch,
		EvCancelMatchmaking:   co.handleCancelMatchmaking,
		EvGetMatchmakingState: co.handleMatchmakingStatus,
		EvJoinRoom:            co.handleJoinRoom,
		EvLeaveRoom:           co.handleLeaveRoom,
		EvPlayerMove:          co.handlePlayerMove,
		EvSurrender:           co.handleSurrender,
		EvRequestRematch:      co.handleRequestRematch,
		EvRematchResponse:     co.handleRematchResponse,
		EvSpectateGame:        co.handleSpectateGame,
		EvStopSpectating:      co.handleStopSpectating,
		EvChatMessage:         co.handleChatMessage,
		EvJoinChat:            co.handleJoinChat,
		EvLeaveChat:           co.handleLeaveChat,
		EvGetChatHistory:      co.handleChatHistory,
		EvTypingStart:         co.handleTypingStart,
		EvTypingStop:          co.handleTypingStop,
		EvPrivateMessage:      co.handlePrivateMessage,
	}
	return co
}

// Dispatch routes one inbound event to its handler. Panics inside a handler
// are converted to a generic internal error for the triggering connection
// only; they never take down the coordinator or other connections.
func (co *Coordinator) Dispatch(c *Client, msg WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WS] Handler panic for conn %s event %s: %v", c.id, msg.Type, r)
			c.Send(map[string]any{
				"type":    OutError,
				"code":    "internal",
				"message": "Internal error",
			})
		}
	}()

	co.registry.Touch(c.id)

	if msg.Type == EvAuthenticate {
		co.handleAuthenticate(c, msg.Data)
		return
	}

	h, ok := co.handlers[msg.Type]
	if !ok {
		co.sendError(c, "validation_failed", "Unknown message type")
		return
	}
	// Every event except authenticate requires a completed handshake
	co.registry.RequireAuth(h)(c, msg.Data)
}

// HandleConnect registers a fresh, unauthenticated connection.
func (co *Coordinator) HandleConnect(c *Client) {
	co.registry.Register(c)
}

// HandleDisconnect unwinds every engine's state for the connection: queue
// entry, game slot or spectator seat, chat participation, and finally the
// registry binding.
func (co *Coordinator) HandleDisconnect(c *Client) {
	identity, authed := co.registry.Identity(c.id)

	if authed {
		co.matches.Cancel(identity.UserID)

		if result := co.games.HandleDisconnect(identity.UserID, c.id); result != nil {
			co.hub.BroadcastConns(result.Recipients, map[string]any{
				"type":     OutPlayerDisconnected,
				"room_id":  result.RoomID,
				"user_id":  identity.UserID,
				"username": identity.Username,
				"state":    result.State,
				"message":  "Opponent disconnected. Game paused.",
			})
		}

		for roomID, recipients := range co.chat.LeaveAll(identity.UserID) {
			co.broadcastUsers(recipients, map[string]any{
				"type":     OutChatLeft,
				"room_id":  roomID,
				"user_id":  identity.UserID,
				"username": identity.Username,
			})
		}
	} else {
		// Spectator seats are keyed by connection id, not identity
		co.games.HandleDisconnect("", c.id)
	}

	co.registry.Remove(c.id)
}

// onMatch turns a pairing into a live game room and notifies both players.
// The first queued player takes X.
func (co *Coordinator) onMatch(result matchmaking.MatchResult) {
	created := co.games.CreateRoom(result.RoomID,
		game.PlayerSlot{UserID: result.A.UserID, Username: result.A.Username, ConnID: result.A.ConnID},
		game.PlayerSlot{UserID: result.B.UserID, Username: result.B.Username, ConnID: result.B.ConnID},
	)

	notify := func(p matchmaking.Player, symbol game.Mark, opponent matchmaking.Player) {
		if c, ok := co.hub.Get(p.ConnID); ok {
			c.Send(map[string]any{
				"type":     OutMatchFound,
				"room_id":  result.RoomID,
				"symbol":   symbol,
				"opponent": map[string]any{"user_id": opponent.UserID, "username": opponent.Username, "level": opponent.Level},
				"quality":  result.Quality,
			})
		}
	}
	notify(result.A, game.MarkX, result.B)
	notify(result.B, game.MarkO, result.A)

	co.hub.BroadcastConns(created.Recipients, map[string]any{
		"type":  OutMatchReady,
		"state": created.State,
	})
}

func (co *Coordinator) onMatchTimeout(p matchmaking.Player) {
	if c, ok := co.hub.Get(p.ConnID); ok {
		c.Send(map[string]any{
			"type":    OutMatchmakingTimeout,
			"message": "No compatible opponent found in time",
		})
	}
}

func (co *Coordinator) onRoomExpired(roomID string, recipients []string) {
	co.hub.BroadcastConns(recipients, map[string]any{
		"type":    OutRematchDeclined,
		"room_id": roomID,
		"reason":  "timeout",
		"message": "Rematch not accepted in time",
	})
}

func (co *Coordinator) onTypingStop(roomID, userID string, recipients []string) {
	co.broadcastUsers(recipients, map[string]any{
		"type":    OutUserStoppedTyping,
		"room_id": roomID,
		"user_id": userID,
	})
}

// broadcastUsers delivers to each user's live connection, resolved through
// the registry.
func (co *Coordinator) broadcastUsers(userIDs []string, v any) {
	for _, id := range userIDs {
		if conn, ok := co.registry.Resolve(id); ok {
			conn.Send(v)
		}
	}
}

// Registry exposes the connection registry to the fallback/admin surfaces.
func (co *Coordinator) Registry() *registry.Registry { return co.registry }

// Matches exposes the matchmaking engine to the fallback/admin surfaces.
func (co *Coordinator) Matches() *matchmaking.Engine { return co.matches }

// Games exposes the game engine to the fallback/admin surfaces.
func (co *Coordinator) Games() *game.Engine { return co.games }

// Chat exposes the chat engine to the fallback/admin surfaces.
func (co *Coordinator) Chat() *chat.Engine { return co.chat }
