package ws

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/game"
	"github.com/playgrid/backend/internal/matchmaking"
	"github.com/playgrid/backend/internal/registry"
)

func (co *Coordinator) handleAuthenticate(conn registry.Conn, data []byte) {
	var payload AuthenticateData
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		conn.Send(map[string]any{
			"type":    OutAuthError,
			"code":    "validation_failed",
			"message": "token required",
		})
		return
	}

	identity, err := co.registry.Authenticate(conn, payload.Token)
	if err != nil {
		code := errorCode(err)
		if errors.Is(err, registry.ErrNotRegistered) {
			code = "internal"
		}
		conn.Send(map[string]any{
			"type":    OutAuthError,
			"code":    code,
			"message": err.Error(),
		})
		return
	}

	log.Printf("[WS] Conn %s authenticated as %s (%s)", conn.ID(), identity.UserID, identity.Username)
	conn.Send(map[string]any{
		"type":     OutAuthSuccess,
		"user_id":  identity.UserID,
		"username": identity.Username,
		"level":    identity.Level,
	})
}

func (co *Coordinator) enqueue(conn registry.Conn, data []byte, quick bool) {
	identity, _ := co.registry.Identity(conn.ID())

	var criteria MatchCriteria
	json.Unmarshal(data, &criteria)
	level := identity.Level
	if criteria.Level > 0 {
		level = criteria.Level
	}

	err := co.matches.Enqueue(matchmaking.Player{
		UserID:   identity.UserID,
		Username: identity.Username,
		Level:    level,
		ConnID:   conn.ID(),
		Quick:    quick,
	})
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}

	// The enqueue may have paired immediately; only report queued state if
	// the player is still waiting
	if pos := co.matches.Position(identity.UserID); pos > 0 {
		conn.Send(map[string]any{
			"type":            OutMatchmakingQueued,
			"position":        pos,
			"estimated_wait":  co.matches.EstimatedWait(identity.UserID).Seconds(),
			"quick":           quick,
			"max_wait":        co.cfg.MaxQueueWaitSecs,
			"pairing_seconds": co.cfg.PairingIntervalSecs,
		})
	}
}

func (co *Coordinator) handleFindMatch(conn registry.Conn, data []byte) {
	co.enqueue(conn, data, false)
}

func (co *Coordinator) handleQuickMatch(conn registry.Conn, data []byte) {
	co.enqueue(conn, data, true)
}

func (co *Coordinator) handleCancelMatchmaking(conn registry.Conn, _ []byte) {
	identity, _ := co.registry.Identity(conn.ID())
	removed := co.matches.Cancel(identity.UserID)
	conn.Send(map[string]any{
		"type":    OutMatchmakingCancelled,
		"removed": removed,
	})
}

func (co *Coordinator) handleMatchmakingStatus(conn registry.Conn, _ []byte) {
	identity, _ := co.registry.Identity(conn.ID())
	pos := co.matches.Position(identity.UserID)
	status := map[string]any{
		"type":     OutMatchmakingStatus,
		"queued":   pos > 0,
		"position": pos,
	}
	if pos > 0 {
		status["estimated_wait"] = co.matches.EstimatedWait(identity.UserID).Seconds()
	}
	conn.Send(status)
}

func (co *Coordinator) handleJoinRoom(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.JoinRoom(identity.UserID, conn.ID(), payload.RoomID)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}

	if result.AsSpectator {
		conn.Send(map[string]any{
			"type":  OutJoinedAsSpectator,
			"state": result.State,
		})
		return
	}
	conn.Send(map[string]any{
		"type":   OutRoomJoined,
		"symbol": result.Symbol,
		"state":  result.State,
	})
}

func (co *Coordinator) handleLeaveRoom(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}
	// Leaving a game room is just dropping the spectator seat; players leave
	// by surrendering or disconnecting
	co.games.StopSpectating(conn.ID(), payload.RoomID)
}

func (co *Coordinator) handlePlayerMove(conn registry.Conn, data []byte) {
	var payload MoveData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Position == nil {
		co.sendError(conn, "validation_failed", "room_id and position required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.MakeMove(identity.UserID, payload.RoomID, *payload.Position)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}

	co.hub.BroadcastConns(result.Recipients, map[string]any{
		"type":     OutMoveMade,
		"room_id":  payload.RoomID,
		"user_id":  identity.UserID,
		"symbol":   result.Symbol,
		"position": result.Position,
		"finished": result.Finished,
		"state":    result.State,
	})
}

func (co *Coordinator) handleSurrender(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.Surrender(identity.UserID, payload.RoomID)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}

	co.hub.BroadcastConns(result.Recipients, map[string]any{
		"type":     OutGameSurrendered,
		"room_id":  payload.RoomID,
		"user_id":  identity.UserID,
		"username": identity.Username,
		"state":    result.State,
	})
}

func (co *Coordinator) handleRequestRematch(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.RequestRematch(identity.UserID, payload.RoomID)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}
	co.broadcastRematch(payload.RoomID, identity.UserID, result)
}

func (co *Coordinator) handleRematchResponse(conn registry.Conn, data []byte) {
	var payload RematchResponseData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.RespondRematch(identity.UserID, payload.RoomID, payload.Accept)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}
	co.broadcastRematch(payload.RoomID, identity.UserID, result)
}

// broadcastRematch reports handshake progress to everyone in the room.
func (co *Coordinator) broadcastRematch(roomID, userID string, result game.RematchResult) {
	eventType := OutRematchRequested
	switch {
	case result.Restarted:
		eventType = OutRematchAccepted
	case result.Declined:
		eventType = OutRematchDeclined
	}
	co.hub.BroadcastConns(result.Recipients, map[string]any{
		"type":    eventType,
		"room_id": roomID,
		"user_id": userID,
		"state":   result.State,
	})
}

func (co *Coordinator) handleSpectateGame(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.games.Spectate(identity.UserID, conn.ID(), payload.RoomID)
	if err != nil {
		co.sendEngineError(conn, err)
		return
	}
	conn.Send(map[string]any{
		"type":  OutJoinedAsSpectator,
		"state": result.State,
	})
}

func (co *Coordinator) handleStopSpectating(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendError(conn, "validation_failed", "room_id required")
		return
	}
	co.games.StopSpectating(conn.ID(), payload.RoomID)
}

func (co *Coordinator) handleChatMessage(conn registry.Conn, data []byte) {
	var payload ChatMessageData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendChatError(conn, chat.ErrRoomNotFound)
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.chat.SendMessage(identity.UserID, identity.Username, payload.RoomID, payload.Message)
	if err != nil {
		co.sendChatError(conn, err)
		return
	}

	co.broadcastUsers(result.Recipients, map[string]any{
		"type":    OutChatMessage,
		"message": result.Message,
	})
}

func (co *Coordinator) handleJoinChat(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendChatError(conn, chat.ErrRoomNotFound)
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	result, err := co.chat.JoinRoom(identity.UserID, identity.Username, payload.RoomID)
	if err != nil {
		co.sendChatError(conn, err)
		return
	}

	co.broadcastUsers(result.Recipients, map[string]any{
		"type":         OutChatJoined,
		"room_id":      result.RoomID,
		"kind":         result.Kind,
		"user_id":      identity.UserID,
		"username":     identity.Username,
		"participants": result.Participants,
	})
}

func (co *Coordinator) handleLeaveChat(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendChatError(conn, chat.ErrRoomNotFound)
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	recipients := co.chat.LeaveRoom(identity.UserID, payload.RoomID)
	co.broadcastUsers(recipients, map[string]any{
		"type":     OutChatLeft,
		"room_id":  payload.RoomID,
		"user_id":  identity.UserID,
		"username": identity.Username,
	})
}

func (co *Coordinator) handleChatHistory(conn registry.Conn, data []byte) {
	var payload ChatHistoryData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		co.sendChatError(conn, chat.ErrRoomNotFound)
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	messages, err := co.chat.History(identity.UserID, payload.RoomID, payload.Limit, payload.Offset)
	if err != nil {
		co.sendChatError(conn, err)
		return
	}

	conn.Send(map[string]any{
		"type":     OutChatHistory,
		"room_id":  payload.RoomID,
		"messages": messages,
	})
}

func (co *Coordinator) handleTypingStart(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	recipients, err := co.chat.TypingStart(identity.UserID, payload.RoomID)
	if err != nil {
		return // typing indicators are best-effort
	}
	co.broadcastUsers(recipients, map[string]any{
		"type":     OutUserTyping,
		"room_id":  payload.RoomID,
		"user_id":  identity.UserID,
		"username": identity.Username,
	})
}

func (co *Coordinator) handleTypingStop(conn registry.Conn, data []byte) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	recipients := co.chat.TypingStop(identity.UserID, payload.RoomID)
	co.broadcastUsers(recipients, map[string]any{
		"type":    OutUserStoppedTyping,
		"room_id": payload.RoomID,
		"user_id": identity.UserID,
	})
}

func (co *Coordinator) handlePrivateMessage(conn registry.Conn, data []byte) {
	var payload PrivateMessageData
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		co.sendChatError(conn, chat.ErrRecipientOffline)
		return
	}

	identity, _ := co.registry.Identity(conn.ID())
	msg, err := co.chat.PrivateMessage(identity.UserID, identity.Username, payload.TargetUserID, payload.Message)
	if err != nil {
		if errors.Is(err, chat.ErrRecipientOffline) {
			conn.Send(map[string]any{
				"type":    OutUserOffline,
				"user_id": payload.TargetUserID,
				"message": "Recipient is offline",
			})
			return
		}
		co.sendChatError(conn, err)
		return
	}

	// Delivered to sender and resolved recipient only
	out := map[string]any{
		"type":    OutPrivateMessage,
		"message": msg,
	}
	conn.Send(out)
	if target, ok := co.registry.Resolve(payload.TargetUserID); ok {
		target.Send(out)
	}
}
