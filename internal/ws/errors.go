package ws

import (
	"errors"

	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/game"
	"github.com/playgrid/backend/internal/matchmaking"
	"github.com/playgrid/backend/internal/registry"
)

// errorCode maps engine errors to the wire-level error kinds. Validation and
// authorization failures surface synchronously, before any state mutation.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, registry.ErrInvalidCredential):
		return "auth_failed"
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return "conflict"
	case errors.Is(err, matchmaking.ErrNotQueued),
		errors.Is(err, game.ErrRoomNotFound),
		errors.Is(err, chat.ErrRoomNotFound):
		return "not_found"
	case errors.Is(err, game.ErrNotAPlayer),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, chat.ErrNotParticipant):
		return "forbidden"
	case errors.Is(err, game.ErrInvalidPosition),
		errors.Is(err, game.ErrRoomNotActive),
		errors.Is(err, game.ErrRoomNotFinished),
		errors.Is(err, matchmaking.ErrSamePlayer),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong):
		return "validation_failed"
	case errors.Is(err, chat.ErrRecipientOffline):
		return "user_offline"
	default:
		return "internal"
	}
}

func (co *Coordinator) sendError(conn registry.Conn, code, message string) {
	conn.Send(map[string]any{
		"type":    OutError,
		"code":    code,
		"message": message,
	})
}

// sendEngineError reports an engine failure on the standard error event.
func (co *Coordinator) sendEngineError(conn registry.Conn, err error) {
	co.sendError(conn, errorCode(err), err.Error())
}

// sendChatError reports a chat engine failure on the chat_error event.
func (co *Coordinator) sendChatError(conn registry.Conn, err error) {
	conn.Send(map[string]any{
		"type":    OutChatError,
		"code":    errorCode(err),
		"message": err.Error(),
	})
}
