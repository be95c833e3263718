package ws

import "encoding/json"

// WSMessage is the envelope for every inbound event.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event types (connection -> server)
const (
	EvAuthenticate        = "authenticate"
	EvFindMatch           = "find_match"
	EvQuickMatch          = "quick_match"
	EvCancelMatchmaking   = "cancel_matchmaking"
	EvGetMatchmakingState = "get_matchmaking_status"
	EvJoinRoom            = "join_room"
	EvLeaveRoom           = "leave_room"
	EvPlayerMove          = "player_move"
	EvSurrender           = "surrender"
	EvRequestRematch      = "request_rematch"
	EvRematchResponse     = "rematch_response"
	EvSpectateGame        = "spectate_game"
	EvStopSpectating      = "stop_spectating"
	EvChatMessage         = "chat_message"
	EvJoinChat            = "join_chat"
	EvLeaveChat           = "leave_chat"
	EvGetChatHistory      = "get_chat_history"
	EvTypingStart         = "typing_start"
	EvTypingStop          = "typing_stop"
	EvPrivateMessage      = "private_message"
)

// Outbound event types (server -> connection/room)
const (
	OutAuthSuccess          = "auth_success"
	OutAuthError            = "auth_error"
	OutAuthRequired         = "auth_required"
	OutMatchmakingQueued    = "matchmaking_queued"
	OutMatchFound           = "match_found"
	OutMatchReady           = "match_ready"
	OutMatchmakingCancelled = "matchmaking_cancelled"
	OutMatchmakingTimeout   = "matchmaking_timeout"
	OutMatchmakingStatus    = "matchmaking_status"
	OutRoomJoined           = "room_joined"
	OutJoinedAsSpectator    = "joined_as_spectator"
	OutMoveMade             = "move_made"
	OutGameSurrendered      = "game_surrendered"
	OutRematchRequested     = "rematch_requested"
	OutRematchAccepted      = "rematch_accepted"
	OutRematchDeclined      = "rematch_declined"
	OutPlayerDisconnected   = "player_disconnected"
	OutChatJoined           = "chat_joined"
	OutChatLeft             = "chat_left"
	OutChatMessage          = "chat_message"
	OutChatHistory          = "chat_history"
	OutUserTyping           = "user_typing"
	OutUserStoppedTyping    = "user_stopped_typing"
	OutPrivateMessage       = "private_message"
	OutChatError            = "chat_error"
	OutUserOffline          = "user_offline"
	OutSystemMessage        = "system_message"
	OutError                = "error"
)

// Inbound payloads

type AuthenticateData struct {
	Token string `json:"token"`
}

type MatchCriteria struct {
	// Level overrides the profile level when positive (self-reported skill)
	Level int `json:"level,omitempty"`
}

type RoomData struct {
	RoomID string `json:"room_id"`
}

type MoveData struct {
	RoomID string `json:"room_id"`
	// Pointer so an absent field is distinguishable from cell 0
	Position *int `json:"position"`
}

type RematchResponseData struct {
	RoomID string `json:"room_id"`
	Accept bool   `json:"accept"`
}

type ChatMessageData struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

type ChatHistoryData struct {
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type PrivateMessageData struct {
	TargetUserID string `json:"target_user_id"`
	Message      string `json:"message"`
}
