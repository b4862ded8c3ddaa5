package models

import (
	"encoding/json"
	"time"
)

// Inbound message types.
const (
	MsgAuthenticate      = "authenticate"
	MsgCreateRoom        = "create_room"
	MsgJoinRoom          = "join_room"
	MsgLeaveRoom         = "leave_room"
	MsgSpectateRoom      = "spectate_room"
	MsgFindMatch         = "find_match"
	MsgCancelMatchmaking = "cancel_matchmaking"
	MsgReady             = "ready"
	MsgTakeShot          = "take_shot"
	MsgShotResult        = "shot_result"
	MsgCueBallPlaced     = "cue_ball_placed"
	MsgPing              = "ping"
)

// Outbound message types.
const (
	MsgAuthenticated         = "authenticated"
	MsgRoomCreated           = "room_created"
	MsgPlayerJoined          = "player_joined"
	MsgPlayerLeft            = "player_left"
	MsgRoomLeft              = "room_left"
	MsgSpectating            = "spectating"
	MsgMatchmakingStarted    = "matchmaking_started"
	MsgMatchmakingCancelled  = "matchmaking_cancelled"
	MsgMatchFound            = "match_found"
	MsgMatchmakingTimeout    = "matchmaking_timeout"
	MsgGameStart             = "game_start"
	MsgShotTaken             = "shot_taken"
	MsgGameStateUpdate       = "game_state_update"
	MsgGameOver              = "game_over"
	MsgOpponentDisconnecting = "opponent_disconnecting"
	MsgOpponentReconnected   = "opponent_reconnected"
	MsgGameRejoin            = "game_rejoin"
	MsgRoomClosed            = "room_closed"
	MsgServerStats           = "server_stats"
	MsgError                 = "error"
	MsgPong                  = "pong"
)

type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type CreateRoomRequest struct {
	Wager    int64  `json:"wager"`
	Currency string `json:"currency"`
}

type RoomCodeRequest struct {
	RoomCode string `json:"room_code"`
}

type FindMatchRequest struct {
	Tier string `json:"tier"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
}

type AuthenticatedPayload struct {
	Player     Player           `json:"player"`
	RatingTier string           `json:"rating_tier"`
	Session    *SessionSnapshot `json:"session,omitempty"`
	Queued     bool             `json:"queued"`
}

type MatchmakingStartedPayload struct {
	Tier                 string `json:"tier"`
	Stake                int64  `json:"stake"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

type MatchmakingTimeoutPayload struct {
	Tier          string `json:"tier"`
	WaitedSeconds int    `json:"waited_seconds"`
}

type MatchFoundPayload struct {
	Tier             string          `json:"tier"`
	Slot             int             `json:"slot"`
	Opponent         Player          `json:"opponent"`
	AutoStartSeconds int             `json:"auto_start_seconds"`
	Session          SessionSnapshot `json:"session"`
}

type ShotTakenPayload struct {
	Shot    ShotRecord      `json:"shot"`
	Session SessionSnapshot `json:"session"`
}

type StateUpdatePayload struct {
	Result  string          `json:"result"`
	Session SessionSnapshot `json:"session"`
}

type GameOverPayload struct {
	WinnerSlot   int             `json:"winner_slot"`
	WinnerID     string          `json:"winner_id"`
	Reason       FinishReason    `json:"reason"`
	Wager        int64           `json:"wager"`
	Currency     string          `json:"currency"`
	RatingChange RatingChange    `json:"rating_change"`
	Session      SessionSnapshot `json:"session"`
}

type OpponentDisconnectingPayload struct {
	PlayerID     string    `json:"player_id"`
	GraceSeconds int       `json:"grace_seconds"`
	Deadline     time.Time `json:"deadline"`
}

type PlayerLeftPayload struct {
	PlayerID string          `json:"player_id"`
	Session  SessionSnapshot `json:"session"`
}

type RoomClosedPayload struct {
	SessionID string `json:"session_id"`
	RoomCode  string `json:"room_code"`
	Reason    string `json:"reason"`
}

type ServerStats struct {
	OnlinePlayers int            `json:"online_players"`
	QueuedPlayers int            `json:"queued_players"`
	QueuedByTier  map[string]int `json:"queued_by_tier"`
	Sessions      int            `json:"sessions"`
	Waiting       int            `json:"waiting"`
	Ready         int            `json:"ready"`
	Playing       int            `json:"playing"`
	Finished      int            `json:"finished"`
	PendingRejoin int            `json:"pending_rejoin"`
	At            time.Time      `json:"at"`
}

type MatchmakingCancelledPayload struct {
	Removed bool `json:"removed"`
}

type RoomLeftPayload struct {
	SessionID string `json:"session_id"`
	RoomCode  string `json:"room_code"`
}

type GameRejoinPayload struct {
	Slot    int             `json:"slot"`
	Session SessionSnapshot `json:"session"`
}

type OpponentReconnectedPayload struct {
	PlayerID string `json:"player_id"`
}

type PongPayload struct {
	At time.Time `json:"at"`
}
