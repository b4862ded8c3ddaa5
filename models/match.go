package models

import "time"

type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusReady    SessionStatus = "ready"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

const (
	HostSlot  = 1
	GuestSlot = 2
)

// OtherSlot returns the opposing slot number.
func OtherSlot(slot int) int {
	if slot == HostSlot {
		return GuestSlot
	}
	return HostSlot
}

type BallGroup string

const (
	GroupNone    BallGroup = "none"
	GroupSolids  BallGroup = "solids"
	GroupStripes BallGroup = "stripes"
)

// Opposite returns the group the other player receives when the table closes.
func (g BallGroup) Opposite() BallGroup {
	switch g {
	case GroupSolids:
		return GroupStripes
	case GroupStripes:
		return GroupSolids
	}
	return GroupNone
}

type FinishReason string

const (
	ReasonCompleted  FinishReason = "completed"
	ReasonForfeit    FinishReason = "forfeit"
	ReasonDisconnect FinishReason = "disconnect"
)

// ShotParams is the cue strike requested by the shooter.
type ShotParams struct {
	Angle float64 `json:"angle"`
	Power float64 `json:"power"`
	SpinX float64 `json:"spin_x"`
	SpinY float64 `json:"spin_y"`
}

// ShotRecord is one entry of the shot history.
type ShotRecord struct {
	Slot     int       `json:"slot"`
	PlayerID string    `json:"player_id"`
	Angle    float64   `json:"angle"`
	Power    float64   `json:"power"`
	SpinX    float64   `json:"spin_x"`
	SpinY    float64   `json:"spin_y"`
	TakenAt  time.Time `json:"taken_at"`
}

// UntrustedShotOutcome is the result of a shot as reported by the shooting client's own
// physics simulation. Nothing in it has been verified by the server.
type UntrustedShotOutcome struct {
	Pocketed     []int     `json:"pocketed"`
	Foul         bool      `json:"foul"`
	FoulReason   string    `json:"foul_reason,omitempty"`
	ContinueTurn bool      `json:"continue_turn"`
	TableOpen    bool      `json:"table_open"`
	ShooterGroup BallGroup `json:"shooter_group,omitempty"`
	Winner       int       `json:"winner,omitempty"`
}

type FoulRecord struct {
	Slot     int       `json:"slot"`
	Reason   string    `json:"reason,omitempty"`
	FouledAt time.Time `json:"fouled_at"`
}

// Position is a cue-ball location in normalized table coordinates: X runs along the
// length from the head rail, Y across the width, both in [0, 1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TurnState struct {
	CurrentPlayer     int          `json:"current_player"`
	TableOpen         bool         `json:"table_open"`
	Groups            [2]BallGroup `json:"groups"`
	BallInHand        bool         `json:"ball_in_hand"`
	BallInHandSlot    int          `json:"ball_in_hand_slot,omitempty"`
	KitchenRestricted bool         `json:"kitchen_restricted"`
	BreakShot         bool         `json:"break_shot"`
}

type SlotView struct {
	Slot        int       `json:"slot"`
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Rating      int       `json:"rating"`
	Connected   bool      `json:"connected"`
	Ready       bool      `json:"ready"`
	Group       BallGroup `json:"group"`
	Pocketed    []int     `json:"pocketed"`
}

// SessionSnapshot is a detached copy of a session safe to serialize or hand to another
// goroutine.
type SessionSnapshot struct {
	ID           string        `json:"session_id"`
	RoomCode     string        `json:"room_code"`
	Status       SessionStatus `json:"status"`
	Host         *SlotView     `json:"host"`
	Guest        *SlotView     `json:"guest,omitempty"`
	Spectators   int           `json:"spectators"`
	Wager        int64         `json:"wager"`
	Currency     string        `json:"currency"`
	Turn         TurnState     `json:"turn"`
	CueBall      *Position     `json:"cue_ball,omitempty"`
	Fouls        []FoulRecord  `json:"fouls"`
	ShotCount    int           `json:"shot_count"`
	LastShot     *ShotRecord   `json:"last_shot,omitempty"`
	Winner       int           `json:"winner,omitempty"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	LastActionAt time.Time     `json:"last_action_at"`
}

// DisconnectRecord exists only between a participant's disconnect and its resolution.
type DisconnectRecord struct {
	PlayerID       string    `json:"player_id"`
	SessionID      string    `json:"session_id"`
	Slot           int       `json:"slot"`
	DisconnectedAt time.Time `json:"disconnected_at"`
	Deadline       time.Time `json:"deadline"`
}

type RatingSide struct {
	PlayerID string `json:"player_id"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Delta    int    `json:"delta"`
}

type RatingChange struct {
	Winner RatingSide `json:"winner"`
	Loser  RatingSide `json:"loser"`
}

type CompletionPlayer struct {
	Slot        int    `json:"slot"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// CompletionEvent is emitted once per finished session to the history and account
// collaborators.
type CompletionEvent struct {
	SessionID    string             `json:"session_id"`
	RoomCode     string             `json:"room_code"`
	Players      []CompletionPlayer `json:"players"`
	WinnerSlot   int                `json:"winner_slot"`
	WinnerID     string             `json:"winner_id"`
	LoserID      string             `json:"loser_id"`
	Reason       FinishReason       `json:"reason"`
	Wager        int64              `json:"wager"`
	Currency     string             `json:"currency"`
	RatingChange RatingChange       `json:"rating_change"`
	ShotHistory  []ShotRecord       `json:"shot_history"`
	Fouls        []FoulRecord       `json:"fouls"`
	Duration     time.Duration      `json:"duration"`
	FinishedAt   time.Time          `json:"finished_at"`
}
