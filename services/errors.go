package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the wire code reported to the client that sent the rejected command.
type ErrorKind string

const (
	KindAuthenticationRequired    ErrorKind = "authentication_required"
	KindNotYourTurn               ErrorKind = "not_your_turn"
	KindInvalidShotParameters     ErrorKind = "invalid_shot_parameters"
	KindInvalidShotOutcome        ErrorKind = "invalid_shot_outcome"
	KindInvalidPlacement          ErrorKind = "invalid_placement"
	KindNoBallInHand              ErrorKind = "no_ball_in_hand"
	KindRoomNotFound              ErrorKind = "room_not_found"
	KindRoomFull                  ErrorKind = "room_full"
	KindNotInRoom                 ErrorKind = "not_in_room"
	KindAlreadyQueued             ErrorKind = "already_queued"
	KindAlreadyInSession          ErrorKind = "already_in_session"
	KindInvalidTier               ErrorKind = "invalid_tier"
	KindInsufficientBalance       ErrorKind = "insufficient_balance"
	KindMatchAlreadyStarted       ErrorKind = "match_already_started"
	KindMatchNotStarted           ErrorKind = "match_not_started"
	KindMatchFinished             ErrorKind = "match_finished"
	KindSpectatorCapacityExceeded ErrorKind = "spectator_capacity_exceeded"
	KindInvalidMessage            ErrorKind = "invalid_message"
	KindInternal                  ErrorKind = "internal"
)

// GameError is a rejected command. Sentinels below are compared with errors.Is; detail is
// added by wrapping them with %w.
type GameError struct {
	Kind    ErrorKind
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

var (
	ErrAuthenticationRequired    = &GameError{KindAuthenticationRequired, "authentication required"}
	ErrNotYourTurn               = &GameError{KindNotYourTurn, "not your turn"}
	ErrInvalidShotParameters     = &GameError{KindInvalidShotParameters, "invalid shot parameters"}
	ErrInvalidShotOutcome        = &GameError{KindInvalidShotOutcome, "invalid shot outcome"}
	ErrInvalidPlacement          = &GameError{KindInvalidPlacement, "invalid cue ball placement"}
	ErrNoBallInHand              = &GameError{KindNoBallInHand, "ball in hand not granted"}
	ErrRoomNotFound              = &GameError{KindRoomNotFound, "room not found"}
	ErrRoomFull                  = &GameError{KindRoomFull, "room is full"}
	ErrNotInRoom                 = &GameError{KindNotInRoom, "not in a room"}
	ErrAlreadyQueued             = &GameError{KindAlreadyQueued, "already queued for matchmaking"}
	ErrAlreadyInSession          = &GameError{KindAlreadyInSession, "already in an active session"}
	ErrInvalidTier               = &GameError{KindInvalidTier, "unknown matchmaking tier"}
	ErrInsufficientBalance       = &GameError{KindInsufficientBalance, "insufficient balance"}
	ErrMatchAlreadyStarted       = &GameError{KindMatchAlreadyStarted, "match already started"}
	ErrMatchNotStarted           = &GameError{KindMatchNotStarted, "match not started"}
	ErrMatchFinished             = &GameError{KindMatchFinished, "match already finished"}
	ErrSpectatorCapacityExceeded = &GameError{KindSpectatorCapacityExceeded, "spectator capacity exceeded"}
	ErrInvalidMessage            = &GameError{KindInvalidMessage, "invalid message"}
)

// KindOf returns the kind carried by err, or KindInternal for anything that is not a
// GameError.
func KindOf(err error) ErrorKind {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

func rejectf(sentinel *GameError, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
