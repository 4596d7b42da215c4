package room

import "errors"

// Ack error catalog. The client maps these strings to user-facing text, so
// they are part of the wire contract.
var (
	ErrRoomFull         = errors.New("room is full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomCodeRequired = errors.New("room code required")
	ErrInvalidRoomCode  = errors.New("invalid room code")
	ErrRoomExists       = errors.New("room already exists")
	ErrRoomLimitReached = errors.New("room limit reached")
	ErrNoCapacity       = errors.New("no room capacity available")

	ErrLobbyAlreadyOpen    = errors.New("lobby already open")
	ErrLobbyNotOpen        = errors.New("lobby not open")
	ErrAdmissionInProgress = errors.New("admission already in progress")
	ErrNoWaitingPlayers    = errors.New("no waiting players")

	ErrHostOnly        = errors.New("host only")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrTargetRequired  = errors.New("target required")
	ErrCannotTargetSelf = errors.New("cannot target self")
	ErrChatMuted       = errors.New("chat muted")
	ErrEmptyMessage    = errors.New("empty message")

	ErrInvalidPortalTarget   = errors.New("invalid portal target")
	ErrInvalidBillboardTarget = errors.New("invalid billboard target")
	ErrInvalidBillboardMedia  = errors.New("invalid billboard media")
)
