package game

import "errors"

// Rejections surfaced to the acting client. The error text is the
// acknowledgement message.
var (
	ErrRoomFull         = errors.New("room is full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("not in a room")
	ErrAlreadyInRoom    = errors.New("already in a room")
	ErrNotInProgress    = errors.New("game not in progress")
	ErrNeedTwoPlayers   = errors.New("need 2 players to start")
	ErrRoundResolved    = errors.New("round already resolved")
	ErrInvalidMove      = errors.New("invalid move")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrReplay           = errors.New("replay detected")
	ErrStaleMove        = errors.New("stale move")
	ErrMoveRejected     = errors.New("move rejected")
	ErrMalformedGesture = errors.New("malformed gesture")
	ErrRoomIntegrity    = errors.New("room integrity check failed")
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnavailable      = errors.New("server unavailable")
)
