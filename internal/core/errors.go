package core

import "errors"

// Error messages are client-facing: they travel verbatim inside the
// private error event sent back to the acting connection.
var (
	ErrInvalidInput = errors.New("room key and display name are required")
	ErrRoomFull     = errors.New("room is full (max 10 users)")
	ErrNotInRoom    = errors.New("not in room")
	ErrUnauthorized = errors.New("unauthorized")
)
