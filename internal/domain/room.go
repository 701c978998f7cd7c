package domain

import "time"

// RoomKey is the shared secret that names a room. It doubles as the
// room's display handle; clients pick it, the server never generates one.
type RoomKey string

// MaxRoomMembers caps simultaneous members per room.
const MaxRoomMembers = 10

// Room is the immutable meta of one room. Membership lives in core.
type Room struct {
	Key       RoomKey
	Theme     Theme
	CreatedAt time.Time
}
