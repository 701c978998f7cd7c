package core

import "github.com/windchat/relay/internal/domain"

// Frame is a marshaled outbound event.
type Frame []byte

// SignalConnection abstracts the outbound side of one transport
// connection. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a domain.Session to its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Session
	Signal() SignalConnection
}

// MemberInfo is a read-only member view for snapshots (no transport fields).
type MemberInfo struct {
	ID       domain.ConnID `json:"connectionId"`
	Name     string        `json:"displayName"`
	IsTyping bool          `json:"isTyping"`
}

// RoomSnapshot is what a joiner gets back: the room's theme, whether the
// joiner is its admin, and the members in join order.
type RoomSnapshot struct {
	Key     domain.RoomKey `json:"roomKey"`
	Theme   domain.Theme   `json:"theme"`
	IsAdmin bool           `json:"isAdmin"`
	Members []MemberInfo   `json:"members"`
}

// JoinResult pairs the joiner's snapshot with the sessions that were
// already in the room, captured atomically for the join fan-out.
// Left carries the departure from the previous room when the join
// switched rooms; Rejoined marks a join into a room the session was
// already a member of.
type JoinResult struct {
	Snapshot RoomSnapshot
	Others   []MemberSession
	Rejoined bool
	Left     *Departure
	LeftKey  domain.RoomKey
}

// Departure reports what one member's exit changed, captured atomically:
// who left, who is still there, and who (if anyone) was promoted to admin.
type Departure struct {
	Session   MemberSession
	Name      string
	Remaining []MemberSession
	Promoted  MemberSession
	RoomGone  bool
}
