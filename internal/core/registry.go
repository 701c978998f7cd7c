package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/domain"
)

// room is one live room: immutable meta plus the mutable membership set.
// It is mutated only while the owning Registry holds its lock.
type room struct {
	meta    *domain.Room
	adminID domain.ConnID
	members map[domain.ConnID]MemberSession
	order   []domain.ConnID // join order; order[0] is next in line for admin
}

func (r *room) sessions() []MemberSession {
	out := make([]MemberSession, 0, len(r.members))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

func (r *room) sessionsExcept(skip domain.ConnID) []MemberSession {
	out := make([]MemberSession, 0, len(r.members))
	for _, id := range r.order {
		if id == skip {
			continue
		}
		out = append(out, r.members[id])
	}
	return out
}

func (r *room) infos() []MemberInfo {
	out := make([]MemberInfo, 0, len(r.members))
	for _, id := range r.order {
		meta := r.members[id].Meta()
		out = append(out, MemberInfo{ID: meta.ID, Name: meta.Name, IsTyping: meta.Typing})
	}
	return out
}

// Registry owns every live room. A single lock serializes the four
// membership operations, so none of them ever observes another one's
// transient state: a room is in the map if and only if it has members.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomKey]*room)}
}

// Join adds the session to the room under the given display name,
// creating the room on first join with the joiner as admin and a
// deterministically assigned theme. Joins are all-or-nothing: a join
// rejected for capacity or a bad name changes nothing anywhere,
// including the room the session currently sits in. Only once the
// join is known to succeed does a room switch evict the session from
// its previous room, inside the same critical section.
func (reg *Registry) Join(key domain.RoomKey, ms MemberSession, name string) (JoinResult, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	sid := ms.Meta().ID
	rm, exists := reg.rooms[key]
	var member bool
	if exists {
		_, member = rm.members[sid]
		if !member && len(rm.members) >= domain.MaxRoomMembers {
			return JoinResult{}, ErrRoomFull
		}
	}
	if err := ms.Meta().SetName(name); err != nil {
		return JoinResult{}, err
	}

	var res JoinResult
	if prev := ms.Meta().RoomKey; prev != "" && prev != key {
		if prevRoom, ok := reg.rooms[prev]; ok {
			dep := reg.evict(prev, prevRoom, sid)
			res.Left = &dep
			res.LeftKey = prev
		}
	}

	if !exists {
		rm = &room{
			meta: &domain.Room{
				Key:       key,
				Theme:     domain.AssignTheme(key),
				CreatedAt: time.Now(),
			},
			adminID: sid,
			members: make(map[domain.ConnID]MemberSession),
		}
		reg.rooms[key] = rm
		log.Info().Str("module", "core.registry").Str("room", string(key)).Str("sid", string(sid)).Msg("room created")
	}
	if member {
		res.Rejoined = true
	} else {
		rm.members[sid] = ms
		rm.order = append(rm.order, sid)
		ms.Meta().RoomKey = key
		log.Info().Str("module", "core.registry").Str("room", string(key)).Str("sid", string(sid)).Msg("member joined")
	}

	res.Others = rm.sessionsExcept(sid)
	res.Snapshot = RoomSnapshot{
		Key:     key,
		Theme:   rm.meta.Theme,
		IsAdmin: rm.adminID == sid,
		Members: rm.infos(),
	}
	return res, nil
}

// Disconnect is Leave for a closing transport: it reads the session's
// current room under the registry lock, so it cannot race an admin
// detaching the same session from another goroutine. Reports false if
// the session holds no room.
func (reg *Registry) Disconnect(ms MemberSession) (domain.RoomKey, Departure, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := ms.Meta().RoomKey
	if key == "" {
		return "", Departure{}, false
	}
	rm, ok := reg.rooms[key]
	if !ok {
		return "", Departure{}, false
	}
	if _, member := rm.members[ms.Meta().ID]; !member {
		return "", Departure{}, false
	}
	return key, reg.evict(key, rm, ms.Meta().ID), true
}

// Leave removes the member; returns false if the room or member is
// unknown. The last member's departure deletes the room, an admin's
// departure promotes the earliest-joined remaining member.
func (reg *Registry) Leave(key domain.RoomKey, sid domain.ConnID) (Departure, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[key]
	if !ok {
		return Departure{}, false
	}
	if _, member := rm.members[sid]; !member {
		return Departure{}, false
	}
	return reg.evict(key, rm, sid), true
}

// RemoveMember is Leave forced by the room admin. A non-admin actor gets
// ErrUnauthorized, an unknown target ErrNotInRoom; neither changes state.
func (reg *Registry) RemoveMember(key domain.RoomKey, actor, target domain.ConnID) (Departure, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[key]
	if !ok || rm.adminID != actor {
		return Departure{}, ErrUnauthorized
	}
	if _, member := rm.members[target]; !member {
		return Departure{}, ErrNotInRoom
	}
	log.Info().Str("module", "core.registry").Str("room", string(key)).Str("admin", string(actor)).Str("target", string(target)).Msg("member removed by admin")
	return reg.evict(key, rm, target), nil
}

// DeleteRoom tears the room down regardless of member count. Admin only.
// Every member's session is detached; the caller owns the notifications.
func (reg *Registry) DeleteRoom(key domain.RoomKey, actor domain.ConnID) ([]MemberSession, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[key]
	if !ok || rm.adminID != actor {
		return nil, ErrUnauthorized
	}
	evicted := rm.sessions()
	for _, ms := range evicted {
		ms.Meta().RoomKey = ""
		ms.Meta().Typing = false
	}
	delete(reg.rooms, key)
	log.Info().Str("module", "core.registry").Str("room", string(key)).Str("admin", string(actor)).Int("members", len(evicted)).Msg("room deleted by admin")
	return evicted, nil
}

// SetTyping flips the member's typing flag and reports who should hear
// about it. Not-a-member is reported via ok=false, never an error.
func (reg *Registry) SetTyping(key domain.RoomKey, sid domain.ConnID, typing bool) (MemberInfo, []MemberSession, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[key]
	if !ok {
		return MemberInfo{}, nil, false
	}
	ms, member := rm.members[sid]
	if !member {
		return MemberInfo{}, nil, false
	}
	ms.Meta().Typing = typing
	meta := ms.Meta()
	return MemberInfo{ID: meta.ID, Name: meta.Name, IsTyping: meta.Typing}, rm.sessionsExcept(sid), true
}

// Members returns the room's fan-out list iff sid is a current member.
func (reg *Registry) Members(key domain.RoomKey, sid domain.ConnID) ([]MemberSession, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rm, ok := reg.rooms[key]
	if !ok {
		return nil, false
	}
	if _, member := rm.members[sid]; !member {
		return nil, false
	}
	return rm.sessions(), true
}

// Count reports the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// evict carries out the shared tail of Leave and RemoveMember under the
// held lock: drop the member, delete the room when it empties, otherwise
// hand the admin role to the earliest-joined remaining member.
func (reg *Registry) evict(key domain.RoomKey, rm *room, sid domain.ConnID) Departure {
	ms := rm.members[sid]
	delete(rm.members, sid)
	for i, id := range rm.order {
		if id == sid {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	ms.Meta().RoomKey = ""
	ms.Meta().Typing = false

	dep := Departure{Session: ms, Name: ms.Meta().Name}
	if len(rm.members) == 0 {
		delete(reg.rooms, key)
		dep.RoomGone = true
		log.Info().Str("module", "core.registry").Str("room", string(key)).Msg("room deleted, no members remaining")
		return dep
	}
	if rm.adminID == sid {
		rm.adminID = rm.order[0]
		dep.Promoted = rm.members[rm.adminID]
		log.Info().Str("module", "core.registry").Str("room", string(key)).Str("admin", string(rm.adminID)).Msg("admin handover")
	}
	dep.Remaining = rm.sessions()
	return dep
}
