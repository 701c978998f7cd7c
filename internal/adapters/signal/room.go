package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
	"github.com/windchat/relay/internal/metrics"
)

func (ctl *SignalWSController) handleJoin(
	sid domain.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	type joinPayload struct {
		Type        string `json:"type"`
		RoomKey     string `json:"roomKey"`
		DisplayName string `json:"displayName"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	if p.RoomKey == "" || p.DisplayName == "" {
		ctl.sendError(conn, core.ErrInvalidInput.Error())
		return
	}

	sess, ok := ctl.Sessions.Get(sid)
	if !ok {
		return
	}

	// The registry handles a room switch atomically: a rejected join
	// leaves the session's current room untouched.
	key := domain.RoomKey(p.RoomKey)
	res, err := ctl.Rooms.Join(key, sess, p.DisplayName)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	metrics.ActiveRooms.Set(float64(ctl.Rooms.Count()))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomKey).Str("name", p.DisplayName).Msg("join")

	if res.Left != nil {
		ctl.notifyDeparture(sid, res.LeftKey, *res.Left)
	}

	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
		core.RoomSnapshot
	}{
		Type:         "joined",
		RoomSnapshot: res.Snapshot,
	})

	if res.Rejoined {
		return
	}
	ctl.broadcast(res.Others, struct {
		Type        string        `json:"type"`
		ConnID      domain.ConnID `json:"connectionId"`
		DisplayName string        `json:"displayName"`
	}{
		Type:        "member-joined",
		ConnID:      sid,
		DisplayName: p.DisplayName,
	})
}

// handleDisconnect runs when the transport closes; it is the only
// asynchronous trigger and behaves like a voluntary leave. The room
// lookup happens inside the registry, under its lock.
func (ctl *SignalWSController) handleDisconnect(sid domain.ConnID) {
	sess, ok := ctl.Sessions.Get(sid)
	if !ok {
		return
	}
	key, dep, ok := ctl.Rooms.Disconnect(sess)
	if !ok {
		return
	}
	metrics.ActiveRooms.Set(float64(ctl.Rooms.Count()))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(key)).Msg("left room")
	ctl.notifyDeparture(sid, key, dep)
}

// notifyDeparture tells the room about one member's exit: member-left to
// the remaining members, plus a private admin-promoted on handover.
func (ctl *SignalWSController) notifyDeparture(sid domain.ConnID, key domain.RoomKey, dep core.Departure) {
	if dep.RoomGone {
		return
	}
	ctl.broadcast(dep.Remaining, struct {
		Type        string        `json:"type"`
		ConnID      domain.ConnID `json:"connectionId"`
		DisplayName string        `json:"displayName"`
	}{
		Type:        "member-left",
		ConnID:      sid,
		DisplayName: dep.Name,
	})
	if dep.Promoted != nil {
		ctl.sendJSON(dep.Promoted.Signal(), struct {
			Type    string         `json:"type"`
			RoomKey domain.RoomKey `json:"roomKey"`
		}{
			Type:    "admin-promoted",
			RoomKey: key,
		})
	}
}
