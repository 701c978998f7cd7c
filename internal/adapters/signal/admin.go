package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
	"github.com/windchat/relay/internal/metrics"
)

// Admin events. Failures are reported only to the acting connection and
// never broadcast; the room is left untouched.

func (ctl *SignalWSController) handleRemoveUser(
	sid domain.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	type removePayload struct {
		Type    string `json:"type"`
		RoomKey string `json:"roomKey"`
		Target  string `json:"targetConnectionId"`
	}
	var p removePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad remove payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	key := domain.RoomKey(p.RoomKey)
	target := domain.ConnID(p.Target)
	dep, err := ctl.Rooms.RemoveMember(key, sid, target)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	metrics.ActiveRooms.Set(float64(ctl.Rooms.Count()))
	log.Info().Str("module", "signal").Str("admin", string(sid)).Str("target", p.Target).Str("room", p.RoomKey).Msg("member removed")

	// The target learns it was removed before the room hears it left.
	ctl.sendJSON(dep.Session.Signal(), struct {
		Type    string         `json:"type"`
		RoomKey domain.RoomKey `json:"roomKey"`
	}{
		Type:    "removed",
		RoomKey: key,
	})
	ctl.notifyDeparture(target, key, dep)
}

func (ctl *SignalWSController) handleDeleteRoom(
	sid domain.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	type deletePayload struct {
		Type    string `json:"type"`
		RoomKey string `json:"roomKey"`
	}
	var p deletePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad delete payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	key := domain.RoomKey(p.RoomKey)
	evicted, err := ctl.Rooms.DeleteRoom(key, sid)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	metrics.ActiveRooms.Set(float64(ctl.Rooms.Count()))
	log.Info().Str("module", "signal").Str("admin", string(sid)).Str("room", p.RoomKey).Msg("room deleted")

	ctl.broadcast(evicted, struct {
		Type    string         `json:"type"`
		RoomKey domain.RoomKey `json:"roomKey"`
	}{
		Type:    "room-deleted",
		RoomKey: key,
	})
}
