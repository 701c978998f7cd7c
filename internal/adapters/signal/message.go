package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
	"github.com/windchat/relay/internal/metrics"
)

// handleMessage relays an opaque payload to every member of the room,
// sender included, so all clients render from one authoritative event.
// The payload is client-encrypted and never inspected or transformed.
func (ctl *SignalWSController) handleMessage(
	sid domain.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	type messagePayload struct {
		Type      string `json:"type"`
		RoomKey   string `json:"roomKey"`
		Payload   string `json:"payload"`
		Timestamp int64  `json:"timestamp"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	members, ok := ctl.Rooms.Members(domain.RoomKey(p.RoomKey), sid)
	if !ok {
		ctl.sendError(conn, core.ErrNotInRoom.Error())
		return
	}

	sess, ok := ctl.Sessions.Get(sid)
	if !ok {
		return
	}

	ctl.broadcast(members, struct {
		Type        string        `json:"type"`
		ConnID      domain.ConnID `json:"connectionId"`
		DisplayName string        `json:"displayName"`
		Payload     string        `json:"payload"`
		Timestamp   int64         `json:"timestamp"`
	}{
		Type:        "message",
		ConnID:      sid,
		DisplayName: sess.Meta().Name,
		Payload:     p.Payload,
		Timestamp:   p.Timestamp,
	})
	metrics.MessagesRelayed.Inc()
}
