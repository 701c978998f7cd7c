package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/domain"
)

// handleTyping flips the sender's typing flag and tells the rest of the
// room. Events from non-members are silently ignored.
func (ctl *SignalWSController) handleTyping(sid domain.ConnID, data []byte, typing bool) {
	type typingPayload struct {
		Type    string `json:"type"`
		RoomKey string `json:"roomKey"`
	}
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad typing payload")
		return
	}

	info, others, ok := ctl.Rooms.SetTyping(domain.RoomKey(p.RoomKey), sid, typing)
	if !ok {
		return
	}

	ctl.broadcast(others, struct {
		Type        string        `json:"type"`
		ConnID      domain.ConnID `json:"connectionId"`
		DisplayName string        `json:"displayName"`
		IsTyping    bool          `json:"isTyping"`
	}{
		Type:        "typing-changed",
		ConnID:      info.ID,
		DisplayName: info.Name,
		IsTyping:    info.IsTyping,
	})
}
