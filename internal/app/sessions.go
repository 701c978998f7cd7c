package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
)

// SessionRegistry tracks every live connection's session, bound on
// connect and released on disconnect, on every exit path.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]core.MemberSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[domain.ConnID]core.MemberSession)}
}

func (r *SessionRegistry) Bind(sid domain.ConnID, sess core.MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = sess
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("bound session")
}

func (r *SessionRegistry) Get(sid domain.ConnID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sid]
	return sess, ok
}

func (r *SessionRegistry) Unbind(sid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unbound session")
}

// Count reports live connections, joined to a room or not.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
