package core

import "github.com/windchat/relay/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	meta *domain.Session
	sig  SignalConnection
}

func NewMemberSession(meta *domain.Session, sig SignalConnection) MemberSession {
	return &memberSession{meta: meta, sig: sig}
}

func (m *memberSession) Meta() *domain.Session    { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.sig }
