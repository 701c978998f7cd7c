// Package domain contains entities without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// ConnID identifies one live transport connection.
type ConnID string

// Session is the per-connection state: identity, the display name chosen
// at join time, the room currently joined ("" before joining) and the
// volatile typing flag.
type Session struct {
	ID      ConnID
	Name    string
	RoomKey RoomKey
	Typing  bool
}

// NewSession is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewSession(id ConnID) *Session {
	return &Session{ID: id}
}

func (s *Session) SetName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	s.Name = name
	return nil
}
