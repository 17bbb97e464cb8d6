package core

import "github.com/opencrew/huddle/internal/domain"

// Frame is one serialized signal message.
type Frame []byte

// SignalConn abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend(Frame) error
	Close()
}

// Session binds an authenticated user and its transport endpoint.
// This is what the presence registry stores and the relay fans out to.
type Session interface {
	User() *domain.User
	Signal() SignalConn
}

type memberSession struct {
	user *domain.User
	conn SignalConn
}

func NewSession(user *domain.User, conn SignalConn) Session {
	return &memberSession{user: user, conn: conn}
}

func (s *memberSession) User() *domain.User { return s.user }
func (s *memberSession) Signal() SignalConn { return s.conn }
