package core

import (
	"errors"

	"github.com/dkeye/roomcast/internal/domain"
)

// Frame is one encoded signaling message.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts the messaging transport of one peer.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// outbound queue is full and ErrConnectionClosed after Close.
	TrySend(f Frame) error
	Close()
	Closed() bool
}

// MemberSession binds a domain.Peer and its signaling endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Peer() *domain.Peer
	Signal() SignalConnection
}

type memberSession struct {
	peer   *domain.Peer
	signal SignalConnection
}

func NewMemberSession(peer *domain.Peer, signal SignalConnection) MemberSession {
	return &memberSession{peer: peer, signal: signal}
}

func (m *memberSession) Peer() *domain.Peer       { return m.peer }
func (m *memberSession) Signal() SignalConnection { return m.signal }

// PublishResult reports delivery stats/backpressure of a room broadcast.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}
