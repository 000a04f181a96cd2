package apptest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// FakeSignal records frames instead of writing them to a socket.
type FakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func NewFakeSignal() *FakeSignal { return &FakeSignal{} }

// NewSession returns a member session for a fresh peer backed by a FakeSignal.
func NewSession(role domain.Role, name string) (core.MemberSession, *FakeSignal) {
	peer, err := domain.NewPeer(role, name)
	if err != nil {
		panic(err)
	}
	sig := NewFakeSignal()
	return core.NewMemberSession(peer, sig), sig
}

// SetFull makes every following TrySend fail with ErrBackpressure.
func (s *FakeSignal) SetFull(full bool) {
	s.mu.Lock()
	s.full = full
	s.mu.Unlock()
}

func (s *FakeSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrConnectionClosed
	}
	if s.full {
		return core.ErrBackpressure
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *FakeSignal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *FakeSignal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ReceivedEvent is a decoded event frame.
type ReceivedEvent struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (s *FakeSignal) Events() []ReceivedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReceivedEvent, 0, len(s.frames))
	for _, f := range s.frames {
		var ev ReceivedEvent
		if err := json.Unmarshal(f, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// EventNames lists the received event names in order.
func (s *FakeSignal) EventNames() []string {
	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Event)
	}
	return names
}

// Last returns the most recent event called name.
func (s *FakeSignal) Last(name string) (ReceivedEvent, bool) {
	evs := s.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Event == name {
			return evs[i], true
		}
	}
	return ReceivedEvent{}, false
}
