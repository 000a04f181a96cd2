package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/roomcast/internal/domain"
)

const (
	EventPeerJoined     = "peer-joined"
	EventPeerLeft       = "peer-left"
	EventNewSource      = "new-source"
	EventConsumerClosed = "consumer-closed"
	EventStreamReady    = "stream-ready"
	EventStreamEnded    = "stream-ended"
	EventRoomClosed     = "room-closed"
)

// Event is the envelope of a fire-and-forget room notification.
type Event struct {
	Type  string    `json:"type"`
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"-"`
}

func NewEvent(name string, data any) Event {
	return Event{Type: "event", Event: name, Data: data, At: time.Now()}
}

func (e Event) Encode() (Frame, error) {
	return json.Marshal(e)
}

type PeerLeftData struct {
	PeerID domain.PeerID `json:"peerId"`
}

type ConsumerClosedData struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
	ProducerID domain.ProducerID `json:"producerId"`
}

type StreamReadyData struct {
	URL string `json:"url"`
}

type StreamEndedData struct {
	Reason string `json:"reason"`
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.RoomID, Event) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }
