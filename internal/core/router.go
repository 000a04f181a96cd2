package core

//go:generate mockgen -source=router.go -destination=mock/router_mock.go -package=mock

import (
	"context"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/rtp"
)

// PacketSink receives a copy of every RTP packet a producer forwards.
// WriteRTP must not retain or modify pkt.
type PacketSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// MediaRouter is the per-room handle to the media engine.
// Implementations must be safe for concurrent use.
type MediaRouter interface {
	// Capabilities returns the codecs the router supports. The value is
	// fixed for the router's lifetime.
	Capabilities() domain.RTPCapabilities

	CreateTransport(ctx context.Context, peer domain.PeerID, dir domain.Direction) (domain.TransportParams, error)
	ConnectTransport(ctx context.Context, id domain.TransportID, params domain.ConnectParams) error
	CloseTransport(id domain.TransportID) error

	Produce(ctx context.Context, transport domain.TransportID, kind domain.MediaKind, params domain.RTPParameters) (domain.ProducerID, error)
	CloseProducer(id domain.ProducerID) error

	// CanConsume reports whether caps contain an encoding compatible with the producer.
	CanConsume(producer domain.ProducerID, caps domain.RTPCapabilities) bool
	// Consume creates a paused consumer of producer on a receive transport.
	Consume(ctx context.Context, transport domain.TransportID, producer domain.ProducerID, caps domain.RTPCapabilities) (domain.ConsumerInfo, error)
	ResumeConsumer(ctx context.Context, id domain.ConsumerID) error
	CloseConsumer(id domain.ConsumerID) error

	// AttachSink plugs sink into the live packet flow of producer until the
	// returned detach func is called or the producer closes.
	AttachSink(producer domain.ProducerID, sink PacketSink) (func(), error)
	RequestKeyFrame(producer domain.ProducerID) error

	Close() error
}

// RouterFactory allocates one MediaRouter per room.
type RouterFactory interface {
	NewRouter(ctx context.Context, room domain.RoomID) (MediaRouter, error)
}

// EventPublisher fans room lifecycle events out of the process.
type EventPublisher interface {
	Publish(ctx context.Context, room domain.RoomID, ev Event) error
	Close() error
}
