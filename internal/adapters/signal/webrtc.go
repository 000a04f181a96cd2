package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/roomcast/internal/domain"
)

func (cl *client) handleCreateTransport(ctx context.Context, req Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	var p createTransportRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	return room.CreateTransport(ctx, peer.ID, p.Direction)
}

func (cl *client) handleConnectTransport(ctx context.Context, req Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	var p connectTransportRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	if p.TransportID == "" {
		return nil, fmt.Errorf("%w: transportId is required", domain.ErrInvalidPayload)
	}
	if err := room.ConnectTransport(ctx, peer.ID, p.TransportID, p.ConnectParams); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (cl *client) handleProduce(ctx context.Context, req Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	var p produceRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	id, err := room.Produce(ctx, peer.ID, p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		return nil, err
	}
	return produceResponse{ProducerID: id}, nil
}

func (cl *client) handleConsume(ctx context.Context, req Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	var p consumeRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	return room.Consume(ctx, peer.ID, p.TransportID, p.ProducerID, p.RTPCapabilities)
}

func (cl *client) handleResumeConsumer(ctx context.Context, req Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	var p resumeConsumerRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	if err := room.ResumeConsumer(ctx, peer.ID, p.ConsumerID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
