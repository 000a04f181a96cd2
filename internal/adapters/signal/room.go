package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const disconnectTimeout = 5 * time.Second

func (cl *client) handleJoin(ctx context.Context, req Request) (any, error) {
	var p joinRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		return nil, err
	}
	peer, err := domain.NewPeer(role, p.DisplayName)
	if err != nil {
		return nil, err
	}

	cl.mu.Lock()
	state := cl.state
	cl.mu.Unlock()
	switch state {
	case stateJoined:
		return nil, domain.ErrAlreadyJoined
	case stateLeft:
		return nil, domain.ErrPeerNotJoined
	}

	res, err := cl.ctl.Registry.AddPeer(ctx, roomID, core.NewMemberSession(peer, cl.conn))
	if err != nil {
		return nil, err
	}

	cl.mu.Lock()
	cl.state = stateJoined
	cl.room = res.Room
	cl.peer = peer
	cl.mu.Unlock()
	cl.logger.Info().Str("room", string(roomID)).Str("peer", string(peer.ID)).Str("role", string(role)).Msg("join")

	return joinResponse{
		PeerID:          peer.ID,
		RTPCapabilities: res.RTPCapabilities,
		Peers:           res.Peers,
		Producers:       res.Producers,
	}, nil
}

func (cl *client) handleLeave(ctx context.Context, _ Request) (any, error) {
	room, peer, err := cl.member()
	if err != nil {
		return nil, err
	}
	cl.mu.Lock()
	cl.state = stateLeft
	cl.mu.Unlock()

	cl.logger.Info().Msg("leave")
	if err := cl.ctl.Registry.RemovePeer(ctx, room.ID(), peer.ID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, err
	}
	return struct{}{}, nil
}

// closeIfLeft ends the connection once a leave has been answered.
func (cl *client) closeIfLeft() {
	cl.mu.Lock()
	left := cl.state == stateLeft
	cl.mu.Unlock()
	if left {
		cl.conn.Close()
	}
}

// disconnect removes the peer of a connection that went away while joined.
func (cl *client) disconnect() {
	cl.mu.Lock()
	joined := cl.state == stateJoined
	room, peer := cl.room, cl.peer
	cl.state = stateLeft
	cl.mu.Unlock()
	if !joined {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	err := cl.ctl.Registry.RemovePeer(ctx, room.ID(), peer.ID)
	switch {
	case err == nil:
		cl.logger.Info().Msg("peer removed on disconnect")
	case errors.Is(err, domain.ErrPeerNotJoined), errors.Is(err, domain.ErrRoomNotFound):
	default:
		cl.logger.Error().Err(err).Msg("remove peer on disconnect")
	}
}

func (cl *client) handleStreamURL(_ context.Context, req Request) (any, error) {
	var p roomRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	id, err := cl.targetRoom(p.RoomID)
	if err != nil {
		return nil, err
	}
	url, err := cl.ctl.Registry.StreamURL(id)
	if err != nil {
		return nil, err
	}
	return urlResponse{URL: url}, nil
}

func (cl *client) handleRoomStats(ctx context.Context, req Request) (any, error) {
	var p roomRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	id, err := cl.targetRoom(p.RoomID)
	if err != nil {
		return nil, err
	}
	return cl.ctl.Registry.Stats(ctx, id)
}
