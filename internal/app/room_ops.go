package app

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// JoinResult is what a freshly joined peer needs to start negotiating.
type JoinResult struct {
	Room            *Room
	RTPCapabilities domain.RTPCapabilities
	Peers           []domain.Peer
	Producers       []domain.ProducerInfo
}

// commit runs fn on the actor regardless of the caller's context. fn either
// records the router entity and returns nil, or returns an error without
// touching room state, in which case discard releases the entity.
func (r *Room) commit(fn func() error, discard func()) error {
	err := r.do(context.Background(), fn)
	if err != nil {
		discard()
	}
	return err
}

func (r *Room) ownTransportLocked(peer domain.PeerID, id domain.TransportID) (*transportEntry, error) {
	t, ok := r.transports[id]
	if !ok || t.peer != peer {
		return nil, domain.ErrTransportNotFound
	}
	return t, nil
}

func (r *Room) join(ctx context.Context, ms core.MemberSession) (JoinResult, error) {
	res := JoinResult{Room: r}
	err := r.do(ctx, func() error {
		p := ms.Peer()
		if _, ok := r.peers[p.ID]; ok {
			return domain.ErrAlreadyJoined
		}
		if ms.Signal().Closed() {
			return core.ErrConnectionClosed
		}
		res.RTPCapabilities = r.router.Capabilities()
		res.Peers = make([]domain.Peer, 0, len(r.peers))
		for _, pe := range r.peers {
			res.Peers = append(res.Peers, *pe.session.Peer())
		}
		res.Producers = make([]domain.ProducerInfo, 0, len(r.producers))
		for id, pr := range r.producers {
			res.Producers = append(res.Producers, domain.ProducerInfo{ID: id, PeerID: pr.peer, Kind: pr.kind})
		}
		slices.SortFunc(res.Producers, func(a, b domain.ProducerInfo) int {
			if c := cmp.Compare(a.PeerID, b.PeerID); c != 0 {
				return c
			}
			return cmp.Compare(a.Kind, b.Kind)
		})

		r.peers[p.ID] = &peerEntry{
			session:    ms,
			transports: make(map[domain.TransportID]struct{}),
			producers:  make(map[domain.MediaKind]domain.ProducerID),
			pending:    make(map[domain.MediaKind]bool),
			consumers:  make(map[domain.ConsumerID]struct{}),
		}
		r.logger.Info().Str("peer", string(p.ID)).Str("role", string(p.Role)).Int("peers", len(r.peers)).Msg("peer joined")
		r.broadcast(p.ID, core.NewEvent(core.EventPeerJoined, p))
		return nil
	})
	return res, err
}

// reapIfEmpty destroys a room nobody managed to join.
func (r *Room) reapIfEmpty() {
	_ = r.do(context.Background(), func() error {
		if len(r.peers) == 0 {
			r.destroyLocked()
		}
		return nil
	})
}

// Leave removes a peer and everything it owns.
func (r *Room) Leave(ctx context.Context, peer domain.PeerID) error {
	return r.do(ctx, func() error {
		if _, ok := r.peers[peer]; !ok {
			return domain.ErrPeerNotJoined
		}
		r.removePeerLocked(peer)
		return nil
	})
}

func (r *Room) CreateTransport(ctx context.Context, peer domain.PeerID, dir domain.Direction) (domain.TransportParams, error) {
	if !dir.Valid() {
		return domain.TransportParams{}, fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidPayload, dir)
	}
	err := r.do(ctx, func() error {
		if _, ok := r.peers[peer]; !ok {
			return domain.ErrPeerNotJoined
		}
		return nil
	})
	if err != nil {
		return domain.TransportParams{}, err
	}

	params, err := r.router.CreateTransport(ctx, peer, dir)
	if err != nil {
		return domain.TransportParams{}, fmt.Errorf("create transport: %w", err)
	}

	err = r.commit(func() error {
		pe, ok := r.peers[peer]
		if !ok {
			return domain.ErrPeerNotJoined
		}
		r.transports[params.ID] = &transportEntry{peer: peer, dir: dir}
		pe.transports[params.ID] = struct{}{}
		r.logger.Debug().Str("peer", string(peer)).Str("transport", string(params.ID)).Str("direction", string(dir)).Msg("transport created")
		return nil
	}, func() {
		_ = r.router.CloseTransport(params.ID)
	})
	if err != nil {
		return domain.TransportParams{}, err
	}
	return params, nil
}

func (r *Room) ConnectTransport(ctx context.Context, peer domain.PeerID, id domain.TransportID, params domain.ConnectParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	err := r.do(ctx, func() error {
		if _, ok := r.peers[peer]; !ok {
			return domain.ErrPeerNotJoined
		}
		_, err := r.ownTransportLocked(peer, id)
		return err
	})
	if err != nil {
		return err
	}

	if err := r.router.ConnectTransport(ctx, id, params); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}

	return r.do(context.Background(), func() error {
		t, err := r.ownTransportLocked(peer, id)
		if err != nil {
			return err
		}
		t.connected = true
		return nil
	})
}

// Produce creates a producer on one of the peer's send transports,
// registers it with the pipeline and announces it to everyone else.
func (r *Room) Produce(ctx context.Context, peer domain.PeerID, transport domain.TransportID, kind domain.MediaKind, params domain.RTPParameters) (domain.ProducerID, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidPayload, kind)
	}
	err := r.do(ctx, func() error {
		pe, ok := r.peers[peer]
		if !ok {
			return domain.ErrPeerNotJoined
		}
		if !pe.session.Peer().CanProduce() {
			return domain.ErrViewerCannotProduce
		}
		t, err := r.ownTransportLocked(peer, transport)
		if err != nil {
			return err
		}
		if t.dir != domain.DirectionSend {
			return domain.ErrWrongDirection
		}
		if _, ok := pe.producers[kind]; ok || pe.pending[kind] {
			return domain.ErrDuplicateProducer
		}
		if err := params.Validate(kind); err != nil {
			return err
		}
		if !r.router.Capabilities().Supports(params.Codec) {
			return fmt.Errorf("%w: codec %s", domain.ErrIncompatibleMedia, params.Codec.Name())
		}
		pe.pending[kind] = true
		return nil
	})
	if err != nil {
		return "", err
	}

	id, err := r.router.Produce(ctx, transport, kind, params)
	if err != nil {
		_ = r.do(context.Background(), func() error {
			if pe, ok := r.peers[peer]; ok {
				delete(pe.pending, kind)
			}
			return nil
		})
		return "", fmt.Errorf("produce: %w", err)
	}

	err = r.commit(func() error {
		pe, ok := r.peers[peer]
		if !ok {
			return domain.ErrPeerNotJoined
		}
		delete(pe.pending, kind)
		if _, err := r.ownTransportLocked(peer, transport); err != nil {
			return err
		}
		r.producers[id] = &producerEntry{
			peer:      peer,
			transport: transport,
			kind:      kind,
			params:    params,
			consumers: make(map[domain.ConsumerID]struct{}),
		}
		pe.producers[kind] = id
		r.logger.Info().Str("peer", string(peer)).Str("producer", string(id)).Str("kind", string(kind)).Msg("producer created")

		r.pipeline.AddSource(rebroadcast.Source{PeerID: peer, ProducerID: id, Kind: kind, Codec: params.Codec})
		r.broadcast(peer, core.NewEvent(core.EventNewSource, domain.ProducerInfo{ID: id, PeerID: peer, Kind: kind}))
		return nil
	}, func() {
		_ = r.router.CloseProducer(id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Consume creates a paused consumer of producer on one of the peer's receive
// transports. caps are the capabilities the consuming client declared.
func (r *Room) Consume(ctx context.Context, peer domain.PeerID, transport domain.TransportID, producer domain.ProducerID, caps domain.RTPCapabilities) (domain.ConsumerInfo, error) {
	err := r.do(ctx, func() error {
		if _, ok := r.peers[peer]; !ok {
			return domain.ErrPeerNotJoined
		}
		t, err := r.ownTransportLocked(peer, transport)
		if err != nil {
			return err
		}
		if t.dir != domain.DirectionRecv {
			return domain.ErrWrongDirection
		}
		if _, ok := r.producers[producer]; !ok {
			return domain.ErrProducerNotFound
		}
		if !r.router.CanConsume(producer, caps) {
			return domain.ErrIncompatibleMedia
		}
		return nil
	})
	if err != nil {
		return domain.ConsumerInfo{}, err
	}

	info, err := r.router.Consume(ctx, transport, producer, caps)
	if err != nil {
		return domain.ConsumerInfo{}, fmt.Errorf("consume: %w", err)
	}

	err = r.commit(func() error {
		pe, ok := r.peers[peer]
		if !ok {
			return domain.ErrPeerNotJoined
		}
		if _, err := r.ownTransportLocked(peer, transport); err != nil {
			return err
		}
		pr, ok := r.producers[producer]
		if !ok {
			return domain.ErrProducerNotFound
		}
		r.consumers[info.ID] = &consumerEntry{peer: peer, transport: transport, producer: producer, paused: info.Paused}
		pr.consumers[info.ID] = struct{}{}
		pe.consumers[info.ID] = struct{}{}
		r.logger.Debug().Str("peer", string(peer)).Str("consumer", string(info.ID)).Str("producer", string(producer)).Msg("consumer created")
		return nil
	}, func() {
		_ = r.router.CloseConsumer(info.ID)
	})
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	return info, nil
}

func (r *Room) ResumeConsumer(ctx context.Context, peer domain.PeerID, id domain.ConsumerID) error {
	owned := func() (*consumerEntry, error) {
		if _, ok := r.peers[peer]; !ok {
			return nil, domain.ErrPeerNotJoined
		}
		c, ok := r.consumers[id]
		if !ok || c.peer != peer {
			return nil, domain.ErrConsumerNotFound
		}
		return c, nil
	}
	err := r.do(ctx, func() error {
		_, err := owned()
		return err
	})
	if err != nil {
		return err
	}

	if err := r.router.ResumeConsumer(ctx, id); err != nil {
		return fmt.Errorf("resume consumer: %w", err)
	}

	return r.do(context.Background(), func() error {
		c, err := owned()
		if err != nil {
			return err
		}
		c.paused = false
		return nil
	})
}

// Stats returns a snapshot of the room's counters.
func (r *Room) Stats(ctx context.Context) (domain.RoomStats, error) {
	var st domain.RoomStats
	err := r.do(ctx, func() error {
		st = domain.RoomStats{
			RoomID:            r.id,
			PeerCount:         len(r.peers),
			TransportCount:    len(r.transports),
			ProducerCount:     len(r.producers),
			ConsumerCount:     len(r.consumers),
			RebroadcastActive: r.pipeline.Active(),
		}
		return nil
	})
	return st, err
}

// StreamURL returns the playable stream path while the rebroadcast is active.
func (r *Room) StreamURL() (string, error) {
	return r.pipeline.StreamURL()
}

// Peers returns the ids of the current members.
func (r *Room) Peers(ctx context.Context) ([]domain.PeerID, error) {
	var ids []domain.PeerID
	err := r.do(ctx, func() error {
		ids = slices.Sorted(maps.Keys(r.peers))
		return nil
	})
	return ids, err
}

// shutdown disconnects every member and destroys the room.
func (r *Room) shutdown(ctx context.Context) error {
	return r.do(ctx, func() error {
		for _, pe := range r.peers {
			pe.session.Signal().Close()
		}
		r.destroyLocked()
		return nil
	})
}
