package app

import (
	"context"
	"time"

	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

type peerEntry struct {
	session    core.MemberSession
	transports map[domain.TransportID]struct{}
	producers  map[domain.MediaKind]domain.ProducerID
	pending    map[domain.MediaKind]bool
	consumers  map[domain.ConsumerID]struct{}
}

type transportEntry struct {
	peer      domain.PeerID
	dir       domain.Direction
	connected bool
}

type producerEntry struct {
	peer      domain.PeerID
	transport domain.TransportID
	kind      domain.MediaKind
	params    domain.RTPParameters
	consumers map[domain.ConsumerID]struct{}
}

type consumerEntry struct {
	peer      domain.PeerID
	transport domain.TransportID
	producer  domain.ProducerID
	paused    bool
}

// Room owns the state of one room. All state below ops is confined to the
// actor goroutine started by run; other goroutines reach it through do.
type Room struct {
	id        domain.RoomID
	router    core.MediaRouter
	pipeline  *rebroadcast.Pipeline
	policy    Policy
	publisher core.EventPublisher
	onClose   func(*Room)
	logger    zerolog.Logger

	ops  chan func()
	done chan struct{}

	closing    bool
	peers      map[domain.PeerID]*peerEntry
	transports map[domain.TransportID]*transportEntry
	producers  map[domain.ProducerID]*producerEntry
	consumers  map[domain.ConsumerID]*consumerEntry
}

func newRoom(id domain.RoomID, router core.MediaRouter, policy Policy, publisher core.EventPublisher, onClose func(*Room)) *Room {
	return &Room{
		id:         id,
		router:     router,
		policy:     policy,
		publisher:  publisher,
		onClose:    onClose,
		logger:     log.With().Str("module", "app.room").Str("room", string(id)).Logger(),
		ops:        make(chan func()),
		done:       make(chan struct{}),
		peers:      make(map[domain.PeerID]*peerEntry),
		transports: make(map[domain.TransportID]*transportEntry),
		producers:  make(map[domain.ProducerID]*producerEntry),
		consumers:  make(map[domain.ConsumerID]*consumerEntry),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Done is closed once the room has been destroyed.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) run() {
	defer close(r.done)
	for {
		op := <-r.ops
		op()
		if r.closing {
			r.logger.Info().Msg("room actor stopped")
			return
		}
	}
}

// do runs fn on the actor and returns its result. Once fn has been handed
// to the actor it always runs, even if ctx ends meanwhile.
func (r *Room) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	op := func() { errc <- fn() }
	select {
	case r.ops <- op:
	case <-r.done:
		return domain.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// broadcast sends ev to every member except one. Must run on the actor.
func (r *Room) broadcast(except domain.PeerID, ev core.Event) core.PublishResult {
	res := core.PublishResult{}
	frame, err := ev.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("event", ev.Event).Msg("encode event")
		return res
	}
	for id, pe := range r.peers {
		if id == except {
			continue
		}
		if err := pe.session.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, pe.session)
			continue
		}
		res.SendTo++
	}
	r.logger.Debug().
		Str("event", ev.Event).
		Str("from", string(except)).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	r.applyPolicy(res.Dropped)
	return res
}

func (r *Room) sendTo(id domain.PeerID, ev core.Event) {
	pe, ok := r.peers[id]
	if !ok {
		return
	}
	frame, err := ev.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("event", ev.Event).Msg("encode event")
		return
	}
	if err := pe.session.Signal().TrySend(frame); err != nil {
		r.applyPolicy([]core.MemberSession{pe.session})
	}
}

func (r *Room) applyPolicy(dropped []core.MemberSession) {
	for _, ms := range dropped {
		switch r.policy.OnBackPressure(r.id, ms) {
		case KickMember:
			r.logger.Warn().Str("peer", string(ms.Peer().ID)).Msg("kicking slow member")
			// Closing the connection runs the regular disconnect path.
			ms.Signal().Close()
		case MarkSlow:
			r.logger.Warn().Str("peer", string(ms.Peer().ID)).Msg("slow member")
		case DropFrame, NoAction:
		}
	}
}

// publish forwards a lifecycle event out of the process. It never blocks the actor.
func (r *Room) publish(ev core.Event) {
	if r.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, r.id, ev); err != nil {
			r.logger.Warn().Err(err).Str("event", ev.Event).Msg("publish event")
		}
	}()
}

func (r *Room) pipelineHooks() rebroadcast.Hooks {
	return rebroadcast.Hooks{
		OnReady: func(url string) {
			r.notify(core.NewEvent(core.EventStreamReady, core.StreamReadyData{URL: url}))
		},
		OnStopped: func(reason string) {
			r.notify(core.NewEvent(core.EventStreamEnded, core.StreamEndedData{Reason: reason}))
		},
	}
}

// notify broadcasts a pipeline event to the room, if it still exists.
func (r *Room) notify(ev core.Event) {
	r.publish(ev)
	err := r.do(context.Background(), func() error {
		r.broadcast("", ev)
		return nil
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("event", ev.Event).Msg("room gone, event dropped")
	}
}

// removePeerLocked releases everything the peer owns. Must run on the actor.
func (r *Room) removePeerLocked(id domain.PeerID) {
	pe, ok := r.peers[id]
	if !ok {
		return
	}
	r.pipeline.RemovePeer(id)

	for cid := range pe.consumers {
		r.closeConsumerLocked(cid)
	}
	for _, pid := range pe.producers {
		r.closeProducerLocked(pid)
	}
	for tid := range pe.transports {
		if err := r.router.CloseTransport(tid); err != nil {
			r.logger.Debug().Err(err).Str("transport", string(tid)).Msg("close transport")
		}
		delete(r.transports, tid)
	}
	delete(r.peers, id)

	r.logger.Info().Str("peer", string(id)).Int("peers", len(r.peers)).Msg("peer removed")
	r.broadcast(id, core.NewEvent(core.EventPeerLeft, core.PeerLeftData{PeerID: id}))

	if len(r.peers) == 0 {
		r.destroyLocked()
	}
}

// closeProducerLocked closes a producer and every consumer fed by it.
func (r *Room) closeProducerLocked(id domain.ProducerID) {
	pr, ok := r.producers[id]
	if !ok {
		return
	}
	for cid := range pr.consumers {
		if c, ok := r.consumers[cid]; ok && c.peer != pr.peer {
			r.sendTo(c.peer, core.NewEvent(core.EventConsumerClosed, core.ConsumerClosedData{ConsumerID: cid, ProducerID: id}))
		}
		r.closeConsumerLocked(cid)
	}
	r.pipeline.RemoveSource(id)
	if err := r.router.CloseProducer(id); err != nil {
		r.logger.Debug().Err(err).Str("producer", string(id)).Msg("close producer")
	}
	delete(r.producers, id)
	if pe, ok := r.peers[pr.peer]; ok && pe.producers[pr.kind] == id {
		delete(pe.producers, pr.kind)
	}
}

func (r *Room) closeConsumerLocked(id domain.ConsumerID) {
	c, ok := r.consumers[id]
	if !ok {
		return
	}
	if err := r.router.CloseConsumer(id); err != nil {
		r.logger.Debug().Err(err).Str("consumer", string(id)).Msg("close consumer")
	}
	delete(r.consumers, id)
	if pr, ok := r.producers[c.producer]; ok {
		delete(pr.consumers, id)
	}
	if pe, ok := r.peers[c.peer]; ok {
		delete(pe.consumers, id)
	}
}

// destroyLocked tears the room down once it is empty. The pipeline stops
// before the router goes away.
func (r *Room) destroyLocked() {
	r.closing = true
	r.pipeline.Close()
	if err := r.router.Close(); err != nil {
		r.logger.Error().Err(err).Msg("close router")
	}
	if r.onClose != nil {
		r.onClose(r)
	}
	r.publish(core.NewEvent(core.EventRoomClosed, nil))
	r.logger.Info().Msg("room destroyed")
}
