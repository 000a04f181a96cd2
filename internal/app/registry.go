package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var ErrRegistryClosed = errors.New("registry closed")

// Registry maps room ids to live rooms. Rooms are created on first join and
// drop out of the registry when their last peer leaves.
type Registry struct {
	routers   core.RouterFactory
	pipelines *rebroadcast.Factory
	policy    Policy
	publisher core.EventPublisher

	mu       sync.RWMutex
	rooms    map[domain.RoomID]*Room
	draining map[*Room]struct{}
	closed   bool
	create   singleflight.Group
	drain    sync.WaitGroup
}

func NewRegistry(routers core.RouterFactory, pipelines *rebroadcast.Factory, policy Policy, publisher core.EventPublisher) *Registry {
	if policy == nil {
		policy = SimplePolicy{}
	}
	if publisher == nil {
		publisher = core.NoopPublisher{}
	}
	return &Registry{
		routers:   routers,
		pipelines: pipelines,
		policy:    policy,
		publisher: publisher,
		rooms:     make(map[domain.RoomID]*Room),
		draining:  make(map[*Room]struct{}),
	}
}

func (r *Registry) lookup(id domain.RoomID) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Room returns the live room with the given id, if any.
func (r *Registry) Room(id domain.RoomID) (*Room, bool) { return r.lookup(id) }

// GetOrCreateRoom returns the room for id, allocating its router on first
// use. Concurrent callers for the same id share one allocation.
func (r *Registry) GetOrCreateRoom(ctx context.Context, id domain.RoomID) (*Room, error) {
	if _, err := domain.ParseRoomID(string(id)); err != nil {
		return nil, err
	}
	r.mu.RLock()
	room, ok := r.rooms[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return room, nil
	}

	ch := r.create.DoChan(string(id), func() (any, error) {
		if room, ok := r.lookup(id); ok {
			return room, nil
		}
		// The allocation is shared, so one caller giving up must not cancel it.
		router, err := r.routers.NewRouter(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, fmt.Errorf("create router for room %s: %w", id, err)
		}
		room := newRoom(id, router, r.policy, r.publisher, r.forget)
		room.pipeline = r.pipelines.New(id, router, room.pipelineHooks())

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = router.Close()
			return nil, ErrRegistryClosed
		}
		r.rooms[id] = room
		total := len(r.rooms)
		r.mu.Unlock()

		go room.run()
		log.Info().Str("module", "app.registry").Str("room", string(id)).Int("rooms", total).Msg("room created")
		return room, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Room), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddPeer joins the session's peer to the room, creating the room if needed.
// A join that races with the room's destruction is retried on a fresh room.
func (r *Registry) AddPeer(ctx context.Context, id domain.RoomID, ms core.MemberSession) (JoinResult, error) {
	for {
		room, err := r.GetOrCreateRoom(ctx, id)
		if err != nil {
			return JoinResult{}, err
		}
		res, err := room.join(ctx, ms)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, domain.ErrRoomClosed):
			log.Debug().Str("module", "app.registry").Str("room", string(id)).Msg("room closed during join, retrying")
			if ctx.Err() != nil {
				return JoinResult{}, ctx.Err()
			}
			continue
		default:
			room.reapIfEmpty()
			return JoinResult{}, err
		}
	}
}

// RemovePeer removes a peer and everything it owns from its room.
func (r *Registry) RemovePeer(ctx context.Context, id domain.RoomID, peer domain.PeerID) error {
	room, ok := r.lookup(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	err := room.Leave(ctx, peer)
	if errors.Is(err, domain.ErrRoomClosed) {
		return domain.ErrPeerNotJoined
	}
	return err
}

// Stats never creates a room.
func (r *Registry) Stats(ctx context.Context, id domain.RoomID) (domain.RoomStats, error) {
	room, ok := r.lookup(id)
	if !ok {
		return domain.RoomStats{}, domain.ErrRoomNotFound
	}
	st, err := room.Stats(ctx)
	if errors.Is(err, domain.ErrRoomClosed) {
		return domain.RoomStats{}, domain.ErrRoomNotFound
	}
	return st, err
}

// StreamURL returns the playable path of the room's rebroadcast, or
// ErrStreamNotAvailable while there is none. Callers may retry.
func (r *Registry) StreamURL(id domain.RoomID) (string, error) {
	room, ok := r.lookup(id)
	if !ok {
		return "", domain.ErrStreamNotAvailable
	}
	return room.StreamURL()
}

func (r *Registry) snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// List returns every live room ordered by id.
func (r *Registry) List(ctx context.Context) ([]domain.RoomInfo, error) {
	rooms := r.snapshot()
	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		st, err := room.Stats(ctx)
		if errors.Is(err, domain.ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RoomInfo{ID: st.RoomID, PeerCount: st.PeerCount, RebroadcastActive: st.RebroadcastActive})
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// forget runs on the room's actor while it is being destroyed.
func (r *Registry) forget(room *Room) {
	r.mu.Lock()
	if r.rooms[room.id] == room {
		delete(r.rooms, room.id)
	}
	total := len(r.rooms)
	r.draining[room] = struct{}{}
	if r.closed {
		room.pipeline.Shutdown()
	}
	r.drain.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.drain.Done()
		if err := room.pipeline.Wait(context.Background()); err != nil {
			log.Warn().Str("module", "app.registry").Str("room", string(room.id)).Err(err).Msg("pipeline wait")
		}
		r.mu.Lock()
		delete(r.draining, room)
		r.mu.Unlock()
	}()
	log.Info().Str("module", "app.registry").Str("room", string(room.id)).Int("rooms", total).Msg("room removed")
}

// Close disconnects every peer, destroys every room and waits for the
// rebroadcast pipelines to finish cleaning up, bounded by ctx. Pipelines
// skip their artifact retention delay but still wait for the transcoder
// to exit, so ctx should outlast the configured stop grace.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for room := range r.draining {
		room.pipeline.Shutdown()
	}
	r.mu.Unlock()

	for _, room := range r.snapshot() {
		if err := room.shutdown(ctx); err != nil && !errors.Is(err, domain.ErrRoomClosed) {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		r.drain.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "app.registry").Msg("all rooms closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
