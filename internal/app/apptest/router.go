package apptest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/rtp"
)

var (
	VP8  = domain.RTPCodec{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96}
	H264 = domain.RTPCodec{Kind: domain.KindVideo, MimeType: "video/H264", ClockRate: 90000, PayloadType: 102,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f"}
	Opus = domain.RTPCodec{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111,
		SDPFmtpLine: "minptime=10;useinbandfec=1"}
)

// DefaultCodecs is what fake routers advertise unless told otherwise.
func DefaultCodecs() []domain.RTPCodec { return []domain.RTPCodec{VP8, H264, Opus} }

// FakeRouterFactory hands out FakeRouters and remembers them per room.
type FakeRouterFactory struct {
	Codecs []domain.RTPCodec

	// BeforeNew runs at the start of every NewRouter call.
	BeforeNew func(room domain.RoomID)

	mu      sync.Mutex
	routers map[domain.RoomID][]*FakeRouter
	err     error
	created atomic.Int32
}

func NewFakeRouterFactory() *FakeRouterFactory {
	return &FakeRouterFactory{
		Codecs:  DefaultCodecs(),
		routers: make(map[domain.RoomID][]*FakeRouter),
	}
}

// FailWith makes every NewRouter call fail.
func (f *FakeRouterFactory) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeRouterFactory) NewRouter(_ context.Context, room domain.RoomID) (core.MediaRouter, error) {
	if f.BeforeNew != nil {
		f.BeforeNew(room)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := NewFakeRouter(f.Codecs...)
	f.routers[room] = append(f.routers[room], r)
	f.created.Add(1)
	return r, nil
}

// Router returns the most recent router created for room.
func (f *FakeRouterFactory) Router(room domain.RoomID) *FakeRouter {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.routers[room]
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}

func (f *FakeRouterFactory) Created() int { return int(f.created.Load()) }

type fakeTransport struct {
	peer      domain.PeerID
	dir       domain.Direction
	connected bool
}

type fakeProducer struct {
	transport domain.TransportID
	kind      domain.MediaKind
	params    domain.RTPParameters
	sinks     map[int]core.PacketSink
}

type fakeConsumer struct {
	transport domain.TransportID
	producer  domain.ProducerID
	paused    bool
}

// FakeRouter is an in-memory core.MediaRouter.
type FakeRouter struct {
	caps domain.RTPCapabilities

	// Hooks run before the call takes effect; tests use them to interleave
	// room mutations with in-flight router calls.
	BeforeCreateTransport func()
	BeforeProduce         func()
	BeforeConsume         func()

	mu         sync.Mutex
	transports map[domain.TransportID]*fakeTransport
	producers  map[domain.ProducerID]*fakeProducer
	consumers  map[domain.ConsumerID]*fakeConsumer
	keyframes  map[domain.ProducerID]int
	nextSink   int
	ssrc       uint32
	closed     bool
}

func NewFakeRouter(codecs ...domain.RTPCodec) *FakeRouter {
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	return &FakeRouter{
		caps:       domain.RTPCapabilities{Codecs: codecs},
		transports: make(map[domain.TransportID]*fakeTransport),
		producers:  make(map[domain.ProducerID]*fakeProducer),
		consumers:  make(map[domain.ConsumerID]*fakeConsumer),
		keyframes:  make(map[domain.ProducerID]int),
		ssrc:       5000,
	}
}

func (r *FakeRouter) Capabilities() domain.RTPCapabilities { return r.caps }

func (r *FakeRouter) CreateTransport(_ context.Context, peer domain.PeerID, dir domain.Direction) (domain.TransportParams, error) {
	if r.BeforeCreateTransport != nil {
		r.BeforeCreateTransport()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.TransportParams{}, fmt.Errorf("router closed")
	}
	id := domain.NewTransportID()
	r.transports[id] = &fakeTransport{peer: peer, dir: dir}
	return domain.TransportParams{
		ID:            id,
		Direction:     dir,
		ICEParameters: domain.ICEParameters{UsernameFragment: "ufrag", Password: "pwd", ICELite: true},
		ICECandidates: []domain.ICECandidate{{
			Foundation: "1", Priority: 1, Address: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host",
		}},
		DTLSParameters: domain.DTLSParameters{
			Role:         "auto",
			Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
		},
	}, nil
}

func (r *FakeRouter) ConnectTransport(_ context.Context, id domain.TransportID, _ domain.ConnectParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[id]
	if !ok {
		return domain.ErrTransportNotFound
	}
	t.connected = true
	return nil
}

func (r *FakeRouter) CloseTransport(id domain.TransportID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transports[id]; !ok {
		return domain.ErrTransportNotFound
	}
	delete(r.transports, id)
	return nil
}

func (r *FakeRouter) Produce(_ context.Context, transport domain.TransportID, kind domain.MediaKind, params domain.RTPParameters) (domain.ProducerID, error) {
	if r.BeforeProduce != nil {
		r.BeforeProduce()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[transport]
	if !ok {
		return "", domain.ErrTransportNotFound
	}
	if t.dir != domain.DirectionSend {
		return "", domain.ErrWrongDirection
	}
	if !r.caps.Supports(params.Codec) {
		return "", domain.ErrIncompatibleMedia
	}
	id := domain.NewProducerID()
	r.producers[id] = &fakeProducer{transport: transport, kind: kind, params: params, sinks: make(map[int]core.PacketSink)}
	return id, nil
}

func (r *FakeRouter) CloseProducer(id domain.ProducerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.producers[id]; !ok {
		return domain.ErrProducerNotFound
	}
	delete(r.producers, id)
	return nil
}

func (r *FakeRouter) CanConsume(producer domain.ProducerID, caps domain.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producer]
	return ok && caps.Supports(p.params.Codec)
}

func (r *FakeRouter) Consume(_ context.Context, transport domain.TransportID, producer domain.ProducerID, caps domain.RTPCapabilities) (domain.ConsumerInfo, error) {
	if r.BeforeConsume != nil {
		r.BeforeConsume()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[transport]
	if !ok {
		return domain.ConsumerInfo{}, domain.ErrTransportNotFound
	}
	if t.dir != domain.DirectionRecv {
		return domain.ConsumerInfo{}, domain.ErrWrongDirection
	}
	p, ok := r.producers[producer]
	if !ok {
		return domain.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	codec, ok := caps.Find(p.params.Codec)
	if !ok {
		return domain.ConsumerInfo{}, domain.ErrIncompatibleMedia
	}
	id := domain.NewConsumerID()
	r.consumers[id] = &fakeConsumer{transport: transport, producer: producer, paused: true}
	r.ssrc++
	return domain.ConsumerInfo{
		ID:            id,
		ProducerID:    producer,
		Kind:          p.kind,
		RTPParameters: domain.RTPParameters{Codec: codec, SSRC: r.ssrc},
		Paused:        true,
	}, nil
}

func (r *FakeRouter) ResumeConsumer(_ context.Context, id domain.ConsumerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[id]
	if !ok {
		return domain.ErrConsumerNotFound
	}
	c.paused = false
	return nil
}

func (r *FakeRouter) CloseConsumer(id domain.ConsumerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consumers[id]; !ok {
		return domain.ErrConsumerNotFound
	}
	delete(r.consumers, id)
	return nil
}

func (r *FakeRouter) AttachSink(producer domain.ProducerID, sink core.PacketSink) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producer]
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	r.nextSink++
	key := r.nextSink
	p.sinks[key] = sink
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(p.sinks, key)
	}, nil
}

func (r *FakeRouter) RequestKeyFrame(producer domain.ProducerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.producers[producer]; !ok {
		return domain.ErrProducerNotFound
	}
	r.keyframes[producer]++
	return nil
}

func (r *FakeRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.transports)
	clear(r.producers)
	clear(r.consumers)
	return nil
}

// Emit pushes pkt to every sink attached to producer.
func (r *FakeRouter) Emit(producer domain.ProducerID, pkt *rtp.Packet) int {
	r.mu.Lock()
	var sinks []core.PacketSink
	if p, ok := r.producers[producer]; ok {
		for _, s := range p.sinks {
			sinks = append(sinks, s)
		}
	}
	r.mu.Unlock()
	for _, s := range sinks {
		_ = s.WriteRTP(pkt)
	}
	return len(sinks)
}

func (r *FakeRouter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *FakeRouter) Sinks(producer domain.ProducerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.producers[producer]; ok {
		return len(p.sinks)
	}
	return 0
}

func (r *FakeRouter) KeyFrames(producer domain.ProducerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyframes[producer]
}

// Counts returns the number of live transports, producers and consumers.
func (r *FakeRouter) Counts() (transports, producers, consumers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transports), len(r.producers), len(r.consumers)
}

func (r *FakeRouter) Paused(id domain.ConsumerID) (paused, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, found := r.consumers[id]
	if !found {
		return false, false
	}
	return c.paused, true
}

// Params returns producer parameters suitable for a Produce call of kind.
func Params(kind domain.MediaKind, ssrc uint32) domain.RTPParameters {
	if kind == domain.KindAudio {
		return domain.RTPParameters{Codec: Opus, SSRC: ssrc}
	}
	return domain.RTPParameters{Codec: VP8, SSRC: ssrc}
}
