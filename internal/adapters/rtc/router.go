package rtc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type producer struct {
	id        domain.ProducerID
	transport *transport
	kind      domain.MediaKind
	codec     domain.RTPCodec
	ssrc      uint32
	receiver  *webrtc.RTPReceiver
	relay     *Relay
}

type consumer struct {
	id        domain.ConsumerID
	producer  *producer
	transport *transport
	sender    *webrtc.RTPSender
	out       *OutTrack
	cancel    context.CancelFunc
}

// Router is the pion-backed MediaRouter of one room.
type Router struct {
	api    *webrtc.API
	cfg    Config
	caps   domain.RTPCapabilities
	room   domain.RoomID
	logger zerolog.Logger

	mu         sync.Mutex
	transports map[domain.TransportID]*transport
	producers  map[domain.ProducerID]*producer
	consumers  map[domain.ConsumerID]*consumer
	nextSink   atomic.Uint64
	nextMID    atomic.Uint64
	closed     bool
}

func newRouter(api *webrtc.API, cfg Config, caps domain.RTPCapabilities, room domain.RoomID) *Router {
	return &Router{
		api:        api,
		cfg:        cfg,
		caps:       caps,
		room:       room,
		logger:     log.With().Str("module", "rtc").Str("room", string(room)).Logger(),
		transports: make(map[domain.TransportID]*transport),
		producers:  make(map[domain.ProducerID]*producer),
		consumers:  make(map[domain.ConsumerID]*consumer),
	}
}

func (r *Router) Capabilities() domain.RTPCapabilities { return r.caps }

func (r *Router) CreateTransport(ctx context.Context, peer domain.PeerID, dir domain.Direction) (domain.TransportParams, error) {
	t, err := newTransport(ctx, r.api, r.cfg, peer, dir)
	if err != nil {
		return domain.TransportParams{}, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.close()
		return domain.TransportParams{}, domain.ErrRoomClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()
	return t.local, nil
}

func (r *Router) transport(id domain.TransportID) (*transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[id]
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	return t, nil
}

func (r *Router) ConnectTransport(_ context.Context, id domain.TransportID, params domain.ConnectParams) error {
	t, err := r.transport(id)
	if err != nil {
		return err
	}
	return t.connect(params)
}

func (r *Router) CloseTransport(id domain.TransportID) error {
	r.mu.Lock()
	t, ok := r.transports[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrTransportNotFound
	}
	delete(r.transports, id)
	var producers []*producer
	for pid, p := range r.producers {
		if p.transport == t {
			producers = append(producers, p)
			delete(r.producers, pid)
		}
	}
	var consumers []*consumer
	for cid, c := range r.consumers {
		if c.transport == t || c.producer.transport == t {
			consumers = append(consumers, c)
			delete(r.consumers, cid)
		}
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.stop()
	}
	for _, p := range producers {
		p.stop()
	}
	t.close()
	return nil
}

// routerCodec returns the registered codec matching c, including its payload type.
func (r *Router) routerCodec(c domain.RTPCodec) (domain.RTPCodec, bool) {
	rc, ok := r.caps.Find(c)
	if !ok || rc.PayloadType != c.PayloadType {
		return domain.RTPCodec{}, false
	}
	return rc, true
}

// Produce binds an RTP receiver to the client's declared SSRC. The
// declared payload type must be the one advertised in Capabilities.
func (r *Router) Produce(_ context.Context, transportID domain.TransportID, kind domain.MediaKind, params domain.RTPParameters) (domain.ProducerID, error) {
	t, err := r.transport(transportID)
	if err != nil {
		return "", err
	}
	if t.dir != domain.DirectionSend {
		return "", domain.ErrWrongDirection
	}
	codec, ok := r.routerCodec(params.Codec)
	if !ok {
		return "", fmt.Errorf("%w: %s/%d", domain.ErrIncompatibleMedia, params.Codec.MimeType, params.Codec.PayloadType)
	}

	receiver, err := r.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return "", fmt.Errorf("rtp receiver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &producer{
		id:        domain.NewProducerID(),
		transport: t,
		kind:      kind,
		codec:     codec,
		ssrc:      params.SSRC,
		receiver:  receiver,
		relay:     NewRelay(cancel),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return "", domain.ErrRoomClosed
	}
	r.producers[p.id] = p
	r.mu.Unlock()

	go r.receive(ctx, p)

	r.logger.Info().Str("producer", string(p.id)).Str("kind", string(kind)).Str("codec", codec.Name()).Uint32("ssrc", p.ssrc).Msg("producer created")
	return p.id, nil
}

// receive starts the receiver once DTLS is up and runs the relay loop.
func (r *Router) receive(ctx context.Context, p *producer) {
	logger := r.logger.With().Str("producer", string(p.id)).Logger()
	if err := p.transport.waitReady(ctx); err != nil {
		close(p.relay.done)
		return
	}
	err := p.receiver.Receive(webrtc.RTPReceiveParameters{Encodings: []webrtc.RTPDecodingParameters{{
		RTPCodingParameters: webrtc.RTPCodingParameters{
			SSRC:        webrtc.SSRC(p.ssrc),
			PayloadType: webrtc.PayloadType(p.codec.PayloadType),
		},
	}}})
	if err != nil {
		logger.Error().Err(err).Msg("receiver start failed")
		close(p.relay.done)
		return
	}
	logger.Debug().Msg("receiving")
	p.relay.loop(ctx, p.receiver.Track(), &logger)
}

func (p *producer) stop() {
	p.relay.Stop()
	if err := p.receiver.Stop(); err != nil {
		log.Debug().Str("module", "rtc").Str("producer", string(p.id)).Err(err).Msg("receiver stop")
	}
}

func (r *Router) CloseProducer(id domain.ProducerID) error {
	r.mu.Lock()
	p, ok := r.producers[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrProducerNotFound
	}
	delete(r.producers, id)
	var consumers []*consumer
	for cid, c := range r.consumers {
		if c.producer == p {
			consumers = append(consumers, c)
			delete(r.consumers, cid)
		}
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.stop()
	}
	p.stop()
	r.logger.Info().Str("producer", string(id)).Msg("producer closed")
	return nil
}

func (r *Router) CanConsume(producerID domain.ProducerID, caps domain.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	return ok && caps.Supports(p.codec)
}

// Consume creates a paused local track fed by the producer's relay and
// sends it on the receive transport once DTLS is up.
func (r *Router) Consume(_ context.Context, transportID domain.TransportID, producerID domain.ProducerID, caps domain.RTPCapabilities) (domain.ConsumerInfo, error) {
	t, err := r.transport(transportID)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	if t.dir != domain.DirectionRecv {
		return domain.ConsumerInfo{}, domain.ErrWrongDirection
	}
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return domain.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	if !caps.Supports(p.codec) {
		return domain.ConsumerInfo{}, domain.ErrIncompatibleMedia
	}

	id := domain.NewConsumerID()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:    p.codec.MimeType,
		ClockRate:   p.codec.ClockRate,
		Channels:    p.codec.Channels,
		SDPFmtpLine: p.codec.SDPFmtpLine,
	}, string(id), string(producerID))
	if err != nil {
		return domain.ConsumerInfo{}, fmt.Errorf("local track: %w", err)
	}
	sender, err := r.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return domain.ConsumerInfo{}, fmt.Errorf("rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	var ssrc uint32
	if len(sendParams.Encodings) > 0 {
		ssrc = uint32(sendParams.Encodings[0].SSRC)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &consumer{
		id:        id,
		producer:  p,
		transport: t,
		sender:    sender,
		out:       NewOutTrack(track, TrackStateMuted),
		cancel:    cancel,
	}

	r.mu.Lock()
	if _, ok := r.producers[producerID]; !ok || r.closed {
		r.mu.Unlock()
		cancel()
		_ = sender.Stop()
		return domain.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	r.consumers[id] = c
	r.mu.Unlock()

	p.relay.AddOutTrack(string(id), c.out)
	go r.send(ctx, c, sendParams)

	r.logger.Info().Str("consumer", string(id)).Str("producer", string(producerID)).Msg("consumer created")
	return domain.ConsumerInfo{
		ID:            id,
		ProducerID:    producerID,
		Kind:          p.kind,
		RTPParameters: domain.RTPParameters{Codec: p.codec, SSRC: ssrc, MID: strconv.FormatUint(r.nextMID.Add(1), 10)},
		Paused:        true,
	}, nil
}

// send starts the sender once DTLS is up and turns consumer keyframe
// requests into requests on the producer.
func (r *Router) send(ctx context.Context, c *consumer, params webrtc.RTPSendParameters) {
	if err := c.transport.waitReady(ctx); err != nil {
		return
	}
	if err := c.sender.Send(params); err != nil {
		r.logger.Error().Err(err).Str("consumer", string(c.id)).Msg("sender start failed")
		return
	}
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if err := r.RequestKeyFrame(c.producer.id); err != nil {
					r.logger.Debug().Err(err).Str("producer", string(c.producer.id)).Msg("keyframe relay failed")
				}
			}
		}
	}
}

func (c *consumer) stop() {
	c.out.MarkDelete()
	c.cancel()
	if err := c.sender.Stop(); err != nil {
		log.Debug().Str("module", "rtc").Str("consumer", string(c.id)).Err(err).Msg("sender stop")
	}
}

func (r *Router) consumer(id domain.ConsumerID) (*consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[id]
	if !ok {
		return nil, domain.ErrConsumerNotFound
	}
	return c, nil
}

func (r *Router) ResumeConsumer(_ context.Context, id domain.ConsumerID) error {
	c, err := r.consumer(id)
	if err != nil {
		return err
	}
	c.out.MarkOk()
	if c.producer.kind == domain.KindVideo {
		if err := r.RequestKeyFrame(c.producer.id); err != nil {
			r.logger.Debug().Err(err).Str("consumer", string(id)).Msg("keyframe on resume failed")
		}
	}
	return nil
}

func (r *Router) CloseConsumer(id domain.ConsumerID) error {
	r.mu.Lock()
	c, ok := r.consumers[id]
	if ok {
		delete(r.consumers, id)
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrConsumerNotFound
	}
	c.stop()
	return nil
}

func (r *Router) AttachSink(producerID domain.ProducerID, sink core.PacketSink) (func(), error) {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	key := "sink-" + strconv.FormatUint(r.nextSink.Add(1), 10)
	ot := NewOutTrack(sink, TrackStateOk)
	p.relay.AddOutTrack(key, ot)
	return ot.MarkDelete, nil
}

// RequestKeyFrame sends a PLI for the producer's SSRC on its transport.
func (r *Router) RequestKeyFrame(producerID domain.ProducerID) error {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return domain.ErrProducerNotFound
	}
	if !p.transport.isReady() {
		return errTransportNotReady
	}
	_, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: p.ssrc}})
	return err
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	consumers := r.consumers
	producers := r.producers
	transports := r.transports
	r.consumers = make(map[domain.ConsumerID]*consumer)
	r.producers = make(map[domain.ProducerID]*producer)
	r.transports = make(map[domain.TransportID]*transport)
	r.mu.Unlock()

	for _, c := range consumers {
		c.stop()
	}
	for _, p := range producers {
		p.stop()
	}
	for _, t := range transports {
		t.close()
	}
	r.logger.Info().Int("transports", len(transports)).Msg("router closed")
	return nil
}
