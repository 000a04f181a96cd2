package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/roomcast/internal/core/mock"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	f, err := NewFactory(Config{GatherTimeout: 2 * time.Second})
	require.NoError(t, err)
	mr, err := f.NewRouter(context.Background(), "room-1")
	require.NoError(t, err)
	r := mr.(*Router)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func findCodec(t *testing.T, mime string) domain.RTPCodec {
	t.Helper()
	for _, c := range Capabilities().Codecs {
		if c.MimeType == mime {
			return c
		}
	}
	t.Fatalf("codec %s not registered", mime)
	return domain.RTPCodec{}
}

func TestCapabilitiesMirrorRegisteredCodecs(t *testing.T) {
	caps := Capabilities()
	require.Len(t, caps.Codecs, len(Codecs))

	opus := findCodec(t, webrtc.MimeTypeOpus)
	assert.Equal(t, domain.KindAudio, opus.Kind)
	assert.Equal(t, uint8(111), opus.PayloadType)
	assert.Equal(t, uint16(2), opus.Channels)

	vp8 := findCodec(t, webrtc.MimeTypeVP8)
	assert.Equal(t, domain.KindVideo, vp8.Kind)
	assert.Equal(t, uint8(96), vp8.PayloadType)
}

func TestDTLSRoundTrip(t *testing.T) {
	in := domain.DTLSParameters{
		Role:         "client",
		Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
	}
	p, err := toPionDTLS(in)
	require.NoError(t, err)
	assert.Equal(t, webrtc.DTLSRoleClient, p.Role)
	assert.Equal(t, in, toDomainDTLS(p))

	p, err = toPionDTLS(domain.DTLSParameters{})
	require.NoError(t, err)
	assert.Equal(t, webrtc.DTLSRoleAuto, p.Role)

	_, err = toPionDTLS(domain.DTLSParameters{Role: "boss"})
	assert.Error(t, err)
}

func TestCandidateConversion(t *testing.T) {
	in := []domain.ICECandidate{{Foundation: "1", Priority: 2130706431, Address: "10.0.0.5", Protocol: "udp", Port: 40000, Type: "host"}}
	out, err := toPionCandidates(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, webrtc.ICEProtocolUDP, out[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, out[0].Typ)
	assert.Equal(t, in, toDomainCandidates(out))

	_, err = toPionCandidates([]domain.ICECandidate{{Protocol: "sctp", Type: "host"}})
	assert.Error(t, err)
	_, err = toPionCandidates([]domain.ICECandidate{{Protocol: "udp", Type: "nope"}})
	assert.Error(t, err)
}

func TestCreateTransportGathers(t *testing.T) {
	r := testRouter(t)
	params, err := r.CreateTransport(context.Background(), "p1", domain.DirectionSend)
	require.NoError(t, err)

	assert.NotEmpty(t, params.ID)
	assert.Equal(t, domain.DirectionSend, params.Direction)
	assert.NotEmpty(t, params.ICEParameters.UsernameFragment)
	assert.NotEmpty(t, params.ICEParameters.Password)
	assert.NotEmpty(t, params.DTLSParameters.Fingerprints)

	require.NoError(t, r.CloseTransport(params.ID))
	assert.ErrorIs(t, r.CloseTransport(params.ID), domain.ErrTransportNotFound)
}

func TestConnectTransportRejectsBadParams(t *testing.T) {
	r := testRouter(t)
	params, err := r.CreateTransport(context.Background(), "p1", domain.DirectionRecv)
	require.NoError(t, err)

	err = r.ConnectTransport(context.Background(), params.ID, domain.ConnectParams{
		ICEParameters:  domain.ICEParameters{UsernameFragment: "u", Password: "p"},
		DTLSParameters: domain.DTLSParameters{Role: "boss"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	err = r.ConnectTransport(context.Background(), "missing", domain.ConnectParams{})
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)
}

func TestProduceChecks(t *testing.T) {
	r := testRouter(t)
	ctx := context.Background()
	send, err := r.CreateTransport(ctx, "p1", domain.DirectionSend)
	require.NoError(t, err)
	recv, err := r.CreateTransport(ctx, "p1", domain.DirectionRecv)
	require.NoError(t, err)

	vp8 := findCodec(t, webrtc.MimeTypeVP8)
	params := domain.RTPParameters{Codec: vp8, SSRC: 1111}

	_, err = r.Produce(ctx, "missing", domain.KindVideo, params)
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)

	_, err = r.Produce(ctx, recv.ID, domain.KindVideo, params)
	assert.ErrorIs(t, err, domain.ErrWrongDirection)

	wrongPT := params
	wrongPT.Codec.PayloadType = 120
	_, err = r.Produce(ctx, send.ID, domain.KindVideo, wrongPT)
	assert.ErrorIs(t, err, domain.ErrIncompatibleMedia)

	av1 := params
	av1.Codec.MimeType = "video/AV1"
	_, err = r.Produce(ctx, send.ID, domain.KindVideo, av1)
	assert.ErrorIs(t, err, domain.ErrIncompatibleMedia)

	id, err := r.Produce(ctx, send.ID, domain.KindVideo, params)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.ErrorIs(t, r.RequestKeyFrame(id), errTransportNotReady)
}

func TestConsumeLifecycle(t *testing.T) {
	r := testRouter(t)
	ctx := context.Background()
	send, err := r.CreateTransport(ctx, "p1", domain.DirectionSend)
	require.NoError(t, err)
	recv, err := r.CreateTransport(ctx, "p2", domain.DirectionRecv)
	require.NoError(t, err)

	opus := findCodec(t, webrtc.MimeTypeOpus)
	pid, err := r.Produce(ctx, send.ID, domain.KindAudio, domain.RTPParameters{Codec: opus, SSRC: 2222})
	require.NoError(t, err)

	videoOnly := domain.RTPCapabilities{Codecs: []domain.RTPCodec{findCodec(t, webrtc.MimeTypeVP8)}}
	assert.False(t, r.CanConsume(pid, videoOnly))
	_, err = r.Consume(ctx, recv.ID, pid, videoOnly)
	assert.ErrorIs(t, err, domain.ErrIncompatibleMedia)

	_, err = r.Consume(ctx, send.ID, pid, Capabilities())
	assert.ErrorIs(t, err, domain.ErrWrongDirection)

	assert.True(t, r.CanConsume(pid, Capabilities()))
	info, err := r.Consume(ctx, recv.ID, pid, Capabilities())
	require.NoError(t, err)
	assert.True(t, info.Paused)
	assert.Equal(t, pid, info.ProducerID)
	assert.Equal(t, domain.KindAudio, info.Kind)
	assert.Equal(t, opus.MimeType, info.RTPParameters.Codec.MimeType)
	assert.NotZero(t, info.RTPParameters.SSRC)

	require.NoError(t, r.ResumeConsumer(ctx, info.ID))

	require.NoError(t, r.CloseProducer(pid))
	assert.ErrorIs(t, r.ResumeConsumer(ctx, info.ID), domain.ErrConsumerNotFound)
	assert.ErrorIs(t, r.CloseConsumer(info.ID), domain.ErrConsumerNotFound)
	assert.ErrorIs(t, r.CloseProducer(pid), domain.ErrProducerNotFound)
}

func TestAttachSink(t *testing.T) {
	r := testRouter(t)
	ctx := context.Background()
	send, err := r.CreateTransport(ctx, "p1", domain.DirectionSend)
	require.NoError(t, err)
	pid, err := r.Produce(ctx, send.ID, domain.KindVideo, domain.RTPParameters{Codec: findCodec(t, webrtc.MimeTypeVP8), SSRC: 3333})
	require.NoError(t, err)

	_, err = r.AttachSink("missing", mock.NewMockPacketSink(gomock.NewController(t)))
	assert.ErrorIs(t, err, domain.ErrProducerNotFound)

	detach, err := r.AttachSink(pid, mock.NewMockPacketSink(gomock.NewController(t)))
	require.NoError(t, err)

	r.mu.Lock()
	p := r.producers[pid]
	r.mu.Unlock()
	ot, ok := p.relay.OutTrack("sink-1")
	require.True(t, ok)
	assert.Equal(t, TrackStateOk, ot.GetState())

	detach()
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestCloseTransportCascades(t *testing.T) {
	r := testRouter(t)
	ctx := context.Background()
	send, err := r.CreateTransport(ctx, "p1", domain.DirectionSend)
	require.NoError(t, err)
	recv, err := r.CreateTransport(ctx, "p2", domain.DirectionRecv)
	require.NoError(t, err)
	pid, err := r.Produce(ctx, send.ID, domain.KindVideo, domain.RTPParameters{Codec: findCodec(t, webrtc.MimeTypeVP8), SSRC: 4444})
	require.NoError(t, err)
	info, err := r.Consume(ctx, recv.ID, pid, Capabilities())
	require.NoError(t, err)

	require.NoError(t, r.CloseTransport(send.ID))
	assert.ErrorIs(t, r.CloseProducer(pid), domain.ErrProducerNotFound)
	assert.ErrorIs(t, r.CloseConsumer(info.ID), domain.ErrConsumerNotFound)
}

func TestClosedRouterRefusesTransports(t *testing.T) {
	r := testRouter(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.CreateTransport(context.Background(), "p1", domain.DirectionSend)
	assert.ErrorIs(t, err, domain.ErrRoomClosed)
}
