package rtc

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dkeye/roomcast/internal/core/mock"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chanReader chan *rtp.Packet

func (c chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-c
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: seq, SSRC: 1}}
}

func TestRelayForwardsByState(t *testing.T) {
	ctrl := gomock.NewController(t)
	live := mock.NewMockPacketSink(ctrl)
	muted := mock.NewMockPacketSink(ctrl)
	gone := mock.NewMockPacketSink(ctrl)

	live.EXPECT().WriteRTP(gomock.Any()).Times(2)

	logger := zerolog.Nop()
	r := NewRelay(nil)
	r.AddOutTrack("live", NewOutTrack(live, TrackStateOk))
	r.AddOutTrack("muted", NewOutTrack(muted, TrackStateMuted))
	r.AddOutTrack("gone", NewOutTrack(gone, TrackStateDelete))

	r.forward(packet(1), &logger)
	_, ok := r.OutTrack("gone")
	assert.False(t, ok, "deleted tracks are swept on the next packet")

	r.forward(packet(2), &logger)
	_, ok = r.OutTrack("muted")
	assert.True(t, ok)
}

func TestRelayDropsFailingSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	bad := mock.NewMockPacketSink(ctrl)
	bad.EXPECT().WriteRTP(gomock.Any()).Return(errors.New("closed")).Times(1)

	logger := zerolog.Nop()
	r := NewRelay(nil)
	ot := NewOutTrack(bad, TrackStateOk)
	r.AddOutTrack("bad", ot)

	r.forward(packet(1), &logger)
	r.forward(packet(2), &logger)

	assert.Equal(t, TrackStateDelete, ot.GetState())
	_, ok := r.OutTrack("bad")
	assert.False(t, ok)
}

func TestRelayLoopEndsWithSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock.NewMockPacketSink(ctrl)
	sink.EXPECT().WriteRTP(gomock.Any()).Times(3)

	src := make(chanReader, 3)
	for i := range 3 {
		src <- packet(uint16(i))
	}
	close(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()
	r := NewRelay(cancel)
	ot := NewOutTrack(sink, TrackStateOk)
	r.AddOutTrack("sink", ot)

	go r.loop(ctx, src, &logger)
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop did not stop")
	}
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelayStopMarksTracks(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock.NewMockPacketSink(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRelay(cancel)
	ot := NewOutTrack(sink, TrackStateMuted)
	r.AddOutTrack("c1", ot)

	r.Stop()
	require.Error(t, ctx.Err())
	assert.Equal(t, TrackStateDelete, ot.GetState())
}
