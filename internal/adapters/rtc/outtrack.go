package rtc

import (
	"sync/atomic"

	"github.com/dkeye/roomcast/internal/core"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one outgoing copy of a producer: a consumer's local track or
// a pipeline sink.
type OutTrack struct {
	Track core.PacketSink
	state atomic.Int32
}

func NewOutTrack(track core.PacketSink, state TrackState) *OutTrack {
	ot := &OutTrack{Track: track}
	ot.state.Store(int32(state))
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.Store(int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.Store(int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
