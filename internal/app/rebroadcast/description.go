package rebroadcast

import (
	"fmt"
	"time"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/sdp/v3"
)

const descriptionFile = "input.sdp"

// Stream is one producer mapped to a local RTP port of the transcoder.
type Stream struct {
	Source Source
	Port   int
}

// BuildDescription renders the SDP the transcoder reads its inputs from.
// Media sections follow the order of streams.
func BuildDescription(host string, streams []Stream) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().UnixNano()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "roomcast",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
	}

	for _, s := range streams {
		c := s.Source.Codec
		if c.PayloadType == 0 || c.ClockRate == 0 {
			return nil, fmt.Errorf("%w: producer %s has no negotiated codec", domain.ErrInvalidPayload, s.Source.ProducerID)
		}
		md := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:  string(s.Source.Kind),
				Port:   sdp.RangedPort{Value: s.Port},
				Protos: []string{"RTP", "AVP"},
			},
		}
		md.WithCodec(c.PayloadType, c.Name(), c.ClockRate, channels(c), c.SDPFmtpLine).
			WithPropertyAttribute(sdp.AttrKeyRecvOnly)
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}
	return desc.Marshal()
}

func channels(c domain.RTPCodec) uint16 {
	if c.Kind == domain.KindAudio {
		return c.Channels
	}
	return 0
}
