package domain

import (
	"fmt"
	"strings"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool { return k == KindAudio || k == KindVideo }

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool { return d == DirectionSend || d == DirectionRecv }

// RTPCodec describes one encoding the router or a peer can handle.
type RTPCodec struct {
	Kind        MediaKind `json:"kind"`
	MimeType    string    `json:"mimeType"`
	ClockRate   uint32    `json:"clockRate"`
	Channels    uint16    `json:"channels,omitempty"`
	PayloadType uint8     `json:"preferredPayloadType"`
	SDPFmtpLine string    `json:"sdpFmtpLine,omitempty"`
}

// Name returns the encoding name, e.g. "VP8" for "video/VP8".
func (c RTPCodec) Name() string {
	if i := strings.IndexByte(c.MimeType, '/'); i >= 0 {
		return c.MimeType[i+1:]
	}
	return c.MimeType
}

// Matches reports whether two codec descriptions denote the same encoding.
// Payload types are negotiated per direction and are not compared.
func (c RTPCodec) Matches(o RTPCodec) bool {
	if !strings.EqualFold(c.MimeType, o.MimeType) || c.ClockRate != o.ClockRate {
		return false
	}
	if c.Kind == KindAudio || o.Kind == KindAudio {
		return normChannels(c.Channels) == normChannels(o.Channels)
	}
	return true
}

func normChannels(ch uint16) uint16 {
	if ch == 0 {
		return 1
	}
	return ch
}

// RTPCapabilities is the set of codecs an endpoint can receive.
type RTPCapabilities struct {
	Codecs []RTPCodec `json:"codecs"`
}

// Find returns the first capability codec matching c.
func (rc RTPCapabilities) Find(c RTPCodec) (RTPCodec, bool) {
	for _, cc := range rc.Codecs {
		if cc.Matches(c) {
			return cc, true
		}
	}
	return RTPCodec{}, false
}

func (rc RTPCapabilities) Supports(c RTPCodec) bool {
	_, ok := rc.Find(c)
	return ok
}

// RTPParameters are the negotiated parameters of a single RTP stream.
type RTPParameters struct {
	Codec RTPCodec `json:"codec"`
	SSRC  uint32   `json:"ssrc"`
	MID   string   `json:"mid,omitempty"`
}

// Validate checks the parameters a client declared for a producer of the given kind.
func (p RTPParameters) Validate(kind MediaKind) error {
	if p.Codec.MimeType == "" {
		return fmt.Errorf("%w: codec mimeType is required", ErrInvalidPayload)
	}
	if !strings.HasPrefix(strings.ToLower(p.Codec.MimeType), string(kind)+"/") {
		return fmt.Errorf("%w: codec %s does not carry %s", ErrInvalidPayload, p.Codec.MimeType, kind)
	}
	if p.Codec.ClockRate == 0 {
		return fmt.Errorf("%w: codec clockRate is required", ErrInvalidPayload)
	}
	if p.Codec.PayloadType == 0 {
		return fmt.Errorf("%w: payload type is required", ErrInvalidPayload)
	}
	if p.SSRC == 0 {
		return fmt.Errorf("%w: ssrc is required", ErrInvalidPayload)
	}
	return nil
}

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportParams is what a client needs to negotiate against a router transport.
type TransportParams struct {
	ID             TransportID    `json:"transportId"`
	Direction      Direction      `json:"direction"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

// ConnectParams are the remote side's negotiation parameters.
type ConnectParams struct {
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

func (p ConnectParams) Validate() error {
	if p.ICEParameters.UsernameFragment == "" || p.ICEParameters.Password == "" {
		return fmt.Errorf("%w: ice parameters are required", ErrInvalidPayload)
	}
	if len(p.DTLSParameters.Fingerprints) == 0 {
		return fmt.Errorf("%w: dtls fingerprints are required", ErrInvalidPayload)
	}
	return nil
}

// ConsumerInfo is returned to the consuming peer.
type ConsumerInfo struct {
	ID            ConsumerID    `json:"consumerId"`
	ProducerID    ProducerID    `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RTPParameters RTPParameters `json:"rtpParameters"`
	Paused        bool          `json:"paused"`
}

// ProducerInfo is the public view of a producer announced to room members.
type ProducerInfo struct {
	ID     ProducerID `json:"producerId"`
	PeerID PeerID     `json:"peerId"`
	Kind   MediaKind  `json:"kind"`
}
