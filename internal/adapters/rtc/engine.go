// Package rtc implements the media router contract on top of pion's ORTC
// API: one ICE/DTLS stack per transport, RTP receivers for producers and
// static RTP tracks for consumers.
package rtc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers    []string
	UDPPortMin    uint16
	UDPPortMax    uint16
	AnnouncedIPs  []string
	GatherTimeout time.Duration
	PLIInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers:    []string{"stun:stun.l.google.com:19302"},
		GatherTimeout: 5 * time.Second,
		PLIInterval:   3 * time.Second,
	}
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// Codecs is what every router advertises, in preference order.
var Codecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		PayloadType:        111,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: videoFeedback},
		PayloadType:        96,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0", RTCPFeedback: videoFeedback},
		PayloadType:        98,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 102,
	},
}

func kindOf(mime string) domain.MediaKind {
	if strings.HasPrefix(strings.ToLower(mime), "audio/") {
		return domain.KindAudio
	}
	return domain.KindVideo
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func toDomainCodec(c webrtc.RTPCodecParameters) domain.RTPCodec {
	return domain.RTPCodec{
		Kind:        kindOf(c.MimeType),
		MimeType:    c.MimeType,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
		PayloadType: uint8(c.PayloadType),
		SDPFmtpLine: c.SDPFmtpLine,
	}
}

// Capabilities returns the router codecs as domain capabilities.
func Capabilities() domain.RTPCapabilities {
	out := make([]domain.RTPCodec, 0, len(Codecs))
	for _, c := range Codecs {
		out = append(out, toDomainCodec(c))
	}
	return domain.RTPCapabilities{Codecs: out}
}

// Factory owns the process-wide pion API and hands out one Router per room.
type Factory struct {
	api  *webrtc.API
	cfg  Config
	caps domain.RTPCapabilities
}

func NewFactory(cfg Config) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range Codecs {
		if err := m.RegisterCodec(c, codecType(kindOf(c.MimeType))); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	if cfg.PLIInterval > 0 {
		pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(cfg.PLIInterval))
		if err != nil {
			return nil, fmt.Errorf("pli interceptor: %w", err)
		}
		ir.Add(pli)
	}

	se := webrtc.SettingEngine{}
	if cfg.UDPPortMin > 0 && cfg.UDPPortMax >= cfg.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}
	if len(cfg.AnnouncedIPs) > 0 {
		se.SetNAT1To1IPs(cfg.AnnouncedIPs, webrtc.ICECandidateTypeHost)
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultConfig().GatherTimeout
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se))
	log.Info().
		Str("module", "rtc").
		Int("codecs", len(Codecs)).
		Uint16("udp_min", cfg.UDPPortMin).
		Uint16("udp_max", cfg.UDPPortMax).
		Strs("announced_ips", cfg.AnnouncedIPs).
		Msg("media engine ready")
	return &Factory{api: api, cfg: cfg, caps: Capabilities()}, nil
}

func (f *Factory) NewRouter(_ context.Context, room domain.RoomID) (core.MediaRouter, error) {
	return newRouter(f.api, f.cfg, f.caps, room), nil
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
