package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	Secret     string        `mapstructure:"secret"`

	// Backpressure is "kick" or "drop": what happens to a member whose
	// outbound queue is full.
	Backpressure string `mapstructure:"backpressure"`

	Log         LogConfig         `mapstructure:"log"`
	HLS         HLSConfig         `mapstructure:"hls"`
	Rebroadcast RebroadcastConfig `mapstructure:"rebroadcast"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	WebRTC      WebRTCConfig      `mapstructure:"webrtc"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HLSConfig struct {
	OutputDir       string `mapstructure:"output_dir"`
	PublicPath      string `mapstructure:"public_path"`
	SegmentDuration int    `mapstructure:"segment_duration"`
	PlaylistSize    int    `mapstructure:"playlist_size"`
}

type RebroadcastConfig struct {
	MinSources   int           `mapstructure:"min_sources"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	CleanupDelay time.Duration `mapstructure:"cleanup_delay"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	RTPHost      string        `mapstructure:"rtp_host"`
	RTPPortMin   int           `mapstructure:"rtp_port_min"`
	RTPPortMax   int           `mapstructure:"rtp_port_max"`
}

type FFmpegConfig struct {
	Path         string `mapstructure:"path"`
	VideoCodec   string `mapstructure:"video_codec"`
	VideoPreset  string `mapstructure:"video_preset"`
	VideoBitrate string `mapstructure:"video_bitrate"`
	VideoCRF     int    `mapstructure:"video_crf"`
	Framerate    int    `mapstructure:"framerate"`
	AudioCodec   string `mapstructure:"audio_codec"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
	AudioSample  int    `mapstructure:"audio_sample"`
}

type WebRTCConfig struct {
	ICEServers    []string      `mapstructure:"ice_servers"`
	UDPPortMin    uint16        `mapstructure:"udp_port_min"`
	UDPPortMax    uint16        `mapstructure:"udp_port_max"`
	AnnouncedIPs  []string      `mapstructure:"announced_ips"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type PubSubConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

var defaults = map[string]any{
	"mode":        "release",
	"port":        8080,
	"static_path": "./web",
	"read_limit":  65536,
	"ping_period": "54s",
	"pong_wait":   "60s",
	"write_wait":  "10s",
	"secret":      "dev-secret",

	"backpressure": "kick",

	"log.level":  "info",
	"log.pretty": true,

	"hls.output_dir":       "./hls",
	"hls.public_path":      "/live",
	"hls.segment_duration": 2,
	"hls.playlist_size":    5,

	"rebroadcast.min_sources":   2,
	"rebroadcast.stop_grace":    "5s",
	"rebroadcast.cleanup_delay": "10s",
	"rebroadcast.width":         1280,
	"rebroadcast.height":        720,
	"rebroadcast.rtp_host":      "127.0.0.1",
	"rebroadcast.rtp_port_min":  40000,
	"rebroadcast.rtp_port_max":  40999,

	"ffmpeg.path":          "ffmpeg",
	"ffmpeg.video_codec":   "libx264",
	"ffmpeg.video_preset":  "veryfast",
	"ffmpeg.video_bitrate": "",
	"ffmpeg.video_crf":     23,
	"ffmpeg.framerate":     30,
	"ffmpeg.audio_codec":   "aac",
	"ffmpeg.audio_bitrate": "128k",
	"ffmpeg.audio_sample":  48000,

	"webrtc.ice_servers":    []string{"stun:stun.l.google.com:19302"},
	"webrtc.udp_port_min":   0,
	"webrtc.udp_port_max":   0,
	"webrtc.announced_ips":  []string{},
	"webrtc.gather_timeout": "5s",

	"rate_limit.requests_per_second": 20,
	"rate_limit.burst":               40,

	"pubsub.driver":         "none",
	"pubsub.redis.address":  "localhost:6379",
	"pubsub.redis.password": "",
	"pubsub.redis.db":       0,
}

var envBindings = map[string]string{
	"mode":                    "MODE",
	"port":                    "PORT",
	"static_path":             "STATIC_PATH",
	"secret":                  "SESSION_SECRET",
	"backpressure":            "BACKPRESSURE",
	"log.level":               "LOG_LEVEL",
	"log.pretty":              "LOG_PRETTY",
	"hls.output_dir":          "HLS_OUTPUT_DIR",
	"hls.segment_duration":    "HLS_SEGMENT_DURATION",
	"hls.playlist_size":       "HLS_PLAYLIST_SIZE",
	"rebroadcast.min_sources": "REBROADCAST_MIN_SOURCES",
	"ffmpeg.path":             "FFMPEG_PATH",
	"webrtc.announced_ips":    "ANNOUNCED_IPS",
	"pubsub.driver":           "PUBSUB_DRIVER",
	"pubsub.redis.address":    "REDIS_ADDRESS",
	"pubsub.redis.password":   "REDIS_PASSWORD",
}

// Load reads config/config.<env>.yaml when present, then environment
// overrides, then any flags set on fs. env falls back to CONFIG_ENV and "dev".
func Load(env string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", name, err)
		}
	}
	if fs != nil {
		if f := fs.Lookup("port"); f != nil {
			if err := v.BindPFlag("port", f); err != nil {
				return nil, fmt.Errorf("bind flag port: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.WebRTC.AnnouncedIPs = splitList(cfg.WebRTC.AnnouncedIPs)
	cfg.WebRTC.ICEServers = splitList(cfg.WebRTC.ICEServers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("hls", cfg.HLS.OutputDir).
		Msg("config ready")
	return &cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Rebroadcast.MinSources < 1:
		return errors.New("rebroadcast.min_sources must be at least 1")
	case c.Rebroadcast.RTPPortMin <= 0 || c.Rebroadcast.RTPPortMax < c.Rebroadcast.RTPPortMin+1:
		return fmt.Errorf("invalid rebroadcast rtp port range %d-%d", c.Rebroadcast.RTPPortMin, c.Rebroadcast.RTPPortMax)
	case c.WebRTC.UDPPortMax < c.WebRTC.UDPPortMin:
		return fmt.Errorf("invalid webrtc udp port range %d-%d", c.WebRTC.UDPPortMin, c.WebRTC.UDPPortMax)
	case c.HLS.OutputDir == "":
		return errors.New("hls.output_dir is required")
	case c.Backpressure != "kick" && c.Backpressure != "drop":
		return fmt.Errorf("invalid backpressure policy %q", c.Backpressure)
	}
	return nil
}
