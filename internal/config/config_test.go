package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(65536), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, "./hls", cfg.HLS.OutputDir)
	assert.Equal(t, "/live", cfg.HLS.PublicPath)
	assert.Equal(t, 2, cfg.Rebroadcast.MinSources)
	assert.Equal(t, 5*time.Second, cfg.Rebroadcast.StopGrace)
	assert.Equal(t, 10*time.Second, cfg.Rebroadcast.CleanupDelay)
	assert.Equal(t, "libx264", cfg.FFmpeg.VideoCodec)
	assert.Equal(t, 48000, cfg.FFmpeg.AudioSample)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.ICEServers)
	assert.Empty(t, cfg.WebRTC.AnnouncedIPs)
	assert.Equal(t, float64(20), cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "none", cfg.PubSub.Driver)
	assert.Equal(t, "kick", cfg.Backpressure)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := `
mode: debug
port: 9000
hls:
  output_dir: /tmp/hls
  playlist_size: 8
rebroadcast:
  min_sources: 3
  stop_grace: 2s
webrtc:
  ice_servers: [stun:a.example:3478, stun:b.example:3478]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("PORT", "9100")
	t.Setenv("ANNOUNCED_IPS", "203.0.113.7, 203.0.113.8")
	t.Setenv("PUBSUB_DRIVER", "redis")
	t.Setenv("BACKPRESSURE", "drop")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port, "env wins over file")
	assert.Equal(t, "/tmp/hls", cfg.HLS.OutputDir)
	assert.Equal(t, 8, cfg.HLS.PlaylistSize)
	assert.Equal(t, 2, cfg.HLS.SegmentDuration)
	assert.Equal(t, 3, cfg.Rebroadcast.MinSources)
	assert.Equal(t, 2*time.Second, cfg.Rebroadcast.StopGrace)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.WebRTC.ICEServers)
	assert.Equal(t, []string{"203.0.113.7", "203.0.113.8"}, cfg.WebRTC.AnnouncedIPs)
	assert.Equal(t, "redis", cfg.PubSub.Driver)
	assert.Equal(t, "drop", cfg.Backpressure)
}

func TestLoadPortFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 8080, "")
	require.NoError(t, fs.Parse([]string{"--port", "7070"}))

	cfg, err := Load("dev", fs)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REBROADCAST_MIN_SOURCES", "0")
	_, err := Load("dev", nil)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownBackpressure(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKPRESSURE", "ignore")
	_, err := Load("dev", nil)
	assert.ErrorContains(t, err, "backpressure")
}
