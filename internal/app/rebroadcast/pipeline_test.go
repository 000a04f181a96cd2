package rebroadcast_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/roomcast/internal/app/apptest"
	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	grace = 50 * time.Millisecond
	delay = 150 * time.Millisecond
	wait  = 3 * time.Second
	tick  = 5 * time.Millisecond
)

type harness struct {
	t        *testing.T
	router   *apptest.FakeRouter
	launcher *apptest.FakeLauncher
	pipeline *rebroadcast.Pipeline
	dir      string
	send     domain.TransportID

	mu      sync.Mutex
	ready   []string
	stopped []string
}

func newHarness(t *testing.T, minSources int, opts ...func(*rebroadcast.Config)) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		router:   apptest.NewFakeRouter(),
		launcher: apptest.NewFakeLauncher(),
		dir:      t.TempDir(),
	}
	params, err := h.router.CreateTransport(context.Background(), "owner", domain.DirectionSend)
	require.NoError(t, err)
	h.send = params.ID

	cfg := rebroadcast.Config{
		OutputDir:    h.dir,
		PublicPath:   "/live",
		FFmpegPath:   "ffmpeg",
		MinSources:   minSources,
		StopGrace:    grace,
		CleanupDelay: delay,
		Width:        1280,
		Height:       720,
		RTPHost:      "127.0.0.1",
		HLS:          rebroadcast.HLSOptions{SegmentDuration: 2, PlaylistSize: 5},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	hooks := rebroadcast.Hooks{
		OnReady: func(url string) {
			h.mu.Lock()
			h.ready = append(h.ready, url)
			h.mu.Unlock()
		},
		OnStopped: func(reason string) {
			h.mu.Lock()
			h.stopped = append(h.stopped, reason)
			h.mu.Unlock()
		},
	}
	h.pipeline = rebroadcast.New("r1", cfg, h.router, h.launcher, rebroadcast.NewPortPool(42000, 42199), hooks)
	t.Cleanup(func() {
		h.pipeline.Close()
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		_ = h.pipeline.Wait(ctx)
	})
	return h
}

// produce registers a producer with the router and offers it to the pipeline.
func (h *harness) produce(peer domain.PeerID, kind domain.MediaKind) domain.ProducerID {
	h.t.Helper()
	params := apptest.Params(kind, 1)
	id, err := h.router.Produce(context.Background(), h.send, kind, params)
	require.NoError(h.t, err)
	h.pipeline.AddSource(rebroadcast.Source{PeerID: peer, ProducerID: id, Kind: kind, Codec: params.Codec})
	return id
}

func (h *harness) produceBoth(peer domain.PeerID) (video, audio domain.ProducerID) {
	return h.produce(peer, domain.KindVideo), h.produce(peer, domain.KindAudio)
}

func (h *harness) roomDir() string { return filepath.Join(h.dir, "r1") }

func (h *harness) stoppedReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.stopped...)
}

func (h *harness) readyURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ready...)
}

func TestPipelineStartsExactlyAtMinimum(t *testing.T) {
	h := newHarness(t, 2)
	require.Equal(t, rebroadcast.StateCollecting, h.pipeline.State())

	h.produce("a", domain.KindVideo)
	h.produce("a", domain.KindAudio)
	h.produce("b", domain.KindVideo)
	assert.Equal(t, rebroadcast.StateCollecting, h.pipeline.State())
	assert.Empty(t, h.launcher.Processes())
	_, err := h.pipeline.StreamURL()
	assert.ErrorIs(t, err, domain.ErrStreamNotAvailable)

	h.produce("b", domain.KindAudio)
	require.Equal(t, rebroadcast.StateActive, h.pipeline.State())
	require.Len(t, h.launcher.Processes(), 1)

	url, err := h.pipeline.StreamURL()
	require.NoError(t, err)
	assert.Equal(t, "/live/r1/stream.m3u8", url)
	assert.Equal(t, []domain.PeerID{"a", "b"}, h.pipeline.Contributors())

	spec := h.launcher.Specs()[0]
	assert.Equal(t, h.roomDir(), spec.Dir)
	assert.Equal(t, "ffmpeg", spec.Path)
	assert.Contains(t, strings.Join(spec.Args, " "), "-i input.sdp")
	assert.Contains(t, strings.Join(spec.Args, " "), "-hls_list_size 5")

	raw, err := os.ReadFile(filepath.Join(h.roomDir(), "input.sdp"))
	require.NoError(t, err)
	var desc sdp.SessionDescription
	require.NoError(t, desc.Unmarshal(raw))
	require.Len(t, desc.MediaDescriptions, 4)
	kinds := make([]string, 0, 4)
	for _, md := range desc.MediaDescriptions {
		kinds = append(kinds, md.MediaName.Media)
	}
	assert.Equal(t, []string{"video", "audio", "video", "audio"}, kinds)
}

func TestPipelineSingleCompleteSourceNeverStarts(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")

	for range 5 {
		_, err := h.pipeline.StreamURL()
		require.ErrorIs(t, err, domain.ErrStreamNotAvailable)
	}
	assert.False(t, h.pipeline.Active())
	assert.Empty(t, h.launcher.Processes())
	_, err := os.Stat(h.roomDir())
	assert.True(t, os.IsNotExist(err), "output dir must be created lazily")
}

func TestPipelineAttachesForwardersAndRequestsKeyFrames(t *testing.T) {
	h := newHarness(t, 2)
	av, aa := h.produceBoth("a")
	bv, ba := h.produceBoth("b")
	require.True(t, h.pipeline.Active())

	for _, id := range []domain.ProducerID{av, aa, bv, ba} {
		assert.Equal(t, 1, h.router.Sinks(id), "producer %s", id)
	}
	assert.Equal(t, 1, h.router.KeyFrames(av))
	assert.Equal(t, 1, h.router.KeyFrames(bv))
	assert.Zero(t, h.router.KeyFrames(aa))

	h.pipeline.RemovePeer("b")
	require.Eventually(t, func() bool { return h.router.Sinks(av) == 0 }, wait, tick)
}

func TestPipelinePeerDepartureStopsAndCleansUp(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	require.True(t, h.pipeline.Active())
	proc := h.launcher.Processes()[0]

	left := time.Now()
	h.pipeline.RemovePeer("b")
	assert.False(t, h.pipeline.Active(), "must leave Active immediately")
	assert.Equal(t, rebroadcast.StateStopping, h.pipeline.State())

	require.Eventually(t, func() bool {
		return proc.State() == rebroadcast.ProcessExited
	}, grace+wait, tick)

	// Artifacts survive the deletion delay, then go away.
	_, err := os.Stat(h.roomDir())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(h.roomDir())
		return os.IsNotExist(err)
	}, wait, tick)
	assert.GreaterOrEqual(t, time.Since(left), delay)
	require.Eventually(t, func() bool { return h.pipeline.State() == rebroadcast.StateIdle }, wait, tick)

	assert.Equal(t, []string{rebroadcast.ReasonSourcesLost}, h.stoppedReasons())
	assert.Len(t, h.launcher.Processes(), 1, "must not restart with one source")
}

func TestPipelineIdleRestartsOnQualifyingSet(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	h.pipeline.RemovePeer("b")
	require.Eventually(t, func() bool { return h.pipeline.State() == rebroadcast.StateIdle }, wait, tick)

	h.produceBoth("c")
	require.True(t, h.pipeline.Active())
	assert.Len(t, h.launcher.Processes(), 2)
	assert.Equal(t, []domain.PeerID{"a", "c"}, h.pipeline.Contributors())
}

func TestPipelineStartWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	h.produceBoth("c")

	assert.True(t, h.pipeline.Active())
	assert.Len(t, h.launcher.Processes(), 1)
	assert.Equal(t, 1, h.launcher.Running())
}

func TestPipelineContributorLeavesButSetStillQualifies(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	h.produceBoth("c")
	require.Len(t, h.launcher.Processes(), 1)

	h.pipeline.RemovePeer("a")
	assert.Equal(t, rebroadcast.StateStopping, h.pipeline.State())

	require.Eventually(t, func() bool {
		return h.pipeline.Active() && len(h.launcher.Processes()) == 2
	}, wait, tick)
	assert.Equal(t, []domain.PeerID{"b", "c"}, h.pipeline.Contributors())
	assert.Equal(t, 1, h.launcher.Running(), "old process must be gone before restart")
}

func TestPipelineNonContributorDepartureKeepsRunning(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	h.produce("c", domain.KindVideo)

	h.pipeline.RemovePeer("c")
	assert.True(t, h.pipeline.Active())
	assert.Len(t, h.launcher.Processes(), 1)
}

func TestPipelineProducerRemovalStops(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	_, audio := h.produceBoth("b")

	h.pipeline.RemoveSource(audio)
	assert.Equal(t, rebroadcast.StateStopping, h.pipeline.State())
}

func TestPipelineSpawnFailureRevertsToCollecting(t *testing.T) {
	h := newHarness(t, 2)
	h.launcher.FailNext(errors.New("exec: \"ffmpeg\": executable file not found in $PATH"))

	h.produceBoth("a")
	h.produceBoth("b")
	assert.Equal(t, rebroadcast.StateCollecting, h.pipeline.State())
	assert.Empty(t, h.launcher.Processes())
	_, err := os.Stat(h.roomDir())
	assert.True(t, os.IsNotExist(err))

	// Next qualifying producer retries.
	h.produceBoth("c")
	assert.True(t, h.pipeline.Active())
	assert.Len(t, h.launcher.Processes(), 1)
}

func TestPipelineAbnormalExitStops(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	h.launcher.Processes()[0].Crash()

	require.Eventually(t, func() bool { return !h.pipeline.Active() }, wait, tick)
	require.Eventually(t, func() bool { return h.pipeline.State() == rebroadcast.StateIdle }, wait, tick)
	assert.Equal(t, []string{rebroadcast.ReasonAbnormalExit}, h.stoppedReasons())
	assert.Len(t, h.launcher.Processes(), 1, "no restart without a new producer")
}

func TestPipelineForcesKillAfterGrace(t *testing.T) {
	h := newHarness(t, 2)
	h.launcher.IgnoreTerm = true
	h.produceBoth("a")
	h.produceBoth("b")
	proc := h.launcher.Processes()[0]

	h.pipeline.RemovePeer("a")
	require.Eventually(t, func() bool { return proc.State() == rebroadcast.ProcessExited }, wait, tick)
	assert.True(t, proc.Killed())
}

func TestPipelineCloseNeverRestarts(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")

	h.pipeline.Close()
	h.produceBoth("c")

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, h.pipeline.Wait(ctx))
	assert.Equal(t, rebroadcast.StateIdle, h.pipeline.State())
	assert.Len(t, h.launcher.Processes(), 1)
	assert.Equal(t, []string{rebroadcast.ReasonRoomClosed}, h.stoppedReasons())
}

func keepArtifacts(c *rebroadcast.Config) { c.CleanupDelay = time.Hour }

func TestPipelineShutdownSkipsRetentionDelay(t *testing.T) {
	h := newHarness(t, 2, keepArtifacts)
	h.launcher.IgnoreTerm = true
	h.produceBoth("a")
	h.produceBoth("b")
	proc := h.launcher.Processes()[0]

	h.pipeline.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, h.pipeline.Wait(ctx))

	assert.Equal(t, rebroadcast.ProcessExited, proc.State())
	assert.True(t, proc.Killed(), "shutdown still escalates a stuck transcoder")
	_, err := os.Stat(h.roomDir())
	assert.True(t, os.IsNotExist(err), "artifacts removed without waiting for the delay")
	assert.Equal(t, []string{rebroadcast.ReasonRoomClosed}, h.stoppedReasons())
}

func TestPipelineShutdownCutsPendingDelay(t *testing.T) {
	h := newHarness(t, 2, keepArtifacts)
	h.produceBoth("a")
	h.produceBoth("b")
	proc := h.launcher.Processes()[0]

	h.pipeline.RemovePeer("b")
	require.Eventually(t, func() bool { return proc.State() == rebroadcast.ProcessExited }, wait, tick)
	_, err := os.Stat(h.roomDir())
	require.NoError(t, err, "artifacts are retained during the delay")

	h.pipeline.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, h.pipeline.Wait(ctx))
	_, err = os.Stat(h.roomDir())
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, rebroadcast.StateIdle, h.pipeline.State())
}

func TestPipelineReadyWhenManifestAppears(t *testing.T) {
	h := newHarness(t, 2)
	h.produceBoth("a")
	h.produceBoth("b")
	require.True(t, h.pipeline.Active())

	require.NoError(t, os.WriteFile(filepath.Join(h.roomDir(), "stream.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.Eventually(t, func() bool { return len(h.readyURLs()) == 1 }, wait, tick)
	assert.Equal(t, "/live/r1/stream.m3u8", h.readyURLs()[0])
}
