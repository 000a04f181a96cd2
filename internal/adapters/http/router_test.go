package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/roomcast/internal/adapters/signal"
	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/app/apptest"
	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *gin.Engine
	registry *app.Registry
	launcher *apptest.FakeLauncher
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{launcher: apptest.NewFakeLauncher(), dir: t.TempDir()}
	f.registry = app.NewRegistry(apptest.NewFakeRouterFactory(), &rebroadcast.Factory{
		Config: rebroadcast.Config{
			OutputDir:    f.dir,
			PublicPath:   "/live",
			MinSources:   2,
			StopGrace:    20 * time.Millisecond,
			CleanupDelay: 20 * time.Millisecond,
			Width:        1280,
			Height:       720,
			RTPHost:      "127.0.0.1",
			HLS:          rebroadcast.HLSOptions{SegmentDuration: 2, PlaylistSize: 5},
		},
		Launcher: f.launcher,
		Ports:    rebroadcast.NewPortPool(45000, 45399),
	}, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = f.registry.Close(ctx)
	})

	cfg := &config.Config{
		Mode:   "test",
		Secret: "test-secret",
		HLS:    config.HLSConfig{OutputDir: f.dir, PublicPath: "/live"},
	}
	ctl := signal.NewSignalWSController(f.registry, signal.DefaultConfig())
	f.engine = SetupRouter(context.Background(), cfg, f.registry, ctl)
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (f *fixture) join(t *testing.T, room domain.RoomID) (*app.Room, domain.PeerID) {
	t.Helper()
	ms, _ := apptest.NewSession(domain.RoleParticipant, "")
	res, err := f.registry.AddPeer(context.Background(), room, ms)
	require.NoError(t, err)
	return res.Room, ms.Peer().ID
}

func publish(t *testing.T, room *app.Room, peer domain.PeerID) {
	t.Helper()
	ctx := context.Background()
	tr, err := room.CreateTransport(ctx, peer, domain.DirectionSend)
	require.NoError(t, err)
	_, err = room.Produce(ctx, peer, tr.ID, domain.KindVideo, apptest.Params(domain.KindVideo, 1))
	require.NoError(t, err)
	_, err = room.Produce(ctx, peer, tr.ID, domain.KindAudio, apptest.Params(domain.KindAudio, 2))
	require.NoError(t, err)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.join(t, "r1")

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["rooms"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRoomViews(t *testing.T) {
	f := newFixture(t)
	f.join(t, "beta")
	f.join(t, "alpha")
	f.join(t, "alpha")

	w := f.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode(t, w)["rooms"].([]any)
	require.Len(t, rooms, 2)
	assert.Equal(t, "alpha", rooms[0].(map[string]any)["id"])
	assert.Equal(t, float64(2), rooms[0].(map[string]any)["peerCount"])

	w = f.get(t, "/api/rooms/alpha/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["peerCount"])

	w = f.get(t, "/api/rooms/ghost/stats")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeRoomNotFound, decode(t, w)["code"])

	w = f.get(t, "/api/rooms/bad%20id/stats")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamEndpoint(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/rooms/show/stream").Code)

	room, a := f.join(t, "show")
	_, b := f.join(t, "show")
	w := f.get(t, "/api/rooms/show/stream")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, domain.CodeNotAvailable, decode(t, w)["code"])

	publish(t, room, a)
	publish(t, room, b)
	require.Eventually(t, func() bool { return f.launcher.Running() == 1 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "show", "stream.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.Eventually(t, func() bool {
		return f.get(t, "/api/rooms/show/stream").Code == http.StatusOK
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, "/live/show/stream.m3u8", decode(t, f.get(t, "/api/rooms/show/stream"))["url"])
}

func TestArtifacts(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.dir, "show")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stream.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_00001.ts"), []byte{0x47}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs.sdp"), []byte("v=0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "secret.m3u8"), []byte("x"), 0o644))

	w := f.get(t, "/live/show/stream.m3u8")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "#EXTM3U\n", w.Body.String())

	w = f.get(t, "/live/show/segment_00001.ts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))

	for _, target := range []string{
		"/live/show/inputs.sdp",
		"/live/show/missing.ts",
		"/live/show/..%2Fsecret.m3u8",
		"/live/..%2F/secret.m3u8",
		"/live/bad%20room/stream.m3u8",
	} {
		assert.Equal(t, http.StatusNotFound, f.get(t, target).Code, target)
	}
}

func TestClientTokenCookie(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/health")
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			found = true
			assert.NotEmpty(t, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)
}
