// Package rebroadcast turns the live producers of a room into a rolling HLS
// stream by feeding them to a transcoding subprocess.
package rebroadcast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

const (
	ReasonSourcesLost   = "not enough sources"
	ReasonLayoutChanged = "contributor left"
	ReasonAbnormalExit  = "transcoder exited"
	ReasonRoomClosed    = "room closed"
)

// Tap is the part of the media router the pipeline plugs into.
type Tap interface {
	AttachSink(producer domain.ProducerID, sink core.PacketSink) (func(), error)
	RequestKeyFrame(producer domain.ProducerID) error
}

// Hooks are called outside the pipeline lock.
type Hooks struct {
	OnReady   func(url string)
	OnStopped func(reason string)
}

type Config struct {
	OutputDir    string
	PublicPath   string
	FFmpegPath   string
	MinSources   int
	StopGrace    time.Duration
	CleanupDelay time.Duration
	Width        int
	Height       int
	RTPHost      string
	Encoder      EncoderOptions
	HLS          HLSOptions
}

// Factory builds pipelines sharing one launcher and port pool.
type Factory struct {
	Config   Config
	Launcher Launcher
	Ports    *PortPool
}

func (f *Factory) New(room domain.RoomID, tap Tap, hooks Hooks) *Pipeline {
	return New(room, f.Config, tap, f.Launcher, f.Ports, hooks)
}

// Pipeline is the rebroadcast state machine of one room.
type Pipeline struct {
	room     domain.RoomID
	cfg      Config
	tap      Tap
	launcher Launcher
	ports    *PortPool
	hooks    Hooks
	logger   zerolog.Logger

	mu             sync.Mutex
	state          State
	sources        *sources
	session        *session
	restartPending bool
	closed         bool

	flush     chan struct{}
	flushOnce sync.Once
}

type session struct {
	dir          string
	url          string
	contributors map[domain.PeerID]struct{}
	producers    map[domain.ProducerID]struct{}
	streams      []Stream
	forwarders   []*Forwarder
	detach       []func()
	proc         Process
	watcher      *manifestWatcher
	stopping     bool
	done         chan struct{}
}

func New(room domain.RoomID, cfg Config, tap Tap, launcher Launcher, ports *PortPool, hooks Hooks) *Pipeline {
	if cfg.MinSources < 1 {
		cfg.MinSources = 2
	}
	return &Pipeline{
		room:     room,
		cfg:      cfg,
		tap:      tap,
		launcher: launcher,
		ports:    ports,
		hooks:    hooks,
		logger:   log.With().Str("module", "rebroadcast").Str("room", string(room)).Logger(),
		state:    StateCollecting,
		sources:  newSources(),
		flush:    make(chan struct{}),
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) Active() bool { return p.State() == StateActive }

// StreamURL returns the playable manifest path while Active.
func (p *Pipeline) StreamURL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return "", domain.ErrStreamNotAvailable
	}
	return p.session.url, nil
}

// Contributors returns the peers feeding the running session.
func (p *Pipeline) Contributors() []domain.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	out := make([]domain.PeerID, 0, len(p.session.contributors))
	for _, st := range p.session.streams {
		if st.Source.Kind == domain.KindVideo {
			out = append(out, st.Source.PeerID)
		}
	}
	return out
}

// AddSource records a new producer and starts the transcoder once enough
// peers have both audio and video.
func (p *Pipeline) AddSource(src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sources.add(src)
	p.evaluateLocked()
}

// RemoveSource drops a closed producer.
func (p *Pipeline) RemoveSource(id domain.ProducerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sources.removeProducer(id); !ok {
		return
	}
	if sess := p.session; sess != nil && !sess.stopping {
		if _, ok := sess.producers[id]; ok {
			p.sourceLostLocked(sess)
		}
	}
}

// RemovePeer drops every source of a departed peer.
func (p *Pipeline) RemovePeer(id domain.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.sources.removePeer(id) {
		return
	}
	if sess := p.session; sess != nil && !sess.stopping {
		if _, ok := sess.contributors[id]; ok {
			p.sourceLostLocked(sess)
		}
	}
}

// Close stops the pipeline for good. Cleanup continues in the background;
// use Wait to block on it.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.restartPending = false
	if sess := p.session; sess != nil && !sess.stopping {
		p.beginStopLocked(sess, ReasonRoomClosed)
	}
}

// Shutdown closes the pipeline and skips the artifact retention delay, so
// cleanup only waits for the transcoder to exit. It may be called after Close.
func (p *Pipeline) Shutdown() {
	p.Close()
	p.flushOnce.Do(func() { close(p.flush) })
}

// Wait blocks until no session is running or being cleaned up.
func (p *Pipeline) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		sess := p.session
		p.mu.Unlock()
		if sess == nil {
			return nil
		}
		select {
		case <-sess.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) evaluateLocked() {
	switch p.state {
	case StateActive:
		return
	case StateStopping:
		if len(p.sources.complete()) >= p.cfg.MinSources {
			p.restartPending = true
		}
		return
	}
	complete := p.sources.complete()
	if len(complete) < p.cfg.MinSources {
		p.state = StateCollecting
		return
	}
	p.startLocked(complete)
}

func (p *Pipeline) sourceLostLocked(sess *session) {
	remaining := len(p.sources.complete())
	if remaining < p.cfg.MinSources {
		p.beginStopLocked(sess, ReasonSourcesLost)
		return
	}
	p.restartPending = true
	p.beginStopLocked(sess, ReasonLayoutChanged)
}

func (p *Pipeline) streamURL() string {
	return path.Join("/", p.cfg.PublicPath, string(p.room), manifestFile)
}

func (p *Pipeline) startLocked(sets []SourceSet) {
	dir := filepath.Join(p.cfg.OutputDir, string(p.room))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Error().Err(err).Str("dir", dir).Msg("failed to create output dir")
		p.state = StateCollecting
		return
	}

	sess := &session{
		dir:          dir,
		url:          p.streamURL(),
		contributors: make(map[domain.PeerID]struct{}, len(sets)),
		producers:    make(map[domain.ProducerID]struct{}, 2*len(sets)),
		done:         make(chan struct{}),
	}
	for _, set := range sets {
		sess.contributors[set.PeerID] = struct{}{}
		for _, src := range []*Source{set.Video, set.Audio} {
			port, err := p.ports.Acquire()
			if err != nil {
				p.abortStartLocked(sess, err)
				return
			}
			sess.producers[src.ProducerID] = struct{}{}
			sess.streams = append(sess.streams, Stream{Source: *src, Port: port})
		}
	}

	desc, err := BuildDescription(p.cfg.RTPHost, sess.streams)
	if err != nil {
		p.abortStartLocked(sess, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, descriptionFile), desc, 0o644); err != nil {
		p.abortStartLocked(sess, err)
		return
	}

	args := BuildArgs(p.cfg.Encoder, p.cfg.HLS, len(sets), p.cfg.Width, p.cfg.Height)
	proc, err := p.launcher.Launch(context.Background(), LaunchSpec{
		Path: p.cfg.FFmpegPath,
		Args: args,
		Dir:  dir,
		Name: "ffmpeg-" + string(p.room),
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSubprocessSpawn) {
			err = fmt.Errorf("%w: %w", domain.ErrSubprocessSpawn, err)
		}
		p.abortStartLocked(sess, err)
		return
	}
	sess.proc = proc

	p.attachLocked(sess)
	p.session = sess
	p.state = StateActive

	w, err := watchManifest(dir, p.logger, func() { p.ready(sess) })
	if err != nil {
		p.logger.Warn().Err(err).Msg("manifest watcher unavailable")
	}
	sess.watcher = w

	p.logger.Info().
		Int("sources", len(sets)).
		Int("pid", proc.PID()).
		Str("url", sess.url).
		Msg("rebroadcast started")

	go p.supervise(sess)
}

// abortStartLocked undoes a failed start and goes back to collecting.
func (p *Pipeline) abortStartLocked(sess *session, err error) {
	p.logger.Error().Err(err).Msg("rebroadcast start failed")
	for _, st := range sess.streams {
		p.ports.Release(st.Port)
	}
	if rmErr := os.RemoveAll(sess.dir); rmErr != nil {
		p.logger.Error().Err(fmt.Errorf("%w: %w", domain.ErrArtifactCleanup, rmErr)).Msg("cleanup after failed start")
	}
	p.state = StateCollecting
}

func (p *Pipeline) attachLocked(sess *session) {
	for _, st := range sess.streams {
		fwd, err := NewForwarder(p.cfg.RTPHost, st.Port, st.Source.Codec.PayloadType)
		if err != nil {
			p.logger.Warn().Err(err).Str("producer", string(st.Source.ProducerID)).Msg("forwarder failed")
			continue
		}
		detach, err := p.tap.AttachSink(st.Source.ProducerID, fwd)
		if err != nil {
			p.logger.Warn().Err(err).Str("producer", string(st.Source.ProducerID)).Msg("attach failed")
			_ = fwd.Close()
			continue
		}
		sess.forwarders = append(sess.forwarders, fwd)
		sess.detach = append(sess.detach, detach)
		if st.Source.Kind == domain.KindVideo {
			if err := p.tap.RequestKeyFrame(st.Source.ProducerID); err != nil {
				p.logger.Debug().Err(err).Str("producer", string(st.Source.ProducerID)).Msg("keyframe request failed")
			}
		}
	}
}

func (p *Pipeline) ready(sess *session) {
	p.mu.Lock()
	current := p.session == sess && !sess.stopping
	p.mu.Unlock()
	if current && p.hooks.OnReady != nil {
		p.hooks.OnReady(sess.url)
	}
}

// supervise treats an unexpected exit like a stop request.
func (p *Pipeline) supervise(sess *session) {
	<-sess.proc.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != sess || sess.stopping {
		return
	}
	p.logger.Error().
		Err(fmt.Errorf("%w: %v", domain.ErrSubprocessAbnormalExit, sess.proc.Err())).
		Msg("transcoder exited unexpectedly")
	p.beginStopLocked(sess, ReasonAbnormalExit)
}

func (p *Pipeline) beginStopLocked(sess *session, reason string) {
	sess.stopping = true
	p.state = StateStopping
	p.logger.Info().Str("reason", reason).Msg("rebroadcast stopping")
	go p.finishStop(sess, reason)
}

func (p *Pipeline) finishStop(sess *session, reason string) {
	if sess.watcher != nil {
		sess.watcher.Close()
	}
	for _, detach := range sess.detach {
		detach()
	}
	for _, fwd := range sess.forwarders {
		_ = fwd.Close()
	}
	if p.hooks.OnStopped != nil {
		p.hooks.OnStopped(reason)
	}

	if err := sess.proc.Terminate(context.Background(), p.cfg.StopGrace); err != nil {
		p.logger.Error().Err(err).Msg("terminate transcoder")
	}
	for _, st := range sess.streams {
		p.ports.Release(st.Port)
	}

	// Viewers may still be fetching the last segments.
	if p.cfg.CleanupDelay > 0 {
		timer := time.NewTimer(p.cfg.CleanupDelay)
		select {
		case <-timer.C:
		case <-p.flush:
			timer.Stop()
		}
	}
	if err := os.RemoveAll(sess.dir); err != nil {
		p.logger.Error().Err(fmt.Errorf("%w: %w", domain.ErrArtifactCleanup, err)).Str("dir", sess.dir).Msg("artifact cleanup failed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = nil
	p.state = StateIdle
	close(sess.done)
	p.logger.Info().Msg("rebroadcast idle")

	restart := p.restartPending && !p.closed
	p.restartPending = false
	if restart {
		p.evaluateLocked()
	}
}
