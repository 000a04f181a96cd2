package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errTransportClosed   = errors.New("transport closed")
	errAlreadyStarted    = errors.New("transport already connecting")
	errTransportNotReady = errors.New("transport not connected")
)

// transport is one ORTC stack: ICE gatherer, ICE transport and DTLS transport.
type transport struct {
	id     domain.TransportID
	peer   domain.PeerID
	dir    domain.Direction
	logger zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	local    domain.TransportParams

	mu        sync.Mutex
	started   bool
	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func newTransport(ctx context.Context, api *webrtc.API, cfg Config, peer domain.PeerID, dir domain.Direction) (*transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: iceServers(cfg.ICEServers)})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	t := &transport{
		id:       domain.NewTransportID(),
		peer:     peer,
		dir:      dir,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		ready:    make(chan struct{}),
		closed:   make(chan struct{}),
	}
	t.logger = log.With().Str("module", "rtc").Str("transport", string(t.id)).Str("peer", string(peer)).Logger()

	if err := t.gather(ctx, cfg.GatherTimeout); err != nil {
		t.close()
		return nil, err
	}
	return t, nil
}

func (t *transport) gather(ctx context.Context, timeout time.Duration) error {
	done := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		// Go with what was gathered so far.
		t.logger.Warn().Dur("timeout", timeout).Msg("ice gathering timed out")
	case <-ctx.Done():
		return ctx.Err()
	}

	iceParams, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("local ice parameters: %w", err)
	}
	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return fmt.Errorf("local candidates: %w", err)
	}
	dtlsParams, err := t.dtls.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("local dtls parameters: %w", err)
	}

	t.local = domain.TransportParams{
		ID:        t.id,
		Direction: t.dir,
		ICEParameters: domain.ICEParameters{
			UsernameFragment: iceParams.UsernameFragment,
			Password:         iceParams.Password,
			ICELite:          iceParams.ICELite,
		},
		ICECandidates:  toDomainCandidates(candidates),
		DTLSParameters: toDomainDTLS(dtlsParams),
	}
	t.logger.Debug().Int("candidates", len(candidates)).Msg("ice gathering complete")
	return nil
}

// connect starts ICE and DTLS in the background. ready is closed once DTLS
// is up; a failure closes the transport instead.
func (t *transport) connect(params domain.ConnectParams) error {
	candidates, err := toPionCandidates(params.ICECandidates)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	dtlsParams, err := toPionDTLS(params.DTLSParameters)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}

	t.mu.Lock()
	select {
	case <-t.closed:
		t.mu.Unlock()
		return errTransportClosed
	default:
	}
	if t.started {
		t.mu.Unlock()
		return errAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}

	go func() {
		role := webrtc.ICERoleControlled
		remote := webrtc.ICEParameters{
			UsernameFragment: params.ICEParameters.UsernameFragment,
			Password:         params.ICEParameters.Password,
			ICELite:          params.ICEParameters.ICELite,
		}
		if err := t.ice.Start(nil, remote, &role); err != nil {
			t.fail(fmt.Errorf("ice start: %w", err))
			return
		}
		if err := t.dtls.Start(dtlsParams); err != nil {
			t.fail(fmt.Errorf("dtls start: %w", err))
			return
		}
		t.logger.Info().Msg("transport connected")
		close(t.ready)
	}()
	return nil
}

func (t *transport) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.logger.Error().Err(err).Msg("transport failed")
	t.close()
}

// waitReady blocks until the transport is connected or gone.
func (t *transport) waitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-t.closed:
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) isReady() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

func (t *transport) close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		if err := t.dtls.Stop(); err != nil {
			t.logger.Debug().Err(err).Msg("dtls stop")
		}
		if err := t.ice.Stop(); err != nil {
			t.logger.Debug().Err(err).Msg("ice stop")
		}
		if err := t.gatherer.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("gatherer close")
		}
		t.logger.Debug().Msg("transport closed")
	})
}

func toDomainCandidates(in []webrtc.ICECandidate) []domain.ICECandidate {
	out := make([]domain.ICECandidate, 0, len(in))
	for _, c := range in {
		out = append(out, domain.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return out
}

func toPionCandidates(in []domain.ICECandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(in))
	for _, c := range in {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, err
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
		})
	}
	return out, nil
}

func toDomainDTLS(p webrtc.DTLSParameters) domain.DTLSParameters {
	out := domain.DTLSParameters{Role: p.Role.String()}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func toPionDTLS(p domain.DTLSParameters) (webrtc.DTLSParameters, error) {
	out := webrtc.DTLSParameters{}
	switch p.Role {
	case "", "auto":
		out.Role = webrtc.DTLSRoleAuto
	case "client":
		out.Role = webrtc.DTLSRoleClient
	case "server":
		out.Role = webrtc.DTLSRoleServer
	default:
		return out, fmt.Errorf("unknown dtls role %q", p.Role)
	}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out, nil
}
