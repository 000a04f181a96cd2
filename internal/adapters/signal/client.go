package signal

import (
	"sync"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateLeft
)

// client is the server side of one signaling connection.
type client struct {
	ctl     *SignalWSController
	sid     string
	conn    *WsSignalConn
	limiter *rate.Limiter
	logger  zerolog.Logger
	// joining tracks a join that is still in flight.
	joining sync.WaitGroup

	mu    sync.Mutex
	state connState
	room  *app.Room
	peer  *domain.Peer
}

func newClient(ctl *SignalWSController, sid string, conn *WsSignalConn) *client {
	return &client{
		ctl:     ctl,
		sid:     sid,
		conn:    conn,
		limiter: newLimiter(ctl.cfg.RequestsPerSecond, ctl.cfg.Burst),
		logger:  log.With().Str("module", "signal").Str("sid", sid).Logger(),
	}
}

// member returns the room and peer of a joined connection.
func (cl *client) member() (*app.Room, *domain.Peer, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.state != stateJoined {
		return nil, nil, domain.ErrPeerNotJoined
	}
	return cl.room, cl.peer, nil
}

// targetRoom resolves the room a query is about: the explicit id, or the
// connection's own room.
func (cl *client) targetRoom(raw string) (domain.RoomID, error) {
	if raw != "" {
		return domain.ParseRoomID(raw)
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.state != stateJoined {
		return "", domain.ErrInvalidRoomID
	}
	return cl.room.ID(), nil
}
