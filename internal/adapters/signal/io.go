package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cl *client) {
	c := cl.conn
	defer func() {
		cl.logger.Info().Msg("readPump closing")
		// A join still in flight sees the closed connection and backs out.
		c.Close()
		cl.joining.Wait()
		cl.disconnect()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cl.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, cl, data)
	}
}

// handleSignal orders join and leave before every later request. Join runs
// off the read loop so a dropped socket is noticed while it is pending.
// Everything else runs concurrently.
func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		cl.logger.Warn().Err(err).Msg("bad json")
		cl.fail(0, fmt.Errorf("%w: malformed request", domain.ErrInvalidPayload))
		return
	}
	if !cl.limiter.Allow() {
		cl.fail(req.ID, domain.ErrRateLimited)
		return
	}

	cl.joining.Wait()
	switch req.Method {
	case MethodJoin:
		cl.joining.Add(1)
		go func() {
			defer cl.joining.Done()
			payload, err := cl.handleJoin(ctx, req)
			if errors.Is(err, core.ErrConnectionClosed) {
				cl.logger.Info().Msg("connection closed during join")
				return
			}
			cl.reply(req.ID, payload, err)
		}()
	case MethodLeave:
		payload, err := cl.handleLeave(ctx, req)
		cl.reply(req.ID, payload, err)
		cl.closeIfLeft()
	default:
		h, ok := cl.handler(req.Method)
		if !ok {
			cl.logger.Warn().Str("method", req.Method).Msg("unknown method")
			cl.fail(req.ID, fmt.Errorf("%w: unknown method %q", domain.ErrInvalidPayload, req.Method))
			return
		}
		go func() {
			payload, err := h(ctx, req)
			cl.reply(req.ID, payload, err)
		}()
	}
}

type handlerFunc func(ctx context.Context, req Request) (any, error)

func (cl *client) handler(method string) (handlerFunc, bool) {
	switch method {
	case MethodCreateTransport:
		return cl.handleCreateTransport, true
	case MethodConnect:
		return cl.handleConnectTransport, true
	case MethodProduce:
		return cl.handleProduce, true
	case MethodConsume:
		return cl.handleConsume, true
	case MethodResumeConsumer:
		return cl.handleResumeConsumer, true
	case MethodStreamURL:
		return cl.handleStreamURL, true
	case MethodRoomStats:
		return cl.handleRoomStats, true
	case MethodPing:
		return cl.handlePing, true
	}
	return nil, false
}

func (cl *client) reply(id int64, payload any, err error) {
	if err != nil {
		cl.fail(id, err)
		return
	}
	frame, err := encodeResponse(id, payload)
	if err != nil {
		cl.logger.Error().Err(err).Int64("id", id).Msg("encode response")
		cl.fail(id, errors.New("internal error"))
		return
	}
	cl.send(frame)
}

func (cl *client) fail(id int64, err error) {
	code := domain.Code(err)
	if code == domain.CodeInternal {
		cl.logger.Error().Err(err).Int64("id", id).Msg("request failed")
	} else {
		cl.logger.Debug().Err(err).Int64("id", id).Str("code", code).Msg("request rejected")
	}
	frame, err := encodeError(id, err)
	if err != nil {
		cl.logger.Error().Err(err).Msg("encode error response")
		return
	}
	cl.send(frame)
}

func (cl *client) send(frame []byte) {
	if err := cl.conn.TrySend(frame); err != nil {
		ev := cl.logger.Warn()
		if errors.Is(err, core.ErrConnectionClosed) {
			ev = cl.logger.Debug()
		}
		ev.Err(err).Msg("response dropped")
	}
}
