package signal

import "context"

func (cl *client) handlePing(context.Context, Request) (any, error) {
	return pongResponse{Pong: true}, nil
}
