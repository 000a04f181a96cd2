package rebroadcast

import (
	"errors"
	"sync"
)

var ErrNoFreePorts = errors.New("no free rtp ports")

// PortPool hands out even local UDP ports for subprocess RTP inputs.
// The odd port above each one is left for RTCP.
// It is shared by every pipeline in the process.
type PortPool struct {
	mu    sync.Mutex
	min   int
	max   int
	next  int
	inUse map[int]struct{}
}

func NewPortPool(min, max int) *PortPool {
	if min%2 != 0 {
		min++
	}
	return &PortPool{
		min:   min,
		max:   max,
		next:  min,
		inUse: make(map[int]struct{}),
	}
}

func (p *PortPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	span := (p.max - p.min + 1) / 2
	for range span {
		port := p.next
		p.next += 2
		if p.next+1 > p.max {
			p.next = p.min
		}
		if _, busy := p.inUse[port]; busy {
			continue
		}
		p.inUse[port] = struct{}{}
		return port, nil
	}
	return 0, ErrNoFreePorts
}

func (p *PortPool) Release(port int) {
	p.mu.Lock()
	delete(p.inUse, port)
	p.mu.Unlock()
}

func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
